// The viaduct command starts the gateway listening for http traffic,
// with the routes read from a YAML document.
//
// (See the root package of the repository for an overview of the
// route documents and the gateway features.)
package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/viaduct-io/viaduct"
)

// groupsFlag collects repeated -lb-group flags of the form
// name=endpoint1,endpoint2 into the endpoint groups of the load
// balanced backends.
type groupsFlag map[string][]string

func (f groupsFlag) String() string {
	var groups []string
	for name, endpoints := range f {
		groups = append(groups, fmt.Sprintf("%s=%s", name, strings.Join(endpoints, ",")))
	}

	return strings.Join(groups, " ")
}

func (f groupsFlag) Set(value string) error {
	name, endpoints, found := strings.Cut(value, "=")
	if !found || name == "" {
		return fmt.Errorf("expected name=endpoint1,endpoint2, got %q", value)
	}

	f[name] = strings.Split(endpoints, ",")
	return nil
}

var (
	address           string
	routesFile        string
	inlineRoutes      string
	sourcePollTimeout time.Duration

	insecure          bool
	proxyPreserveHost bool
	removeHopHeaders  bool
	defaultHTTPStatus int

	maxConcurrency int
	maxQueueSize   int
	queueTimeout   time.Duration

	timeoutBackend               time.Duration
	keepaliveBackend             time.Duration
	tlsHandshakeTimeoutBackend   time.Duration
	responseHeaderTimeoutBackend time.Duration
	expectContinueTimeoutBackend time.Duration
	maxIdleConnsBackend          int
	closeIdleConnsPeriod         time.Duration

	loadBalancerGroups = make(groupsFlag)

	breakersFile  string
	redisAddrs    string
	redisPassword string
	openTracing   string

	supportListener string
	metricsFlavour  string
	metricsPrefix   string
	metricsPath     string

	debugGcMetrics     bool
	runtimeMetrics     bool
	serveRouteMetrics  bool
	serveHostMetrics   bool
	backendHostMetrics bool
	allFiltersMetrics  bool

	applicationLog       string
	applicationLogPrefix string
	applicationLogLevel  string
	applicationLogJSON   bool

	accessLog         string
	accessLogDisabled bool
	accessLogJSON     bool
)

func init() {
	flag.StringVar(&address, "address", viaduct.DefaultAddress, "address where viaduct listens on")
	flag.StringVar(&routesFile, "routes-file", "", "path of a YAML route document, polled for changes while running")
	flag.StringVar(&inlineRoutes, "inline-routes", "", "YAML list of route definitions passed directly on the command line")
	flag.DurationVar(&sourcePollTimeout, "source-poll-timeout", viaduct.DefaultSourcePollTimeout, "polling interval of the route sources")

	flag.BoolVar(&insecure, "insecure", false, "accept invalid TLS certificates from the backends")
	flag.BoolVar(&proxyPreserveHost, "proxy-preserve-host", false, "forward the incoming Host header to the backends")
	flag.BoolVar(&removeHopHeaders, "remove-hop-headers", false, "remove the hop-by-hop headers from the forwarded requests and responses")
	flag.IntVar(&defaultHTTPStatus, "default-http-status", 0, "status of the responses to requests that no route matched, defaults to 404")

	flag.IntVar(&maxConcurrency, "max-concurrency", 0, "maximum number of requests proxied at once, 0 means no limit")
	flag.IntVar(&maxQueueSize, "max-queue-size", 0, "maximum number of requests waiting for their turn when -max-concurrency is set")
	flag.DurationVar(&queueTimeout, "queue-timeout", 0, "longest wait in the admission queue before the request is rejected")

	flag.DurationVar(&timeoutBackend, "timeout-backend", 0, "dial timeout of the backend connections")
	flag.DurationVar(&keepaliveBackend, "keepalive-backend", 0, "keep-alive period of the backend connections")
	flag.DurationVar(&tlsHandshakeTimeoutBackend, "tls-timeout-backend", 0, "TLS handshake timeout of the backend connections")
	flag.DurationVar(&responseHeaderTimeoutBackend, "response-header-timeout-backend", 0, "timeout of waiting for the response headers of the backends")
	flag.DurationVar(&expectContinueTimeoutBackend, "expect-continue-timeout-backend", 0, "timeout of waiting for the first response of the backends after a 100-continue request")
	flag.IntVar(&maxIdleConnsBackend, "max-idle-conns-backend", 0, "maximum number of idle connections kept open towards the backends")
	flag.DurationVar(&closeIdleConnsPeriod, "close-idle-conns-period", 0, "interval of flushing the idle backend connections")

	flag.Var(loadBalancerGroups, "lb-group", "endpoint group of the load balanced backends as name=endpoint1,endpoint2, can be repeated")

	flag.StringVar(&breakersFile, "breakers-file", "", "path of a YAML document with the circuit breaker settings")
	flag.StringVar(&redisAddrs, "redis-addrs", "", "comma separated addresses of the Redis instances backing the shared rate limiting counters")
	flag.StringVar(&redisPassword, "redis-password", "", "password of the Redis connections")
	flag.StringVar(&openTracing, "opentracing", "noop", "tracer implementation followed by its options, e.g. \"basic sample-modulo=64\"")

	flag.StringVar(&supportListener, "support-listener", "", "address of a second listener serving the metrics exposition and the health check")
	flag.StringVar(&metricsFlavour, "metrics-flavour", "codahale", "metrics backend, one of codahale, prometheus or all")
	flag.StringVar(&metricsPrefix, "metrics-prefix", viaduct.DefaultMetricsPrefix, "common prefix of the metrics keys")
	flag.StringVar(&metricsPath, "metrics-path", viaduct.DefaultMetricsPath, "path of the metrics exposition on the support listener")

	flag.BoolVar(&debugGcMetrics, "debug-gc-metrics", false, "collect garbage collector metrics")
	flag.BoolVar(&runtimeMetrics, "runtime-metrics", false, "collect Go runtime metrics")
	flag.BoolVar(&serveRouteMetrics, "serve-route-metrics", false, "collect response time metrics for each route")
	flag.BoolVar(&serveHostMetrics, "serve-host-metrics", false, "collect response time metrics for each incoming host")
	flag.BoolVar(&backendHostMetrics, "backend-host-metrics", false, "collect response time metrics for each backend host")
	flag.BoolVar(&allFiltersMetrics, "all-filters-metrics", false, "collect combined filter execution time metrics for each route")

	flag.StringVar(&applicationLog, "application-log", "", "output of the application log, /dev/stderr, /dev/stdout or a file path")
	flag.StringVar(&applicationLogPrefix, "application-log-prefix", viaduct.DefaultApplicationLogPrefix, "prefix of the application log entries")
	flag.StringVar(&applicationLogLevel, "application-log-level", "", "level of the application log, e.g. debug")
	flag.BoolVar(&applicationLogJSON, "application-log-json", false, "write the application log in JSON format")

	flag.StringVar(&accessLog, "access-log", "", "output of the access log, /dev/stderr, /dev/stdout or a file path")
	flag.BoolVar(&accessLogDisabled, "access-log-disabled", false, "do not write an access log")
	flag.BoolVar(&accessLogJSON, "access-log-json", false, "write the access log in JSON format")

	flag.Parse()
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}

	return strings.Split(value, ",")
}

func main() {
	log.Fatal(viaduct.Run(viaduct.Options{
		Address:           address,
		RoutesFile:        routesFile,
		InlineRoutes:      inlineRoutes,
		SourcePollTimeout: sourcePollTimeout,

		Insecure:          insecure,
		ProxyPreserveHost: proxyPreserveHost,
		RemoveHopHeaders:  removeHopHeaders,
		DefaultHTTPStatus: defaultHTTPStatus,

		MaxConcurrency: maxConcurrency,
		MaxQueueSize:   maxQueueSize,
		QueueTimeout:   queueTimeout,

		TimeoutBackend:               timeoutBackend,
		KeepaliveBackend:             keepaliveBackend,
		TLSHandshakeTimeoutBackend:   tlsHandshakeTimeoutBackend,
		ResponseHeaderTimeoutBackend: responseHeaderTimeoutBackend,
		ExpectContinueTimeoutBackend: expectContinueTimeoutBackend,
		MaxIdleConnsBackend:          maxIdleConnsBackend,
		CloseIdleConnsPeriod:         closeIdleConnsPeriod,

		LoadBalancerGroups: loadBalancerGroups,

		BreakersFile:  breakersFile,
		RedisAddrs:    splitList(redisAddrs),
		RedisPassword: redisPassword,
		OpenTracing:   strings.Fields(openTracing),

		SupportListener: supportListener,
		MetricsFlavour:  metricsFlavour,
		MetricsPrefix:   metricsPrefix,
		MetricsPath:     metricsPath,

		EnableDebugGcMetrics:     debugGcMetrics,
		EnableRuntimeMetrics:     runtimeMetrics,
		EnableServeRouteMetrics:  serveRouteMetrics,
		EnableServeHostMetrics:   serveHostMetrics,
		EnableBackendHostMetrics: backendHostMetrics,
		EnableAllFiltersMetrics:  allFiltersMetrics,

		ApplicationLogOutput:      applicationLog,
		ApplicationLogPrefix:      applicationLogPrefix,
		ApplicationLogLevel:       applicationLogLevel,
		ApplicationLogJSONEnabled: applicationLogJSON,

		AccessLogOutput:      accessLog,
		AccessLogDisabled:    accessLogDisabled,
		AccessLogJSONEnabled: accessLogJSON,
	}))
}
