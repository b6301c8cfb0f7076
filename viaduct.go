package viaduct

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v2"

	"github.com/viaduct-io/viaduct/circuit"
	"github.com/viaduct-io/viaduct/dataclients/routesfile"
	"github.com/viaduct-io/viaduct/dataclients/routestring"
	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/filters/builtin"
	circuitfilters "github.com/viaduct-io/viaduct/filters/circuit"
	ratelimitfilters "github.com/viaduct-io/viaduct/filters/ratelimit"
	"github.com/viaduct-io/viaduct/loadbalancer"
	"github.com/viaduct-io/viaduct/logging"
	"github.com/viaduct-io/viaduct/metrics"
	"github.com/viaduct-io/viaduct/net"
	"github.com/viaduct-io/viaduct/predicates/header"
	"github.com/viaduct-io/viaduct/predicates/host"
	"github.com/viaduct-io/viaduct/predicates/methods"
	"github.com/viaduct-io/viaduct/predicates/path"
	"github.com/viaduct-io/viaduct/predicates/query"
	"github.com/viaduct-io/viaduct/proxy"
	"github.com/viaduct-io/viaduct/ratelimit"
	"github.com/viaduct-io/viaduct/routedef"
	"github.com/viaduct-io/viaduct/routing"
	"github.com/viaduct-io/viaduct/tracing"
)

const (
	// DefaultAddress is the address the proxy listens on when not
	// configured otherwise.
	DefaultAddress = ":9090"

	// DefaultSourcePollTimeout is the polling interval of the route
	// data clients when not configured otherwise.
	DefaultSourcePollTimeout = 3 * time.Second

	// DefaultMetricsPath is the path of the metrics exposition on the
	// support listener.
	DefaultMetricsPath = "/metrics"

	// DefaultApplicationLogPrefix is prepended to the application log
	// entries, distinguishing them from the access log.
	DefaultApplicationLogPrefix = "[APP]"

	// DefaultMetricsPrefix is the common prefix of the metrics keys.
	DefaultMetricsPrefix = "viaduct."
)

// Options to start viaduct.
type Options struct {

	// Address to listen on. Defaults to DefaultAddress.
	Address string

	// RoutesFile is the path of a YAML route document. The file is
	// polled while running, changes are applied without a restart.
	RoutesFile string

	// InlineRoutes is a YAML list of route definitions passed directly
	// in the configuration. On id conflicts the inline routes win over
	// the routes file.
	InlineRoutes string

	// SourcePollTimeout is the polling interval of the route data
	// clients. Defaults to DefaultSourcePollTimeout.
	SourcePollTimeout time.Duration

	// CustomDataClients provide route definitions in addition to the
	// routes file.
	CustomDataClients []routing.DataClient

	// CustomFilters are registered in addition to the builtin
	// filters.
	CustomFilters []filters.Spec

	// CustomPredicates are registered in addition to the builtin
	// predicates.
	CustomPredicates []routing.PredicateSpec

	// LoadBalancerGroups declares the endpoints of the groups that
	// routes with load balanced backends refer to, for example
	// lb://payments.
	LoadBalancerGroups map[string][]string

	// Insecure, when set, the proxy accepts invalid TLS certificates
	// from the backends.
	Insecure bool

	// ProxyPreserveHost, when set, the proxy forwards the incoming
	// Host header to the backends instead of using the hosts of the
	// backend addresses.
	ProxyPreserveHost bool

	// RemoveHopHeaders, when set, the proxy removes the hop-by-hop
	// headers from the forwarded requests and the responses.
	RemoveHopHeaders bool

	// DefaultHTTPStatus is the status of the responses to requests
	// that no route matched. Defaults to 404 Not Found.
	DefaultHTTPStatus int

	// MaxConcurrency limits the number of requests proxied at once,
	// requests over the limit wait in a queue. Zero means no limit.
	MaxConcurrency int

	// MaxQueueSize limits the number of requests waiting for their
	// turn when MaxConcurrency is set.
	MaxQueueSize int

	// QueueTimeout is the longest wait in the admission queue before
	// the request is rejected.
	QueueTimeout time.Duration

	// TimeoutBackend is the dial timeout of the backend connections.
	TimeoutBackend time.Duration

	// KeepaliveBackend is the keep-alive period of the backend
	// connections.
	KeepaliveBackend time.Duration

	// TLSHandshakeTimeoutBackend limits the TLS handshake with the
	// backends.
	TLSHandshakeTimeoutBackend time.Duration

	// ResponseHeaderTimeoutBackend limits the wait for the response
	// headers of the backends.
	ResponseHeaderTimeoutBackend time.Duration

	// ExpectContinueTimeoutBackend limits the wait for the first
	// response of a backend after a 100-continue request.
	ExpectContinueTimeoutBackend time.Duration

	// MaxIdleConnsBackend caps the idle connections kept open towards
	// the backends.
	MaxIdleConnsBackend int

	// CloseIdleConnsPeriod is the interval of flushing the idle
	// backend connections.
	CloseIdleConnsPeriod time.Duration

	// BreakersFile is the path of a YAML document listing circuit
	// breaker settings for the circuitBreaker filter. The entry with
	// an empty name provides the defaults.
	BreakersFile string

	// BreakerSettings configure circuit breakers in addition to the
	// breakers file.
	BreakerSettings []circuit.BreakerSettings

	// RedisAddrs are the addresses of the Redis instances backing the
	// shared counters of the rate limiting filters. When empty, the
	// counters are kept in-process.
	RedisAddrs []string

	// RedisPassword authenticates the Redis connections.
	RedisPassword string

	// OpenTracing selects the tracer implementation by the first
	// element, followed by the options of the implementation, for
	// example "basic", "sample-modulo=64". Defaults to the noop
	// tracer.
	OpenTracing []string

	// SupportListener is the address of a second listener serving the
	// metrics exposition and the health check. When empty, no support
	// listener is started.
	SupportListener string

	// MetricsFlavour selects the metrics backend, one of "codahale",
	// "prometheus" or "all". Defaults to "codahale".
	MetricsFlavour string

	// MetricsPrefix is the common prefix of the metrics keys.
	// Defaults to DefaultMetricsPrefix.
	MetricsPrefix string

	// MetricsPath is the path of the metrics exposition on the
	// support listener. Defaults to DefaultMetricsPath.
	MetricsPath string

	// EnableDebugGcMetrics collects garbage collector metrics in
	// addition to the traffic metrics.
	EnableDebugGcMetrics bool

	// EnableRuntimeMetrics collects Go runtime metrics in addition to
	// the traffic metrics.
	EnableRuntimeMetrics bool

	// EnableServeRouteMetrics collects detailed response time metrics
	// for each route, grouped by status and method.
	EnableServeRouteMetrics bool

	// EnableServeHostMetrics collects detailed response time metrics
	// for each incoming host, grouped by status and method.
	EnableServeHostMetrics bool

	// EnableBackendHostMetrics collects response time metrics for
	// each backend host.
	EnableBackendHostMetrics bool

	// EnableAllFiltersMetrics collects combined filter execution time
	// metrics for each route.
	EnableAllFiltersMetrics bool

	// ApplicationLogOutput is the output of the application log, one
	// of "/dev/stderr", "/dev/stdout" or a file path. Defaults to
	// stderr.
	ApplicationLogOutput string

	// ApplicationLogPrefix is prepended to the application log
	// entries. Defaults to DefaultApplicationLogPrefix.
	ApplicationLogPrefix string

	// ApplicationLogLevel is the logrus level of the application log,
	// for example "debug". Defaults to "info".
	ApplicationLogLevel string

	// ApplicationLogJSONEnabled writes the application log in JSON
	// format.
	ApplicationLogJSONEnabled bool

	// AccessLogOutput is the output of the access log, one of
	// "/dev/stderr", "/dev/stdout" or a file path. Defaults to
	// stderr.
	AccessLogOutput string

	// AccessLogDisabled turns off the access log.
	AccessLogDisabled bool

	// AccessLogJSONEnabled writes the access log in JSON format.
	AccessLogJSONEnabled bool

	// LocalHandler serves the requests of routes with the forward
	// backend scheme and the fallback dispatch of the circuitBreaker
	// filter. When nil, the support handler serving the health check
	// and the metrics is used.
	LocalHandler http.Handler
}

func createLogOutput(name string) (io.Writer, error) {
	switch name {
	case "", "/dev/stderr":
		return os.Stderr, nil
	case "/dev/stdout":
		return os.Stdout, nil
	default:
		return os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	}
}

func initLog(o Options) error {
	applicationLog, err := createLogOutput(o.ApplicationLogOutput)
	if err != nil {
		return err
	}

	accessLog, err := createLogOutput(o.AccessLogOutput)
	if err != nil {
		return err
	}

	prefix := o.ApplicationLogPrefix
	if prefix == "" {
		prefix = DefaultApplicationLogPrefix
	}

	logging.Init(logging.Options{
		ApplicationLogPrefix:      prefix,
		ApplicationLogOutput:      applicationLog,
		ApplicationLogJSONEnabled: o.ApplicationLogJSONEnabled,
		AccessLogOutput:           accessLog,
		AccessLogDisabled:         o.AccessLogDisabled,
		AccessLogJSONEnabled:      o.AccessLogJSONEnabled,
	})

	if o.ApplicationLogLevel != "" {
		level, err := log.ParseLevel(o.ApplicationLogLevel)
		if err != nil {
			return err
		}

		log.SetLevel(level)
	}

	return nil
}

func initMetrics(o Options) (metrics.Metrics, error) {
	kind := metrics.CodaHaleKind
	if o.MetricsFlavour != "" {
		kind = metrics.ParseMetricsKind(o.MetricsFlavour)
		if kind == metrics.UnkindedKind {
			return nil, fmt.Errorf("invalid metrics flavour: %s", o.MetricsFlavour)
		}
	}

	prefix := o.MetricsPrefix
	if prefix == "" {
		prefix = DefaultMetricsPrefix
	}

	m := metrics.NewMetrics(metrics.Options{
		Format:                   kind,
		Prefix:                   prefix,
		EnableDebugGcMetrics:     o.EnableDebugGcMetrics,
		EnableRuntimeMetrics:     o.EnableRuntimeMetrics,
		EnableServeRouteMetrics:  o.EnableServeRouteMetrics,
		EnableServeHostMetrics:   o.EnableServeHostMetrics,
		EnableBackendHostMetrics: o.EnableBackendHostMetrics,
		EnableAllFiltersMetrics:  o.EnableAllFiltersMetrics,
	})

	metrics.Default = m
	return m, nil
}

// createDataClients returns the configured route sources, together
// with the default filters of the routes file when one is set.
func createDataClients(o Options) ([]routing.DataClient, []*routedef.FilterDefinition, error) {
	var (
		clients        []routing.DataClient
		defaultFilters []*routedef.FilterDefinition
	)

	if o.RoutesFile != "" {
		f, err := routesfile.Open(o.RoutesFile)
		if err != nil {
			return nil, nil, err
		}

		clients = append(clients, f)
		defaultFilters = f.DefaultFilters()
	}

	if o.InlineRoutes != "" {
		inline, err := routestring.New(o.InlineRoutes)
		if err != nil {
			return nil, nil, err
		}

		clients = append(clients, inline)
	}

	clients = append(clients, o.CustomDataClients...)
	return clients, defaultFilters, nil
}

func loadBreakerSettings(o Options) ([]circuit.BreakerSettings, error) {
	if o.BreakersFile == "" {
		return o.BreakerSettings, nil
	}

	b, err := os.ReadFile(o.BreakersFile)
	if err != nil {
		return nil, err
	}

	var settings []circuit.BreakerSettings
	if err := yaml.Unmarshal(b, &settings); err != nil {
		return nil, fmt.Errorf("parsing breaker settings %s: %v", o.BreakersFile, err)
	}

	return append(settings, o.BreakerSettings...), nil
}

func createFilterRegistry(
	o Options,
	limits *ratelimit.Registry,
	breakers *circuit.Registry,
	localHandler func() http.Handler,
) filters.Registry {
	registry := builtin.MakeRegistry()
	registry.Register(ratelimitfilters.New(limits))
	registry.Register(circuitfilters.New(breakers, localHandler))
	for _, f := range o.CustomFilters {
		registry.Register(f)
	}

	return registry
}

func createPredicates(o Options) []routing.PredicateSpec {
	predicates := []routing.PredicateSpec{
		path.New(),
		host.New(),
		methods.New(),
		header.New(),
		query.New(),
	}

	return append(predicates, o.CustomPredicates...)
}

func createLoadBalancer(o Options) (*loadbalancer.Registry, error) {
	registry := loadbalancer.NewRegistry()
	for name, endpoints := range o.LoadBalancerGroups {
		if err := registry.Set(name, endpoints); err != nil {
			return nil, fmt.Errorf("load balancer group %s: %v", name, err)
		}
	}

	return registry, nil
}

func proxyFlags(o Options) proxy.Flags {
	var flags proxy.Flags
	if o.Insecure {
		flags |= proxy.Insecure
	}

	if o.ProxyPreserveHost {
		flags |= proxy.PreserveHost
	}

	if o.RemoveHopHeaders {
		flags |= proxy.HopHeadersRemoval
	}

	return flags
}

// Run starts the gateway and blocks serving http traffic on the
// configured address. Routes come from the routes file and the custom
// data clients, route changes are applied while running.
func Run(o Options) error {
	if err := initLog(o); err != nil {
		return err
	}

	m, err := initMetrics(o)
	if err != nil {
		return err
	}

	tracingOpts := o.OpenTracing
	if len(tracingOpts) == 0 {
		tracingOpts = []string{"noop"}
	}

	tracer, err := tracing.InitTracer(tracingOpts)
	if err != nil {
		return err
	}

	dataClients, defaultFilters, err := createDataClients(o)
	if err != nil {
		return err
	}

	if len(dataClients) == 0 {
		log.Warn("no route source specified")
	}

	loadBalancer, err := createLoadBalancer(o)
	if err != nil {
		return err
	}

	breakerSettings, err := loadBreakerSettings(o)
	if err != nil {
		return err
	}

	breakers := circuit.NewRegistry(breakerSettings...)

	var redisOptions *net.RedisOptions
	if len(o.RedisAddrs) > 0 {
		redisOptions = &net.RedisOptions{
			Addrs:    o.RedisAddrs,
			Password: o.RedisPassword,
			Tracer:   tracer,
		}
	}

	limits := ratelimit.NewRegistry(ratelimit.Options{
		Redis:  redisOptions,
		Tracer: tracer,
	})

	support := http.NewServeMux()
	support.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	metricsPath := o.MetricsPath
	if metricsPath == "" {
		metricsPath = DefaultMetricsPath
	}

	m.RegisterHandler(metricsPath, support)

	localHandler := o.LocalHandler
	if localHandler == nil {
		localHandler = support
	}

	registry := createFilterRegistry(o, limits, breakers, func() http.Handler {
		return localHandler
	})

	if o.SourcePollTimeout <= 0 {
		o.SourcePollTimeout = DefaultSourcePollTimeout
	}

	routes := routing.New(routing.Options{
		FilterRegistry: registry,
		Predicates:     createPredicates(o),
		DataClients:    dataClients,
		PollTimeout:    o.SourcePollTimeout,
		DefaultFilters: defaultFilters,
	})

	p := proxy.WithParams(proxy.Params{
		Routing:               routes,
		LoadBalancer:          loadBalancer,
		LocalHandler:          localHandler,
		Flags:                 proxyFlags(o),
		DefaultHTTPStatus:     o.DefaultHTTPStatus,
		MaxConcurrency:        o.MaxConcurrency,
		MaxQueueSize:          o.MaxQueueSize,
		QueueTimeout:          o.QueueTimeout,
		Timeout:               o.TimeoutBackend,
		KeepAlive:             o.KeepaliveBackend,
		TLSHandshakeTimeout:   o.TLSHandshakeTimeoutBackend,
		ResponseHeaderTimeout: o.ResponseHeaderTimeoutBackend,
		ExpectContinueTimeout: o.ExpectContinueTimeoutBackend,
		MaxIdleConns:          o.MaxIdleConnsBackend,
		CloseIdleConnsPeriod:  o.CloseIdleConnsPeriod,
		OpenTracing:           &proxy.OpenTracingParams{Tracer: tracer},
		AccessLogDisabled:     o.AccessLogDisabled,
	})

	if o.SupportListener != "" {
		go func() {
			log.Infof("support listener on %s", o.SupportListener)
			if err := http.ListenAndServe(o.SupportListener, support); err != nil {
				log.Errorf("support listener: %v", err)
			}
		}()
	}

	address := o.Address
	if address == "" {
		address = DefaultAddress
	}

	log.Infof("listening on %s", address)
	return http.ListenAndServe(address, p)
}
