/*
Package metrics collects performance metrics of the gateway.

The collected metrics cover route lookup, the execution of every single
filter and of the combined filter chains, the roundtrip to the backend
services and the complete serving of each request. Custom keys can be
measured and counted by filters through the filter context.

Two backend formats are supported, the Coda Hale (DropWizard) JSON
format and Prometheus, either one or both at the same time. The
collected values are exposed over the support listener, where the
"all" format selects the response representation based on the Accept
header of the request.
*/
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind is the type a metrics expose as, can be CodaHale or Prometheus.
type Kind int

const (
	UnkindedKind Kind = 0
	CodaHaleKind Kind = 1 << iota
	PrometheusKind
	AllKind = CodaHaleKind | PrometheusKind
)

func (k Kind) String() string {
	switch k {
	case CodaHaleKind:
		return "codahale"
	case PrometheusKind:
		return "prometheus"
	case AllKind:
		return "all"
	default:
		return "unknown"
	}
}

// ParseMetricsKind parses an string and returns the correct Metrics kind.
func ParseMetricsKind(t string) Kind {
	switch t {
	case "codahale":
		return CodaHaleKind
	case "prometheus":
		return PrometheusKind
	case "all":
		return AllKind
	default:
		return UnkindedKind
	}
}

// Metrics is the generic interface of the metrics backends.
type Metrics interface {
	// MeasureSince adds a measurement for key since start.
	MeasureSince(key string, start time.Time)

	// IncCounter increments the counter identified by key.
	IncCounter(key string)

	// IncCounterBy increments the counter identified by key by value.
	IncCounterBy(key string, value int64)

	// IncFloatCounterBy increments the float counter identified by key
	// by value. Not supported by the Coda Hale backend.
	IncFloatCounterBy(key string, value float64)

	// UpdateGauge updates the gauge identified by key.
	UpdateGauge(key string, value float64)

	MeasureRouteLookup(start time.Time)
	MeasureFilterRequest(filterName string, start time.Time)
	MeasureAllFiltersRequest(routeID string, start time.Time)
	MeasureBackend(routeID string, start time.Time)
	MeasureBackendHost(routeBackendHost string, start time.Time)
	MeasureFilterResponse(filterName string, start time.Time)
	MeasureAllFiltersResponse(routeID string, start time.Time)
	MeasureResponse(code int, method string, routeID string, start time.Time)
	MeasureServe(routeID, host, method string, code int, start time.Time)
	IncRoutingFailures()
	IncErrorsBackend(routeID string)
	MeasureBackend5xx(t time.Time)
	IncErrorsStreaming(routeID string)

	// RegisterHandler registers the exposition endpoint of the backend
	// on the passed mux under path.
	RegisterHandler(path string, handler *http.ServeMux)

	Close()
}

// Options for initializing metrics collection.
type Options struct {
	// Format of the metrics exposition, defaults to CodaHaleKind.
	Format Kind

	// Common prefix for the keys of the different collected metrics.
	Prefix string

	// If set, garbage collector metrics are collected in addition to
	// the http traffic metrics.
	EnableDebugGcMetrics bool

	// If set, Go runtime metrics are collected in addition to the http
	// traffic metrics.
	EnableRuntimeMetrics bool

	// If set, detailed total response time metrics are collected for
	// each route, additionally grouped by status and method.
	EnableServeRouteMetrics bool

	// If set, a counter for each route is generated, additionally
	// grouped by status and method.
	EnableServeRouteCounter bool

	// If set, detailed total response time metrics are collected for
	// each host, additionally grouped by status and method.
	EnableServeHostMetrics bool

	// If set, a counter for each host is generated, additionally
	// grouped by status and method.
	EnableServeHostCounter bool

	// If set, the serve metrics are labeled with the request method.
	EnableServeMethodMetric bool

	// If set, the serve metrics are labeled with the response status
	// code.
	EnableServeStatusCodeMetric bool

	// If set, detailed response time metrics are collected for each
	// backend host.
	EnableBackendHostMetrics bool

	// EnableAllFiltersMetrics enables collecting combined filter
	// metrics per each route.
	EnableAllFiltersMetrics bool

	// EnableCombinedResponseMetrics enables collecting response time
	// metrics combined for all routes.
	EnableCombinedResponseMetrics bool

	// EnableRouteResponseMetrics enables collecting response time
	// metrics per each route.
	EnableRouteResponseMetrics bool

	// EnableRouteBackendErrorsCounters enables counters for backend
	// errors per each route.
	EnableRouteBackendErrorsCounters bool

	// EnableRouteStreamingErrorsCounters enables counters for
	// streaming errors per each route.
	EnableRouteStreamingErrorsCounters bool

	// EnableRouteBackendMetrics enables backend response time metrics
	// per each route.
	EnableRouteBackendMetrics bool

	// UseExpDecaySample, when set, the gathered metrics in the Coda
	// Hale backend use an exponentially decaying sample instead of a
	// uniform sample.
	UseExpDecaySample bool

	// HistogramBuckets defines buckets into which the observations of
	// the Prometheus histograms are counted.
	HistogramBuckets []float64

	// DisableCompatibilityDefaults disables the per-route metrics
	// that are enabled by default for compatibility.
	DisableCompatibilityDefaults bool

	// PrometheusRegistry, when set, is used by the Prometheus backend
	// instead of creating a new registry. Registering the same options
	// on multiple instances sharing a registry is an error.
	PrometheusRegistry *prometheus.Registry
}

var (
	// Default is the global metrics collector used by components that
	// are not configured with a specific one.
	Default Metrics

	// Void is a collector that discards all measurements.
	Void Metrics
)

func init() {
	Void = NewVoid()
	Default = Void
}

// NewMetrics creates the metrics backend or backends selected by
// o.Format.
func NewMetrics(o Options) Metrics {
	switch o.Format {
	case AllKind:
		return NewAll(o)
	case PrometheusKind:
		return NewPrometheus(o)
	default:
		return NewCodaHale(o)
	}
}
