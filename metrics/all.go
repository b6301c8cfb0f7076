package metrics

import (
	"net/http"
	"strings"
	"time"
)

// All is a facade over both metrics backends collecting all measurements
// in both of them.
type All struct {
	prometheus        *Prometheus
	codaHale          *CodaHale
	prometheusHandler http.Handler
	codaHaleHandler   http.Handler
}

func NewAll(o Options) *All {
	return &All{
		prometheus: NewPrometheus(o),
		codaHale:   NewCodaHale(o),
	}
}

func (a *All) MeasureSince(key string, start time.Time) {
	a.prometheus.MeasureSince(key, start)
	a.codaHale.MeasureSince(key, start)
}

func (a *All) IncCounter(key string) {
	a.prometheus.IncCounter(key)
	a.codaHale.IncCounter(key)
}

func (a *All) IncCounterBy(key string, value int64) {
	a.prometheus.IncCounterBy(key, value)
	a.codaHale.IncCounterBy(key, value)
}

func (a *All) IncFloatCounterBy(key string, value float64) {
	a.prometheus.IncFloatCounterBy(key, value)
	a.codaHale.IncFloatCounterBy(key, value)
}

func (a *All) UpdateGauge(key string, value float64) {
	a.prometheus.UpdateGauge(key, value)
	a.codaHale.UpdateGauge(key, value)
}

func (a *All) MeasureRouteLookup(start time.Time) {
	a.prometheus.MeasureRouteLookup(start)
	a.codaHale.MeasureRouteLookup(start)
}

func (a *All) MeasureFilterRequest(filterName string, start time.Time) {
	a.prometheus.MeasureFilterRequest(filterName, start)
	a.codaHale.MeasureFilterRequest(filterName, start)
}

func (a *All) MeasureAllFiltersRequest(routeID string, start time.Time) {
	a.prometheus.MeasureAllFiltersRequest(routeID, start)
	a.codaHale.MeasureAllFiltersRequest(routeID, start)
}

func (a *All) MeasureBackend(routeID string, start time.Time) {
	a.prometheus.MeasureBackend(routeID, start)
	a.codaHale.MeasureBackend(routeID, start)
}

func (a *All) MeasureBackendHost(routeBackendHost string, start time.Time) {
	a.prometheus.MeasureBackendHost(routeBackendHost, start)
	a.codaHale.MeasureBackendHost(routeBackendHost, start)
}

func (a *All) MeasureFilterResponse(filterName string, start time.Time) {
	a.prometheus.MeasureFilterResponse(filterName, start)
	a.codaHale.MeasureFilterResponse(filterName, start)
}

func (a *All) MeasureAllFiltersResponse(routeID string, start time.Time) {
	a.prometheus.MeasureAllFiltersResponse(routeID, start)
	a.codaHale.MeasureAllFiltersResponse(routeID, start)
}

func (a *All) MeasureResponse(code int, method string, routeID string, start time.Time) {
	a.prometheus.MeasureResponse(code, method, routeID, start)
	a.codaHale.MeasureResponse(code, method, routeID, start)
}

func (a *All) MeasureServe(routeID, host, method string, code int, start time.Time) {
	a.prometheus.MeasureServe(routeID, host, method, code, start)
	a.codaHale.MeasureServe(routeID, host, method, code, start)
}

func (a *All) IncRoutingFailures() {
	a.prometheus.IncRoutingFailures()
	a.codaHale.IncRoutingFailures()
}

func (a *All) IncErrorsBackend(routeID string) {
	a.prometheus.IncErrorsBackend(routeID)
	a.codaHale.IncErrorsBackend(routeID)
}

func (a *All) MeasureBackend5xx(t time.Time) {
	a.prometheus.MeasureBackend5xx(t)
	a.codaHale.MeasureBackend5xx(t)
}

func (a *All) IncErrorsStreaming(routeID string) {
	a.prometheus.IncErrorsStreaming(routeID)
	a.codaHale.IncErrorsStreaming(routeID)
}

// RegisterHandler registers a dispatching handler that serves the Coda
// Hale format when the Accept header asks for application/codahale+json
// and the Prometheus exposition otherwise.
func (a *All) RegisterHandler(path string, handler *http.ServeMux) {
	a.prometheusHandler = a.prometheus.getHandler()
	a.codaHaleHandler = a.codaHale.getHandler(path)
	handler.Handle(path, a.newDispatchHandler())
}

func (a *All) newDispatchHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "application/codahale+json") {
			a.codaHaleHandler.ServeHTTP(w, r)
		} else {
			a.prometheusHandler.ServeHTTP(w, r)
		}
	})
}

func (a *All) Close() {
	a.prometheus.Close()
	a.codaHale.Close()
}
