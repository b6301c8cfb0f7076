// Package filtertest implements mock versions of the filter contracts
// for tests.
package filtertest

import (
	"net/http"
	"net/url"
	"time"

	"github.com/viaduct-io/viaduct/filters"
)

// Filter is a noop filter spec and filter, recording the creation
// arguments.
type Filter struct {
	FilterName string
	Args       map[string]string
}

// Context implements filters.FilterContext with directly settable
// fields.
type Context struct {
	FResponseWriter  http.ResponseWriter
	FRequest         *http.Request
	FOriginalRequest *http.Request
	FResponse        *http.Response
	FServed          bool
	FRouted          bool
	FParams          map[string]string
	FStateBag        map[string]interface{}
	FBackendURL      *url.URL
	FOutgoingHost    string
	FRouteID         string
	FLogger          filters.FilterContextLogger
	FMetrics         filters.Metrics
}

func (f *Filter) Name() string { return f.FilterName }

func (f *Filter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	return next.Filter(ctx)
}

func (f *Filter) CreateFilter(args map[string]string) (filters.Filter, error) {
	return &Filter{f.FilterName, args}, nil
}

func (fc *Context) ResponseWriter() http.ResponseWriter { return fc.FResponseWriter }
func (fc *Context) Request() *http.Request              { return fc.FRequest }
func (fc *Context) SetRequest(r *http.Request)          { fc.FRequest = r }
func (fc *Context) OriginalRequest() *http.Request      { return fc.FOriginalRequest }
func (fc *Context) Response() *http.Response            { return fc.FResponse }
func (fc *Context) SetResponse(r *http.Response)        { fc.FResponse = r }
func (fc *Context) Served() bool                        { return fc.FServed }
func (fc *Context) PathParam(name string) string        { return fc.FParams[name] }
func (fc *Context) StateBag() map[string]interface{}    { return fc.FStateBag }
func (fc *Context) BackendURL() *url.URL                { return fc.FBackendURL }
func (fc *Context) SetBackendURL(u *url.URL)            { fc.FBackendURL = u }
func (fc *Context) OutgoingHost() string                { return fc.FOutgoingHost }
func (fc *Context) SetOutgoingHost(h string)            { fc.FOutgoingHost = h }
func (fc *Context) Routed() bool                        { return fc.FRouted }
func (fc *Context) RouteID() string                     { return fc.FRouteID }

func (fc *Context) Serve(r *http.Response) {
	fc.FServed = true
	fc.FResponse = r
}

func (fc *Context) SetRouted() {
	if fc.FRouted {
		panic("filter context: already routed")
	}

	fc.FRouted = true
}

func (fc *Context) Logger() filters.FilterContextLogger {
	if fc.FLogger == nil {
		return noopLogger{}
	}

	return fc.FLogger
}

func (fc *Context) Metrics() filters.Metrics {
	if fc.FMetrics == nil {
		return noopMetrics{}
	}

	return fc.FMetrics
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

type noopMetrics struct{}

func (noopMetrics) MeasureSince(string, time.Time)    {}
func (noopMetrics) IncCounter(string)                 {}
func (noopMetrics) IncCounterBy(string, int64)        {}
func (noopMetrics) IncFloatCounterBy(string, float64) {}
