package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/logging"
	"github.com/viaduct-io/viaduct/metrics"
	"github.com/viaduct-io/viaduct/routing"
)

type flushedResponseWriter interface {
	http.ResponseWriter
	http.Flusher
}

// filterContext carries the state of a single request through the
// filter chain. It implements filters.FilterContext.
type filterContext struct {
	responseWriter  flushedResponseWriter
	request         *http.Request
	response        *http.Response
	route           *routing.Route
	served          bool
	routed          bool
	pathParams      map[string]string
	stateBag        map[string]interface{}
	originalRequest *http.Request
	outgoingHost    string
	backendURL      *url.URL
	logger          *contextLogger
	metrics         metrics.Metrics
	startServe      time.Time
}

// contextLogger prefixes the log entries of a request with the id of
// the matched route.
type contextLogger struct {
	routeID string
	log     logging.Logger
}

func (l *contextLogger) prefixed(format string) string {
	if l.routeID == "" {
		return format
	}

	return "route " + l.routeID + ": " + format
}

func (l *contextLogger) Debugf(format string, a ...interface{}) { l.log.Debugf(l.prefixed(format), a...) }
func (l *contextLogger) Infof(format string, a ...interface{})  { l.log.Infof(l.prefixed(format), a...) }
func (l *contextLogger) Warnf(format string, a ...interface{})  { l.log.Warnf(l.prefixed(format), a...) }
func (l *contextLogger) Errorf(format string, a ...interface{}) { l.log.Errorf(l.prefixed(format), a...) }

func defaultBody() io.ReadCloser {
	return io.NopCloser(&bytes.Buffer{})
}

func defaultResponse(r *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     make(http.Header),
		Body:       defaultBody(),
		Request:    r,
	}
}

func cloneURL(u *url.URL) *url.URL {
	uc := *u
	return &uc
}

func cloneRequestMetadata(r *http.Request) *http.Request {
	return &http.Request{
		Method:           r.Method,
		URL:              cloneURL(r.URL),
		Proto:            r.Proto,
		ProtoMajor:       r.ProtoMajor,
		ProtoMinor:       r.ProtoMinor,
		Header:           cloneHeader(r.Header),
		Trailer:          cloneHeader(r.Trailer),
		Body:             defaultBody(),
		ContentLength:    r.ContentLength,
		TransferEncoding: r.TransferEncoding,
		Close:            r.Close,
		Host:             r.Host,
		RemoteAddr:       r.RemoteAddr,
		RequestURI:       r.RequestURI,
		TLS:              r.TLS,
	}
}

func newContext(w flushedResponseWriter, r *http.Request, preserveOriginal bool, m metrics.Metrics, log logging.Logger) *filterContext {
	c := &filterContext{
		responseWriter: w,
		request:        r,
		stateBag:       make(map[string]interface{}),
		outgoingHost:   r.Host,
		metrics:        m,
		logger:         &contextLogger{log: log},
		startServe:     time.Now(),
	}

	if preserveOriginal {
		c.originalRequest = cloneRequestMetadata(r)
	}

	return c
}

// applyRoute prepares the context for the filter chain of the matched
// route. The host of the outgoing request defaults to the backend host
// of the route, or to the incoming host when the proxy preserves it,
// and the initial target of the dispatch is the backend of the route.
// Filters can override both.
func (c *filterContext) applyRoute(route *routing.Route, params map[string]string, preserveHost bool) {
	c.route = route
	if preserveHost {
		c.outgoingHost = c.request.Host
	} else {
		c.outgoingHost = route.Host
	}

	c.pathParams = params
	c.backendURL = cloneURL(route.Backend)
	c.logger.routeID = route.ID
}

func (c *filterContext) ensureDefaultResponse() {
	if c.response == nil {
		c.response = defaultResponse(c.request)
		return
	}

	if c.response.Header == nil {
		c.response.Header = make(http.Header)
	}

	if c.response.Body == nil {
		c.response.Body = defaultBody()
	}
}

func (c *filterContext) ResponseWriter() http.ResponseWriter { return c.responseWriter }
func (c *filterContext) Request() *http.Request              { return c.request }
func (c *filterContext) SetRequest(r *http.Request)          { c.request = r }
func (c *filterContext) OriginalRequest() *http.Request      { return c.originalRequest }
func (c *filterContext) Response() *http.Response            { return c.response }
func (c *filterContext) SetResponse(r *http.Response)        { c.response = r }
func (c *filterContext) Served() bool                        { return c.served }
func (c *filterContext) PathParam(name string) string        { return c.pathParams[name] }
func (c *filterContext) StateBag() map[string]interface{}    { return c.stateBag }
func (c *filterContext) BackendURL() *url.URL                { return c.backendURL }
func (c *filterContext) SetBackendURL(u *url.URL)            { c.backendURL = u }
func (c *filterContext) OutgoingHost() string                { return c.outgoingHost }
func (c *filterContext) SetOutgoingHost(h string)            { c.outgoingHost = h }
func (c *filterContext) Routed() bool                        { return c.routed }

func (c *filterContext) SetRouted() {
	if c.routed {
		panic(fmt.Sprintf("proxy: route %s: request dispatched twice", c.RouteID()))
	}

	c.routed = true
}

func (c *filterContext) RouteID() string {
	if c.route == nil {
		return ""
	}

	return c.route.ID
}

func (c *filterContext) Logger() filters.FilterContextLogger { return c.logger }
func (c *filterContext) Metrics() filters.Metrics            { return c.metrics }

func (c *filterContext) Serve(r *http.Response) {
	r.Request = c.request
	if r.Header == nil {
		r.Header = make(http.Header)
	}

	if r.Body == nil {
		r.Body = defaultBody()
	}

	c.served = true
	c.response = r
}
