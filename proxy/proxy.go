package proxy

import (
	stdlibcontext "context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"time"

	"github.com/aryszka/jobqueue"
	ot "github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/viaduct-io/viaduct/filters"
	circuitfilters "github.com/viaduct-io/viaduct/filters/circuit"
	"github.com/viaduct-io/viaduct/loadbalancer"
	"github.com/viaduct-io/viaduct/logging"
	"github.com/viaduct-io/viaduct/metrics"
	"github.com/viaduct-io/viaduct/routing"
)

const (
	proxyBufferSize = 8192
	unknownRouteID  = "_unknownroute_"

	// DefaultIdleConnsPerHost is the default number of maximum idle
	// connections per backend host.
	DefaultIdleConnsPerHost = 64

	// DefaultCloseIdleConnsPeriod is the default period for closing
	// the idle connections of the transport.
	DefaultCloseIdleConnsPeriod = 20 * time.Second

	// DefaultResponseHeaderTimeout is the default timeout for the
	// response headers of the backend roundtrip.
	DefaultResponseHeaderTimeout = 60 * time.Second

	// DefaultExpectContinueTimeout is the default timeout to expect a
	// response for a 100 Continue request.
	DefaultExpectContinueTimeout = 30 * time.Second
)

// Flags control the behavior of the proxy.
type Flags uint

const (
	FlagsNone Flags = 0

	// Insecure causes the proxy to ignore the verification of
	// the TLS certificates of the backend services.
	Insecure Flags = 1 << iota

	// PreserveOriginal indicates that filters require the
	// preserved original metadata of the request.
	PreserveOriginal

	// PreserveHost indicates whether the outgoing request to the
	// backend should use by default the 'Host' header of the incoming
	// request, or the host part of the backend address, in case filters
	// don't change it.
	PreserveHost

	// HopHeadersRemoval indicates whether the Hop Headers should be removed
	// in compliance with RFC 2616
	HopHeadersRemoval
)

func (f Flags) Insecure() bool          { return f&Insecure != 0 }
func (f Flags) PreserveOriginal() bool  { return f&PreserveOriginal != 0 }
func (f Flags) PreserveHost() bool      { return f&PreserveHost != 0 }
func (f Flags) HopHeadersRemoval() bool { return f&HopHeadersRemoval != 0 }

// Params contains the initialization settings of the proxy.
type Params struct {

	// The proxy expects a routing instance that is used to match
	// the incoming requests to routes.
	Routing *routing.Routing

	// LoadBalancer resolves the groups referenced by routes with a
	// load balanced backend. Requests of such routes fail with 503
	// when not set.
	LoadBalancer *loadbalancer.Registry

	// LocalHandler handles the requests of routes with a forward
	// backend. Requests of such routes fail when not set.
	LocalHandler http.Handler

	// Globals contains additional filters that take part in the
	// chain of every route, at the position defined by their order.
	Globals []filters.Filter

	// Control flags. See the Flags values.
	Flags Flags

	// DefaultHTTPStatus is the HTTP status used when no routes are
	// found for a request. Default: 404.
	DefaultHTTPStatus int

	// MaxConcurrency, when set to a positive value, bounds the number
	// of requests processed at the same time. Requests over the bound
	// wait in a LIFO queue.
	MaxConcurrency int

	// MaxQueueSize is the maximum number of requests allowed to wait
	// for processing when MaxConcurrency is set.
	MaxQueueSize int

	// QueueTimeout is the maximum time for a request to wait for
	// processing when MaxConcurrency is set.
	QueueTimeout time.Duration

	// Timeout sets the TCP dialing timeout of the backend roundtrip.
	Timeout time.Duration

	// KeepAlive sets the TCP keep alive period of the backend
	// connections.
	KeepAlive time.Duration

	// TLSHandshakeTimeout sets the TLS handshake timeout of the
	// backend roundtrip.
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout sets the time to wait for the response
	// headers of the backend roundtrip.
	ResponseHeaderTimeout time.Duration

	// ExpectContinueTimeout sets the time to wait for the first
	// response headers after fully writing the request headers when
	// the request has an "Expect: 100-continue" header.
	ExpectContinueTimeout time.Duration

	// MaxIdleConns limits the number of idle connections to all
	// backends, 0 means no limit.
	MaxIdleConns int

	// IdleConnectionsPerHost limits the number of idle connections
	// kept alive per backend host.
	IdleConnectionsPerHost int

	// CloseIdleConnsPeriod sets the period of closing all idle
	// connections in seconds or -1 to disable closing them.
	CloseIdleConnsPeriod time.Duration

	// ClientTLS is used to configure the client side TLS of the
	// backend connections.
	ClientTLS *tls.Config

	// OpenTracing contains the tracing instrumentation settings.
	OpenTracing *OpenTracingParams

	// When set, no access log is printed.
	AccessLogDisabled bool
}

// Hop-by-hop headers. These are removed when HopHeadersRemoval is set.
// http://www.w3.org/Protocols/rfc2616/rfc2616-sec13.html
var hopHeaders = map[string]bool{
	"Te":                  true,
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Proxy instances implement viaduct proxying functionality. For
// initializing, see the WithParams function and the Params type.
type Proxy struct {
	routing           *routing.Routing
	roundTripper      *http.Transport
	localHandler      http.Handler
	globals           []filters.Filter
	flags             Flags
	metrics           metrics.Metrics
	log               logging.Logger
	quit              chan struct{}
	queue             *jobqueue.Stack
	defaultHTTPStatus int
	tracing           *proxyTracing
	accessLogDisabled bool
}

// proxyError wraps a request processing failure with the HTTP status
// to respond with and optional headers of the error response.
type proxyError struct {
	err              error
	code             int
	dialingFailed    bool
	additionalHeader http.Header
}

func (e *proxyError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("dialing failed %v: %v", e.dialingFailed, e.err.Error())
	}

	code := e.code
	if code == 0 {
		code = http.StatusInternalServerError
	}

	return fmt.Sprintf("proxy error: code: %d", code)
}

func (e *proxyError) Unwrap() error { return e.err }

var (
	errRouteLookupFailed = errors.New("route lookup failed")
	errQueueFull         = &proxyError{err: jobqueue.ErrStackFull, code: http.StatusServiceUnavailable}
	errQueueTimeout      = &proxyError{err: jobqueue.ErrTimeout, code: http.StatusBadGateway}
)

var hostname string

func copyHeader(to, from http.Header) {
	for k, v := range from {
		to[http.CanonicalHeaderKey(k)] = v
	}
}

func copyHeaderExcluding(to, from http.Header, excludeHeaders map[string]bool) {
	for k, v := range from {
		// The http package converts header names to their canonical version.
		// Meaning that the lookup below will be done using the canonical version of the header.
		if _, ok := excludeHeaders[k]; !ok {
			to[http.CanonicalHeaderKey(k)] = v
		}
	}
}

func cloneHeader(h http.Header) http.Header {
	hh := make(http.Header)
	copyHeader(hh, h)
	return hh
}

func cloneHeaderExcluding(h http.Header, excludeList map[string]bool) http.Header {
	hh := make(http.Header)
	copyHeaderExcluding(hh, h, excludeList)
	return hh
}

// copies a stream with flushing on every successful read operation
// (similar to io.Copy but with flushing)
func copyStream(to flushedResponseWriter, from io.Reader, tracing *proxyTracing, span ot.Span) error {
	b := make([]byte, proxyBufferSize)

	for {
		l, rerr := from.Read(b)

		tracing.logStreamEvent(span, StreamBodyEvent, fmt.Sprintf("%d", l))

		if rerr != nil && rerr != io.EOF {
			return rerr
		}

		if l > 0 {
			_, werr := to.Write(b[:l])
			if werr != nil {
				return werr
			}

			to.Flush()
		}

		if rerr == io.EOF {
			return nil
		}
	}
}

// creates an outgoing http request to be forwarded to the resolved
// target based on the augmented incoming request
func mapRequest(r *http.Request, u *url.URL, host string, removeHopHeaders bool) (*http.Request, error) {
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}

	rr, err := http.NewRequestWithContext(r.Context(), r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	rr.ContentLength = r.ContentLength
	if removeHopHeaders {
		rr.Header = cloneHeaderExcluding(r.Header, hopHeaders)
	} else {
		rr.Header = cloneHeader(r.Header)
	}
	rr.Host = host

	// If there is basic auth configured in the URL we add them as headers
	if u.User != nil {
		up := u.User.String()
		upBase64 := base64.StdEncoding.EncodeToString([]byte(up))
		rr.Header.Set("Authorization", fmt.Sprintf("Basic %s", upBase64))
	}

	return rr, nil
}

type viaductDialer struct {
	net.Dialer
	f func(ctx stdlibcontext.Context, network, addr string) (net.Conn, error)
}

func newViaductDialer(d net.Dialer) *viaductDialer {
	return &viaductDialer{
		Dialer: d,
		f:      d.DialContext,
	}
}

// DialContext wraps net.Dialer's DialContext and marks the errors that
// happened during the TCP or TLS handshake, before any HTTP data was
// sent, so that they can be told apart from the roundtrip failures.
func (dc *viaductDialer) DialContext(ctx stdlibcontext.Context, network, addr string) (net.Conn, error) {
	span := ot.SpanFromContext(ctx)
	if span != nil {
		span.LogKV("dial_context", "start")
	}

	con, err := dc.f(ctx, network, addr)
	if span != nil {
		span.LogKV("dial_context", "done")
	}

	if err != nil {
		return nil, &proxyError{
			err:           err,
			code:          http.StatusBadGateway,
			dialingFailed: true, // indicate error happened before http
		}
	} else if cerr := ctx.Err(); cerr != nil {
		return nil, &proxyError{
			err:  fmt.Errorf("error from dial context: %w", cerr),
			code: http.StatusGatewayTimeout,
		}
	}

	return con, nil
}

// WithParams returns an initialized Proxy.
func WithParams(p Params) *Proxy {
	if p.IdleConnectionsPerHost <= 0 {
		p.IdleConnectionsPerHost = DefaultIdleConnsPerHost
	}

	if p.CloseIdleConnsPeriod == 0 {
		p.CloseIdleConnsPeriod = DefaultCloseIdleConnsPeriod
	}

	if p.ResponseHeaderTimeout == 0 {
		p.ResponseHeaderTimeout = DefaultResponseHeaderTimeout
	}

	if p.ExpectContinueTimeout == 0 {
		p.ExpectContinueTimeout = DefaultExpectContinueTimeout
	}

	tr := &http.Transport{
		DialContext: newViaductDialer(net.Dialer{
			Timeout:   p.Timeout,
			KeepAlive: p.KeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   p.TLSHandshakeTimeout,
		ResponseHeaderTimeout: p.ResponseHeaderTimeout,
		ExpectContinueTimeout: p.ExpectContinueTimeout,
		MaxIdleConns:          p.MaxIdleConns,
		MaxIdleConnsPerHost:   p.IdleConnectionsPerHost,
		IdleConnTimeout:       p.CloseIdleConnsPeriod,
	}

	if p.ClientTLS != nil {
		tr.TLSClientConfig = p.ClientTLS
	}

	quit := make(chan struct{})
	// We need this to reliably fade on DNS change, which is right
	// now not fixed with IdleConnTimeout in the http.Transport.
	// https://github.com/golang/go/issues/23427
	if p.CloseIdleConnsPeriod > 0 {
		go func() {
			for {
				select {
				case <-time.After(p.CloseIdleConnsPeriod):
					tr.CloseIdleConnections()
				case <-quit:
					return
				}
			}
		}()
	}

	if p.Flags.Insecure() {
		if tr.TLSClientConfig == nil {
			/* #nosec */
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		} else {
			/* #nosec */
			tr.TLSClientConfig.InsecureSkipVerify = true
		}
	}

	defaultHTTPStatus := http.StatusNotFound
	if p.DefaultHTTPStatus >= http.StatusContinue && p.DefaultHTTPStatus <= http.StatusNetworkAuthenticationRequired {
		defaultHTTPStatus = p.DefaultHTTPStatus
	}

	var queue *jobqueue.Stack
	if p.MaxConcurrency > 0 {
		queue = jobqueue.With(jobqueue.Options{
			MaxConcurrency: p.MaxConcurrency,
			MaxStackSize:   p.MaxQueueSize,
			Timeout:        p.QueueTimeout,
		})
	}

	hostname = os.Getenv("HOSTNAME")

	pr := &Proxy{
		routing:           p.Routing,
		roundTripper:      tr,
		localHandler:      p.LocalHandler,
		flags:             p.Flags,
		metrics:           metrics.Default,
		log:               &logging.DefaultLog{},
		quit:              quit,
		queue:             queue,
		defaultHTTPStatus: defaultHTTPStatus,
		tracing:           newProxyTracing(p.OpenTracing),
		accessLogDisabled: p.AccessLogDisabled,
	}

	globals := make([]filters.Filter, 0, len(p.Globals)+5)
	globals = append(globals, p.Globals...)
	globals = append(
		globals,
		forwardPath{},
		routeToURL{},
		&loadBalancerClient{registry: p.LoadBalancer},
		&forwardBackend{proxy: pr},
		&httpBackend{proxy: pr},
	)
	pr.globals = globals

	return pr
}

// stateBagKey of the span of the backend roundtrip
const proxySpanKey = "#proxySpan"

func proxySpanFromBag(bag map[string]interface{}) ot.Span {
	span, _ := bag[proxySpanKey].(ot.Span)
	return span
}

func (p *Proxy) makeBackendRequest(ctx filters.FilterContext) (*http.Response, error) {
	req, err := mapRequest(ctx.Request(), ctx.BackendURL(), ctx.OutgoingHost(), p.flags.HopHeadersRemoval())
	if err != nil {
		p.log.Errorf("could not map backend request, caused by: %v", err)
		return nil, &proxyError{err: err}
	}

	var proxySpan ot.Span
	if parent := ot.SpanFromContext(req.Context()); parent != nil {
		proxySpan = p.tracing.tracer.StartSpan("proxy", ot.ChildOf(parent.Context()))
	} else {
		proxySpan = p.tracing.tracer.StartSpan("proxy")
	}

	p.tracing.
		setTag(proxySpan, SpanKindTag, SpanKindClient).
		setTag(proxySpan, RouteIDTag, ctx.RouteID())

	u := cloneURL(req.URL)
	u.RawQuery = ""
	p.setCommonSpanInfo(u, req, proxySpan)

	carrier := ot.HTTPHeadersCarrier(req.Header)
	_ = p.tracing.tracer.Inject(proxySpan.Context(), ot.HTTPHeaders, carrier)

	req = req.WithContext(ot.ContextWithSpan(req.Context(), proxySpan))
	ctx.StateBag()[proxySpanKey] = proxySpan

	p.metrics.IncCounter("outgoing." + req.Proto)
	proxySpan.LogKV("http_roundtrip", StartEvent)
	backendStart := time.Now()
	response, err := p.roundTripper.RoundTrip(req)
	proxySpan.LogKV("http_roundtrip", EndEvent)
	if err != nil {
		p.metrics.IncErrorsBackend(ctx.RouteID())
		p.tracing.setTag(proxySpan, ErrorTag, true)
		proxySpan.LogKV(
			"event", "error",
			"message", err.Error())

		if perr, ok := err.(*proxyError); ok {
			p.log.Errorf("failed to do backend roundtrip to %s: %v", ctx.BackendURL(), perr)
			p.tracing.setTag(proxySpan, HTTPStatusCodeTag, uint16(perr.code))
			return nil, perr
		} else if nerr, ok := err.(net.Error); ok {
			p.log.Errorf("net.Error during backend roundtrip to %s: timeout=%v: %v", ctx.BackendURL(), nerr.Timeout(), err)
			if nerr.Timeout() {
				p.tracing.setTag(proxySpan, HTTPStatusCodeTag, uint16(http.StatusGatewayTimeout))
				return nil, &proxyError{err: err, code: http.StatusGatewayTimeout}
			}

			p.tracing.setTag(proxySpan, HTTPStatusCodeTag, uint16(http.StatusServiceUnavailable))
			return nil, &proxyError{err: err, code: http.StatusServiceUnavailable}
		}

		if cerr := req.Context().Err(); cerr != nil {
			// deadline exceeded or canceled in stdlib, client closed request
			return nil, &proxyError{err: cerr, code: 499}
		}

		p.log.Errorf("unexpected error during backend roundtrip: %v", err)
		return nil, &proxyError{err: err}
	}

	if response.StatusCode >= http.StatusInternalServerError {
		p.metrics.MeasureBackend5xx(backendStart)
	}

	p.metrics.MeasureBackend(ctx.RouteID(), backendStart)
	p.metrics.MeasureBackendHost(ctx.BackendURL().Host, backendStart)
	p.tracing.setTag(proxySpan, HTTPStatusCodeTag, uint16(response.StatusCode))
	return response, nil
}

// runChain executes the filters of the request, recovering from panics
// of the individual filters.
func (p *Proxy) runChain(ctx *filterContext, f []filters.Filter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 1024)
			l := runtime.Stack(buf, false)
			p.log.Errorf("panic in the filter chain of route %s: %v (%s)", ctx.RouteID(), r, buf[:l])
			err = &proxyError{err: fmt.Errorf("panic in the filter chain: %v", r)}
		}
	}()

	return filters.NewChain(f).Filter(ctx)
}

func (p *Proxy) do(ctx *filterContext) error {
	lookupStart := time.Now()
	route, params := p.routing.Route(ctx.request)
	p.metrics.MeasureRouteLookup(lookupStart)
	if route == nil {
		p.metrics.IncRoutingFailures()
		p.log.Debugf("could not find a route for %v", ctx.request.URL)
		return errRouteLookupFailed
	}

	ctx.applyRoute(route, params, p.flags.PreserveHost())

	chainFilters := make([]filters.Filter, 0, len(route.Filters)+len(p.globals))
	chainFilters = append(chainFilters, route.Filters...)
	chainFilters = append(chainFilters, p.globals...)
	filters.SortByOrder(chainFilters)

	chainStart := time.Now()
	err := p.runChain(ctx, chainFilters)
	p.metrics.MeasureAllFiltersRequest(route.ID, chainStart)
	if err != nil {
		return err
	}

	ctx.ensureDefaultResponse()
	return nil
}

func (p *Proxy) serveResponse(ctx *filterContext) {
	start := time.Now()
	proxySpan := proxySpanFromBag(ctx.stateBag)
	p.tracing.logStreamEvent(proxySpan, StreamHeadersEvent, StartEvent)
	copyHeader(ctx.responseWriter.Header(), ctx.response.Header)
	p.tracing.logStreamEvent(proxySpan, StreamHeadersEvent, EndEvent)

	if err := ctx.request.Context().Err(); err != nil {
		// deadline exceeded or canceled in stdlib, client closed request
		p.log.Infof("client request: %v", err)
		ctx.response.StatusCode = 499
		p.tracing.setTag(proxySpan, ClientRequestStateTag, ClientRequestCanceled)
	}

	ctx.responseWriter.WriteHeader(ctx.response.StatusCode)
	ctx.responseWriter.Flush()
	err := copyStream(ctx.responseWriter, ctx.response.Body, p.tracing, proxySpan)
	if err != nil {
		p.metrics.IncErrorsStreaming(ctx.RouteID())
		p.log.Errorf("error while copying the response stream: %v", err)
	} else {
		p.metrics.MeasureResponse(ctx.response.StatusCode, ctx.request.Method, ctx.RouteID(), start)
	}
}

// send a premature error response
func (p *Proxy) sendError(ctx *filterContext, id string, code int) {
	http.Error(ctx.responseWriter, http.StatusText(code), code)
	p.metrics.MeasureServe(
		id,
		ctx.request.Host,
		ctx.request.Method,
		code,
		ctx.startServe,
	)
}

func (p *Proxy) errorResponse(ctx *filterContext, err error) {
	id := unknownRouteID
	var backend *url.URL
	if ctx.route != nil {
		id = ctx.route.ID
		backend = ctx.route.Backend
	}

	code := http.StatusInternalServerError
	perr, isProxyError := err.(*proxyError)
	if isProxyError && perr.code != 0 {
		code = perr.code
	}

	if isProxyError && len(perr.additionalHeader) > 0 {
		copyHeader(ctx.responseWriter.Header(), perr.additionalHeader)
	}

	var serr *filters.StatusError
	switch {
	case err == errRouteLookupFailed:
		code = p.defaultHTTPStatus
	case errors.As(err, &serr):
		code = serr.Code
		p.log.Debugf("route %s failed with explicit status: %v", id, err)
	case errors.Is(err, circuitfilters.ErrOpen):
		code = http.StatusServiceUnavailable
		ctx.responseWriter.Header().Set("X-Circuit-Open", "true")
	case errors.Is(err, circuitfilters.ErrTimeout):
		code = http.StatusGatewayTimeout
	default:
		p.log.Errorf("error while proxying, route %s with backend %v, status code %d: %v", id, backend, code, err)
	}

	if span := ot.SpanFromContext(ctx.request.Context()); span != nil {
		p.tracing.setTag(span, HTTPStatusCodeTag, uint16(code))
	}

	p.sendError(ctx, id, code)
}

// http.Handler implementation
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lw := logging.NewLoggingWriter(w)
	p.metrics.IncCounter("incoming." + r.Proto)

	var span ot.Span
	wireContext, err := p.tracing.tracer.Extract(ot.HTTPHeaders, ot.HTTPHeadersCarrier(r.Header))
	if err == nil {
		span = p.tracing.tracer.StartSpan(p.tracing.initialOperationName, ext.RPCServerOption(wireContext))
	} else {
		span = p.tracing.tracer.StartSpan(p.tracing.initialOperationName)
		err = nil
	}

	p.tracing.setTag(span, SpanKindTag, SpanKindServer)
	p.setCommonSpanInfo(r.URL, r, span)
	r = r.WithContext(ot.ContextWithSpan(r.Context(), span))

	ctx := newContext(lw, r, p.flags.PreserveOriginal(), p.metrics, p.log)

	defer func() {
		if proxySpan := proxySpanFromBag(ctx.stateBag); proxySpan != nil {
			proxySpan.Finish()
		}

		span.Finish()
	}()

	defer func() {
		if p.accessLogDisabled {
			return
		}

		logging.LogAccess(&logging.AccessEntry{
			Request:      r,
			ResponseSize: lw.GetBytes(),
			StatusCode:   lw.GetCode(),
			RequestTime:  ctx.startServe,
			Duration:     time.Since(ctx.startServe),
			RouteID:      ctx.RouteID(),
		})
	}()

	defer func() {
		if ctx.response != nil && ctx.response.Body != nil {
			if err := ctx.response.Body.Close(); err != nil {
				p.log.Errorf("error during closing the response body: %v", err)
			}
		}
	}()

	if p.queue != nil {
		done, qerr := p.queue.Wait()
		if done != nil {
			defer done()
		}

		switch qerr {
		case nil:
		case jobqueue.ErrStackFull:
			err = errQueueFull
		case jobqueue.ErrTimeout:
			err = errQueueTimeout
		default:
			err = &proxyError{err: qerr}
		}
	}

	if err == nil {
		err = p.do(ctx)
	}

	if err != nil {
		p.tracing.setTag(span, ErrorTag, true)
		p.errorResponse(ctx, err)
		return
	}

	p.serveResponse(ctx)
	p.metrics.MeasureServe(
		ctx.RouteID(),
		r.Host,
		r.Method,
		ctx.response.StatusCode,
		ctx.startServe,
	)
}

// Close stops closing idle connections of the transport and releases
// the request queue.
func (p *Proxy) Close() error {
	close(p.quit)
	if p.queue != nil {
		p.queue.Close()
	}

	p.roundTripper.CloseIdleConnections()
	return nil
}

func (p *Proxy) setCommonSpanInfo(u *url.URL, r *http.Request, s ot.Span) {
	p.tracing.
		setTag(s, ComponentTag, "viaduct").
		setTag(s, HTTPUrlTag, u.String()).
		setTag(s, HTTPMethodTag, r.Method).
		setTag(s, HostnameTag, hostname).
		setTag(s, HTTPRemoteAddrTag, r.RemoteAddr).
		setTag(s, HTTPPathTag, u.Path).
		setTag(s, HTTPHostTag, r.Host)
}
