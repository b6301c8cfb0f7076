package proxy

import (
	ot "github.com/opentracing/opentracing-go"
)

// Tags and event names used on the ingress and proxy spans.
const (
	ClientRequestStateTag = "client.request"
	ComponentTag          = "component"
	ErrorTag              = "error"
	HostnameTag           = "hostname"
	HTTPHostTag           = "http.host"
	HTTPMethodTag         = "http.method"
	HTTPRemoteAddrTag     = "http.remote_addr"
	HTTPPathTag           = "http.path"
	HTTPUrlTag            = "http.url"
	HTTPStatusCodeTag     = "http.status_code"
	RouteIDTag            = "viaduct.route_id"
	SpanKindTag           = "span.kind"

	ClientRequestCanceled = "canceled"
	SpanKindClient        = "client"
	SpanKindServer        = "server"

	EndEvent           = "end"
	StartEvent         = "start"
	StreamBodyEvent    = "streamBody.byte"
	StreamHeadersEvent = "stream_Headers"
)

// OpenTracingParams contains the tracing instrumentation settings of
// the proxy.
type OpenTracingParams struct {

	// Tracer is the tracer of this proxy instance. Noop when not set.
	Tracer ot.Tracer

	// InitialSpan overrides the name of the ingress span.
	// Default: "ingress".
	InitialSpan string

	// LogStreamEvents enables span logs marking the times when the
	// response headers and the payload are streamed to the client.
	LogStreamEvents bool

	// ExcludeTags lists span tags that the proxy must not set.
	ExcludeTags []string
}

type proxyTracing struct {
	tracer               ot.Tracer
	initialOperationName string
	logStreamEvents      bool
	excludeTags          map[string]bool
}

func newProxyTracing(p *OpenTracingParams) *proxyTracing {
	if p == nil {
		p = &OpenTracingParams{}
	}

	if p.InitialSpan == "" {
		p.InitialSpan = "ingress"
	}

	if p.Tracer == nil {
		p.Tracer = &ot.NoopTracer{}
	}

	excludedTags := map[string]bool{}
	for _, t := range p.ExcludeTags {
		excludedTags[t] = true
	}

	return &proxyTracing{
		tracer:               p.Tracer,
		initialOperationName: p.InitialSpan,
		logStreamEvents:      p.LogStreamEvents,
		excludeTags:          excludedTags,
	}
}

func (t *proxyTracing) setTag(span ot.Span, key string, value interface{}) *proxyTracing {
	if span == nil {
		return t
	}

	if !t.excludeTags[key] {
		span.SetTag(key, value)
	}

	return t
}

func (t *proxyTracing) logStreamEvent(span ot.Span, eventName, eventValue string) {
	if span == nil || !t.logStreamEvents {
		return
	}

	span.LogKV(eventName, eventValue)
}
