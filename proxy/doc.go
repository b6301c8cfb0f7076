/*
Package proxy implements an HTTP reverse proxy based on continuously
updated viaduct routing rules.

The proxy matches each incoming request against the current routing
table and processes it with the filter chain of the first matching
route. The chain typically augments the request, forwards it to the
backend of the route and augments the response on the way back to the
client. When no route matches, the proxy responds with a configured
status code, 404 by default.

# Request Flow

1. route matching:

The incoming request is matched against the routing table, implemented
in viaduct/routing. The result is the route with the lowest order whose
predicates all hold, ties resolved by the declaration order.

2. the filter chain:

The filters of the matched route are merged with the global filters of
the proxy and sorted by their order, route filters without an explicit
order keeping their declaration position. Each filter receives the
shared filter context and the remainder of the chain. Work done before
calling the remainder sees the request on its way to the backend, work
done after it sees the response. A filter may also decide not to call
the remainder and serve a response on its own, or fail the request,
in which case the filters that wrapped the call observe the error and
the chain is abandoned.

3. dispatching:

The proxy takes part in every chain with its own filters. They resolve
the final target from the backend of the route and the request URL as
the preceding filters left it, select an endpoint of the referenced
group for load balanced backends, and dispatch at the innermost
position of the chain: requests of http and https backends are mapped
to an outgoing request and executed over the shared transport, requests
of forward backends are handed to the local handler of the proxy. The
response is stashed on the context for the response work of the outer
filters.

4. serving:

Once the chain has completed, the proxy streams the stashed response to
the client, flushing after every read from the backend. When the chain
failed, the proxy maps the failure to an HTTP status instead: backend
dial failures to 502 Bad Gateway, backend timeouts to 504 Gateway
Timeout, other backend connection failures to 503 Service Unavailable,
and failures with an explicit status, e.g. a rejecting circuit breaker,
to the status they carry.

# Bounding Concurrency

When configured with a maximum concurrency, the proxy admits up to that
many requests at a time and parks arriving requests in a LIFO queue.
Requests over the queue capacity are rejected with 503, requests whose
queue time exceeds the configured timeout with 502. Serving the
youngest queued request first keeps the latency of the requests that
still can meet their deadline low while shedding the ones that
most likely cannot.

The proxy also collects detailed performance metrics of the route
lookup, the filter chains, the backend roundtrips and the complete
serving of each request, and participates in distributed traces with an
ingress span per request and a client span per backend roundtrip. See
the viaduct/metrics package and the OpenTracingParams type.
*/
package proxy
