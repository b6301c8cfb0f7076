package proxy

import (
	"fmt"
	"math"
	"net/http"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/filters/serve"
	"github.com/viaduct-io/viaduct/loadbalancer"
)

// Backend URI schemes with a special meaning to the routing filters of
// the proxy. The lb scheme is defined by the loadbalancer package.
const (
	SchemeForward = "forward"
	SchemeHTTP    = "http"
	SchemeHTTPS   = "https"
)

// Orders of the global filters of the proxy. Route filters without an
// explicit order run at their declaration position, counted from one,
// so the proxy's own filters are spread around them: the forward path
// filter runs before them, the target resolution after them, and the
// dispatching filters last.
const (
	ForwardPathOrder  = 0
	RouteToURLOrder   = 10000
	LoadBalancerOrder = 10100
	RoutingOrder      = math.MaxInt32
)

// forwardPath copies the path of a forward backend onto the request, so
// that the local handler receives the path that the route declares.
// Path filters of the route run later and can still change it.
type forwardPath struct{}

func (forwardPath) Order() int { return ForwardPathOrder }

func (forwardPath) Filter(ctx filters.FilterContext, next filters.Chain) error {
	if u := ctx.BackendURL(); u != nil && u.Scheme == SchemeForward && u.Path != "" {
		ctx.Request().URL.Path = u.Path
	}

	return next.Filter(ctx)
}

// routeToURL resolves the final target of the backend dispatch: the
// scheme and host of the route's backend combined with the path and
// query of the request as the route filters left them.
type routeToURL struct{}

func (routeToURL) Order() int { return RouteToURLOrder }

func (routeToURL) Filter(ctx filters.FilterContext, next filters.Chain) error {
	u := ctx.BackendURL()
	if u == nil {
		return next.Filter(ctx)
	}

	req := ctx.Request()
	target := cloneURL(u)
	target.Path = req.URL.Path
	target.RawPath = req.URL.RawPath
	target.RawQuery = req.URL.RawQuery
	ctx.SetBackendURL(target)
	return next.Filter(ctx)
}

// loadBalancerClient replaces the lb scheme of the target with a
// concrete endpoint of the referenced group.
type loadBalancerClient struct {
	registry *loadbalancer.Registry
}

func (f *loadBalancerClient) Order() int { return LoadBalancerOrder }

func (f *loadBalancerClient) Filter(ctx filters.FilterContext, next filters.Chain) error {
	u := ctx.BackendURL()
	if u == nil || u.Scheme != loadbalancer.Scheme {
		return next.Filter(ctx)
	}

	group := f.registry.Get(u.Host)
	if group == nil {
		return filters.NewStatusError(
			http.StatusServiceUnavailable,
			fmt.Sprintf("no endpoints for load balancer group %q", u.Host),
		)
	}

	e := group.Next()
	u.Scheme = e.Scheme
	u.Host = e.Host
	return next.Filter(ctx)
}

// forwardBackend dispatches requests with a forward backend through the
// local handler of the proxy.
type forwardBackend struct {
	proxy *Proxy
}

func (f *forwardBackend) Order() int { return RoutingOrder }

func (f *forwardBackend) Filter(ctx filters.FilterContext, next filters.Chain) error {
	u := ctx.BackendURL()
	if u == nil || u.Scheme != SchemeForward || ctx.Routed() {
		return next.Filter(ctx)
	}

	ctx.SetRouted()

	h := f.proxy.localHandler
	if h == nil {
		return fmt.Errorf("no local handler to forward %v to", u)
	}

	ctx.SetResponse(serve.ServeResponse(ctx.Request(), h))
	return next.Filter(ctx)
}

// httpBackend dispatches requests with an http or https backend through
// the outbound transport of the proxy. The status and the headers of
// the backend response are visible to the response work of the filters
// that wrap this one, the body is streamed to the client by the proxy
// after the chain has completed.
type httpBackend struct {
	proxy *Proxy
}

func (f *httpBackend) Order() int { return RoutingOrder }

func (f *httpBackend) Filter(ctx filters.FilterContext, next filters.Chain) error {
	u := ctx.BackendURL()
	if u == nil || u.Scheme != SchemeHTTP && u.Scheme != SchemeHTTPS || ctx.Routed() {
		return next.Filter(ctx)
	}

	ctx.SetRouted()

	rsp, err := f.proxy.makeBackendRequest(ctx)
	if err != nil {
		return err
	}

	ctx.SetResponse(rsp)
	return next.Filter(ctx)
}
