// Package proxytest provides a proxy instance with a full routing setup
// over an httptest server, for testing filters and proxy behavior.
package proxytest

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/filters/builtin"
	"github.com/viaduct-io/viaduct/logging/loggingtest"
	"github.com/viaduct-io/viaduct/predicates/header"
	"github.com/viaduct-io/viaduct/predicates/host"
	"github.com/viaduct-io/viaduct/predicates/methods"
	"github.com/viaduct-io/viaduct/predicates/path"
	"github.com/viaduct-io/viaduct/predicates/query"
	"github.com/viaduct-io/viaduct/proxy"
	"github.com/viaduct-io/viaduct/routedef"
	"github.com/viaduct-io/viaduct/routing"
	"github.com/viaduct-io/viaduct/routing/testdataclient"
)

type TestProxy struct {
	URL  string
	Port string
	Log  *loggingtest.Logger

	dc      *testdataclient.Client
	routing *routing.Routing
	proxy   *proxy.Proxy
	server  *httptest.Server
}

type TestClient struct {
	*http.Client
}

type Config struct {
	RoutingOptions routing.Options
	ProxyParams    proxy.Params
	Routes         []*routedef.RouteDefinition
	Doc            string        // Route document in YAML format, used when Routes is not set
	WaitTime       time.Duration // Optional wait time, defaults to 3s if zero
}

// DefaultPredicates returns the predicate specifications available to
// the test routes.
func DefaultPredicates() []routing.PredicateSpec {
	return []routing.PredicateSpec{
		path.New(),
		host.New(),
		methods.New(),
		header.New(),
		query.New(),
	}
}

func WithParams(fr filters.Registry, proxyParams proxy.Params, routes ...*routedef.RouteDefinition) *TestProxy {
	return Config{
		RoutingOptions: routing.Options{FilterRegistry: fr},
		ProxyParams:    proxyParams,
		Routes:         routes,
	}.Create()
}

func New(fr filters.Registry, routes ...*routedef.RouteDefinition) *TestProxy {
	return WithParams(fr, proxy.Params{CloseIdleConnsPeriod: -time.Second}, routes...)
}

// NewDoc creates a test proxy from a route document in YAML format.
func NewDoc(fr filters.Registry, doc string) *TestProxy {
	return Config{
		RoutingOptions: routing.Options{FilterRegistry: fr},
		ProxyParams:    proxy.Params{CloseIdleConnsPeriod: -time.Second},
		Doc:            doc,
	}.Create()
}

func (c Config) Create() *TestProxy {
	waitTime := 3 * time.Second
	if c.WaitTime > 0 {
		waitTime = c.WaitTime
	}

	tl := loggingtest.New()

	var dc *testdataclient.Client
	if len(c.RoutingOptions.DataClients) == 0 {
		if c.Doc != "" {
			var err error
			dc, err = testdataclient.NewDoc(c.Doc)
			if err != nil {
				panic(err)
			}
		} else {
			dc = testdataclient.New(c.Routes)
		}

		c.RoutingOptions.DataClients = []routing.DataClient{dc}
	}

	if c.RoutingOptions.FilterRegistry == nil {
		c.RoutingOptions.FilterRegistry = builtin.MakeRegistry()
	}

	if len(c.RoutingOptions.Predicates) == 0 {
		c.RoutingOptions.Predicates = DefaultPredicates()
	}

	c.RoutingOptions.Log = tl

	rt := routing.New(c.RoutingOptions)
	c.ProxyParams.Routing = rt

	pr := proxy.WithParams(c.ProxyParams)
	tsp := httptest.NewServer(pr)

	if err := tl.WaitFor("route settings applied", waitTime); err != nil {
		panic(err)
	}

	_, port, _ := net.SplitHostPort(tsp.Listener.Addr().String())

	return &TestProxy{
		URL:     tsp.URL,
		Port:    port,
		Log:     tl,
		dc:      dc,
		routing: rt,
		proxy:   pr,
		server:  tsp,
	}
}

func (p *TestProxy) Client() *TestClient {
	return &TestClient{p.server.Client()}
}

func (p *TestProxy) ClientWithoutRedirectFollow() *TestClient {
	client := p.server.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &TestClient{client}
}

func (p *TestProxy) Close() error {
	p.Log.Close()
	p.routing.Close()
	p.server.Close()
	return p.proxy.Close()
}

// GetBody issues a GET to the specified URL, reads and closes response
// body and returns response, response body bytes and error if any.
func (c *TestClient) GetBody(url string) (rsp *http.Response, body []byte, err error) {
	rsp, err = c.Get(url)
	if err != nil {
		return
	}
	defer rsp.Body.Close()

	body, err = io.ReadAll(rsp.Body)
	return
}
