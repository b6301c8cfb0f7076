package proxy_test

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	basic "github.com/opentracing/basictracer-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/filters/builtin"
	"github.com/viaduct-io/viaduct/loadbalancer"
	"github.com/viaduct-io/viaduct/proxy"
	"github.com/viaduct-io/viaduct/proxy/proxytest"
)

func TestProxyForwardsToBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("X-Echo-Method", r.Method)
		w.Header().Set("X-Echo-Path", r.URL.Path)
		w.Header().Set("X-Echo-Query", r.URL.RawQuery)
		w.Write(body)
	}))
	defer backend.Close()

	p := proxytest.NewDoc(builtin.MakeRegistry(), fmt.Sprintf(`
- id: all
  uri: %s
`, backend.URL))
	defer p.Close()

	rsp, err := p.Client().Post(p.URL+"/orders/42?verbose=1", "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	defer rsp.Body.Close()

	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, "POST", rsp.Header.Get("X-Echo-Method"))
	assert.Equal(t, "/orders/42", rsp.Header.Get("X-Echo-Path"))
	assert.Equal(t, "verbose=1", rsp.Header.Get("X-Echo-Query"))
	assert.Equal(t, "payload", string(body))
}

func tagRequest(tag string) filters.Filter {
	return filters.FilterFunc(func(ctx filters.FilterContext, next filters.Chain) error {
		ctx.Request().Header.Add("X-Chain-Tags", tag)
		return next.Filter(ctx)
	})
}

func TestFilterOrderAcrossGlobals(t *testing.T) {
	tags := make(chan []string, 1)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tags <- r.Header.Values("X-Chain-Tags")
	}))
	defer backend.Close()

	p := proxytest.Config{
		ProxyParams: proxy.Params{
			Globals: []filters.Filter{
				&filters.OrderedFilter{Wrapped: tagRequest("global-first"), FilterOrder: 0},
				&filters.OrderedFilter{Wrapped: tagRequest("global-last"), FilterOrder: 10},
			},
		},
		Doc: fmt.Sprintf(`
- id: tagged
  uri: %s
  filters:
    - addRequestHeader=X-Chain-Tags,route-first
    - addRequestHeader=X-Chain-Tags,route-second
`, backend.URL),
	}.Create()
	defer p.Close()

	rsp, err := p.Client().Get(p.URL)
	require.NoError(t, err)
	rsp.Body.Close()

	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(
		t,
		[]string{"global-first", "route-first", "route-second", "global-last"},
		<-tags,
	)
}

func TestRoutePrecedence(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	p := proxytest.NewDoc(builtin.MakeRegistry(), fmt.Sprintf(`
- id: api
  uri: %s
  predicates:
    - Path=/api/**
  filters:
    - setResponseHeader=X-Winner,api

- id: users
  uri: %s
  order: -1
  predicates:
    - Path=/api/users/**
  filters:
    - setResponseHeader=X-Winner,users

- id: tie-first
  uri: %s
  predicates:
    - Path=/tie/**
  filters:
    - setResponseHeader=X-Winner,tie-first

- id: tie-second
  uri: %s
  predicates:
    - Path=/tie/**
  filters:
    - setResponseHeader=X-Winner,tie-second
`, backend.URL, backend.URL, backend.URL, backend.URL))
	defer p.Close()

	for _, tt := range []struct {
		path   string
		winner string
	}{
		{"/api/orders", "api"},
		{"/api/users/1", "users"},
		{"/tie/break", "tie-first"},
	} {
		rsp, err := p.Client().Get(p.URL + tt.path)
		require.NoError(t, err)
		rsp.Body.Close()

		assert.Equal(t, tt.winner, rsp.Header.Get("X-Winner"), tt.path)
	}
}

func TestPathVariableAcrossFilters(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Path", r.URL.Path)
		w.Header().Set("X-Echo-Segment", r.Header.Get("X-Segment"))
	}))
	defer backend.Close()

	p := proxytest.NewDoc(builtin.MakeRegistry(), fmt.Sprintf(`
- id: rename
  uri: %s
  predicates:
    - Path=/foo/{segment}
  filters:
    - setPath=/bar/{segment}
    - setRequestHeader=X-Segment,{segment}
`, backend.URL))
	defer p.Close()

	rsp, err := p.Client().Get(p.URL + "/foo/hello")
	require.NoError(t, err)
	rsp.Body.Close()

	require.Equal(t, http.StatusOK, rsp.StatusCode)
	assert.Equal(t, "/bar/hello", rsp.Header.Get("X-Echo-Path"))
	assert.Equal(t, "hello", rsp.Header.Get("X-Echo-Segment"))
}

func TestPreserveHostFilter(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Host", r.Host)
	}))
	defer backend.Close()

	p := proxytest.NewDoc(builtin.MakeRegistry(), fmt.Sprintf(`
- id: plain
  uri: %s
  predicates:
    - Path=/plain

- id: preserved
  uri: %s
  predicates:
    - Path=/preserved
  filters:
    - preserveHost
`, backend.URL, backend.URL))
	defer p.Close()

	backendURL, err := url.Parse(backend.URL)
	require.NoError(t, err)
	proxyURL, err := url.Parse(p.URL)
	require.NoError(t, err)

	rsp, err := p.Client().Get(p.URL + "/plain")
	require.NoError(t, err)
	rsp.Body.Close()
	assert.Equal(t, backendURL.Host, rsp.Header.Get("X-Echo-Host"))

	rsp, err = p.Client().Get(p.URL + "/preserved")
	require.NoError(t, err)
	rsp.Body.Close()
	assert.Equal(t, proxyURL.Host, rsp.Header.Get("X-Echo-Host"))
}

func TestPreserveHostFlag(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Host", r.Host)
	}))
	defer backend.Close()

	p := proxytest.Config{
		ProxyParams: proxy.Params{Flags: proxy.PreserveHost},
		Doc: fmt.Sprintf(`
- id: all
  uri: %s
`, backend.URL),
	}.Create()
	defer p.Close()

	proxyURL, err := url.Parse(p.URL)
	require.NoError(t, err)

	rsp, err := p.Client().Get(p.URL)
	require.NoError(t, err)
	rsp.Body.Close()

	assert.Equal(t, proxyURL.Host, rsp.Header.Get("X-Echo-Host"))
}

func TestSetStatusKeepsBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer backend.Close()

	p := proxytest.NewDoc(builtin.MakeRegistry(), fmt.Sprintf(`
- id: teapot
  uri: %s
  filters:
    - setStatus=418
`, backend.URL))
	defer p.Close()

	rsp, body, err := p.Client().GetBody(p.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, rsp.StatusCode)
	assert.Equal(t, "hello", string(body))
}

func TestNoMatchingRoute(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	doc := fmt.Sprintf(`
- id: known
  uri: %s
  predicates:
    - Path=/known
`, backend.URL)

	t.Run("default status", func(t *testing.T) {
		p := proxytest.NewDoc(builtin.MakeRegistry(), doc)
		defer p.Close()

		rsp, err := p.Client().Get(p.URL + "/unknown")
		require.NoError(t, err)
		rsp.Body.Close()

		assert.Equal(t, http.StatusNotFound, rsp.StatusCode)
	})

	t.Run("configured status", func(t *testing.T) {
		p := proxytest.Config{
			ProxyParams: proxy.Params{DefaultHTTPStatus: http.StatusBadGateway},
			Doc:         doc,
		}.Create()
		defer p.Close()

		rsp, err := p.Client().Get(p.URL + "/unknown")
		require.NoError(t, err)
		rsp.Body.Close()

		assert.Equal(t, http.StatusBadGateway, rsp.StatusCode)
	})
}

func TestDefaultResponseWhenChainServesNothing(t *testing.T) {
	p := proxytest.NewDoc(builtin.MakeRegistry(), `
- id: silent
  uri: test://silent
`)
	defer p.Close()

	rsp, body, err := p.Client().GetBody(p.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, rsp.StatusCode)
	assert.Empty(t, body)
}

func TestRoutedRequestSkipsBackendDispatch(t *testing.T) {
	var backendCalls int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&backendCalls, 1)
	}))
	defer backend.Close()

	dispatch := filters.FilterFunc(func(ctx filters.FilterContext, next filters.Chain) error {
		ctx.SetRouted()
		ctx.SetResponse(&http.Response{
			StatusCode: http.StatusTeapot,
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader("custom dispatch")),
		})

		return next.Filter(ctx)
	})

	p := proxytest.Config{
		ProxyParams: proxy.Params{
			Globals: []filters.Filter{&filters.OrderedFilter{Wrapped: dispatch, FilterOrder: 20000}},
		},
		Doc: fmt.Sprintf(`
- id: taken-over
  uri: %s
`, backend.URL),
	}.Create()
	defer p.Close()

	rsp, body, err := p.Client().GetBody(p.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusTeapot, rsp.StatusCode)
	assert.Equal(t, "custom dispatch", string(body))
	assert.Zero(t, atomic.LoadInt32(&backendCalls))
}

func TestLoadBalancedBackend(t *testing.T) {
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("first"))
	}))
	defer first.Close()

	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("second"))
	}))
	defer second.Close()

	registry := loadbalancer.NewRegistry()
	require.NoError(t, registry.Set("payments", []string{first.URL, second.URL}))

	p := proxytest.Config{
		ProxyParams: proxy.Params{LoadBalancer: registry},
		Doc: `
- id: payments
  uri: lb://payments
  predicates:
    - Path=/charge

- id: broken
  uri: lb://nowhere
  predicates:
    - Path=/broken
`,
	}.Create()
	defer p.Close()

	seen := make(map[string]int)
	for i := 0; i < 4; i++ {
		rsp, body, err := p.Client().GetBody(p.URL + "/charge")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, rsp.StatusCode)
		seen[string(body)]++
	}

	assert.Equal(t, map[string]int{"first": 2, "second": 2}, seen)

	rsp, err := p.Client().Get(p.URL + "/broken")
	require.NoError(t, err)
	rsp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, rsp.StatusCode)
}

func TestBackendCredentialsFromRouteURI(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Authorization", r.Header.Get("Authorization"))
	}))
	defer backend.Close()

	u, err := url.Parse(backend.URL)
	require.NoError(t, err)
	u.User = url.UserPassword("user", "secret")

	p := proxytest.NewDoc(builtin.MakeRegistry(), fmt.Sprintf(`
- id: authenticated
  uri: %s
`, u.String()))
	defer p.Close()

	rsp, err := p.Client().Get(p.URL)
	require.NoError(t, err)
	rsp.Body.Close()

	expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:secret"))
	assert.Equal(t, expected, rsp.Header.Get("X-Echo-Authorization"))
}

func TestHopHeadersForwarding(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Echo-Proxy-Authorization", r.Header.Get("Proxy-Authorization"))
	}))
	defer backend.Close()

	doc := fmt.Sprintf(`
- id: all
  uri: %s
`, backend.URL)

	get := func(p *proxytest.TestProxy) string {
		req, err := http.NewRequest("GET", p.URL, nil)
		require.NoError(t, err)
		req.Header.Set("Proxy-Authorization", "Basic secret")

		rsp, err := p.Client().Do(req)
		require.NoError(t, err)
		rsp.Body.Close()

		return rsp.Header.Get("X-Echo-Proxy-Authorization")
	}

	t.Run("forwarded by default", func(t *testing.T) {
		p := proxytest.NewDoc(builtin.MakeRegistry(), doc)
		defer p.Close()

		assert.Equal(t, "Basic secret", get(p))
	})

	t.Run("removed with the flag", func(t *testing.T) {
		p := proxytest.Config{
			ProxyParams: proxy.Params{Flags: proxy.HopHeadersRemoval},
			Doc:         doc,
		}.Create()
		defer p.Close()

		assert.Empty(t, get(p))
	})
}

func TestQueueFullRejectsARequest(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}

		<-release
	}))
	defer backend.Close()

	p := proxytest.Config{
		ProxyParams: proxy.Params{
			MaxConcurrency: 1,
			MaxQueueSize:   1,
			QueueTimeout:   time.Minute,
		},
		Doc: fmt.Sprintf(`
- id: slow
  uri: %s
`, backend.URL),
	}.Create()
	defer p.Close()

	c := p.Client()
	statuses := make(chan int, 3)
	get := func() {
		rsp, err := c.Get(p.URL)
		if err != nil {
			statuses <- -1
			return
		}

		rsp.Body.Close()
		statuses <- rsp.StatusCode
	}

	// fill the only processing slot
	go get()
	<-entered

	// one of them overflows the queue of size one
	go get()
	go get()

	first := <-statuses
	assert.Equal(t, http.StatusServiceUnavailable, first)

	close(release)
	collected := []int{first, <-statuses, <-statuses}
	sort.Ints(collected)
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusServiceUnavailable}, collected)
}

func TestQueueTimeout(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case entered <- struct{}{}:
		default:
		}

		<-release
	}))
	defer backend.Close()

	p := proxytest.Config{
		ProxyParams: proxy.Params{
			MaxConcurrency: 1,
			MaxQueueSize:   1,
			QueueTimeout:   10 * time.Millisecond,
		},
		Doc: fmt.Sprintf(`
- id: slow
  uri: %s
`, backend.URL),
	}.Create()
	defer p.Close()

	c := p.Client()
	statuses := make(chan int, 2)
	get := func() {
		rsp, err := c.Get(p.URL)
		if err != nil {
			statuses <- -1
			return
		}

		rsp.Body.Close()
		statuses <- rsp.StatusCode
	}

	go get()
	<-entered

	// waits in the queue until the timeout kicks in
	go get()
	assert.Equal(t, http.StatusBadGateway, <-statuses)

	close(release)
	assert.Equal(t, http.StatusOK, <-statuses)
}

func TestTracingSpans(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	recorder := basic.NewInMemoryRecorder()
	tracer := basic.NewWithOptions(basic.Options{
		ShouldSample: func(uint64) bool { return true },
		Recorder:     recorder,
	})

	p := proxytest.Config{
		ProxyParams: proxy.Params{OpenTracing: &proxy.OpenTracingParams{Tracer: tracer}},
		Doc: fmt.Sprintf(`
- id: traced
  uri: %s
`, backend.URL),
	}.Create()
	defer p.Close()

	rsp, err := p.Client().Get(p.URL + "/hello")
	require.NoError(t, err)
	rsp.Body.Close()

	var ingress, backendSpan *basic.RawSpan

	// the ingress span finishes after the response has been streamed
	require.Eventually(t, func() bool {
		ingress, backendSpan = nil, nil
		spans := recorder.GetSpans()
		for i := range spans {
			switch spans[i].Operation {
			case "ingress":
				ingress = &spans[i]
			case "proxy":
				backendSpan = &spans[i]
			}
		}

		return ingress != nil && backendSpan != nil
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, ingress.Context.SpanID, backendSpan.ParentSpanID)
	assert.Equal(t, "server", ingress.Tags["span.kind"])
	assert.Equal(t, "client", backendSpan.Tags["span.kind"])
	assert.Equal(t, "traced", backendSpan.Tags["viaduct.route_id"])
	assert.Equal(t, "viaduct", backendSpan.Tags["component"])
}
