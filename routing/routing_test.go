package routing_test

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/AlexanderYastrebov/noleak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/filters/filtertest"
	"github.com/viaduct-io/viaduct/logging/loggingtest"
	"github.com/viaduct-io/viaduct/predicates/host"
	"github.com/viaduct-io/viaduct/predicates/methods"
	"github.com/viaduct-io/viaduct/predicates/path"
	"github.com/viaduct-io/viaduct/routedef"
	"github.com/viaduct-io/viaduct/routing"
	"github.com/viaduct-io/viaduct/routing/testdataclient"
)

const (
	pollTimeout = 12 * time.Millisecond
	waitTimeout = 3 * time.Second
)

func TestMain(m *testing.M) {
	os.Exit(noleak.CheckMain(m))
}

type testRouting struct {
	log     *loggingtest.Logger
	routing *routing.Routing
}

func newTestRoutingWithOptions(t *testing.T, o routing.Options) *testRouting {
	t.Helper()

	tl := loggingtest.New()
	tl.Mute = true
	o.Log = tl
	o.PollTimeout = pollTimeout
	if o.Predicates == nil {
		o.Predicates = []routing.PredicateSpec{path.New(), host.New(), methods.New()}
	}

	rt := routing.New(o)
	t.Cleanup(rt.Close)
	t.Cleanup(tl.Close)

	tr := &testRouting{log: tl, routing: rt}
	tr.waitForSettings(t, 1)
	return tr
}

func newTestRouting(t *testing.T, dc routing.DataClient) *testRouting {
	t.Helper()
	return newTestRoutingWithOptions(t, routing.Options{DataClients: []routing.DataClient{dc}})
}

func (tr *testRouting) waitForSettings(t *testing.T, count int) {
	t.Helper()
	require.NoError(t, tr.log.WaitForN("route settings applied", count, waitTimeout))
}

func (tr *testRouting) route(t *testing.T, url string) (*routing.Route, map[string]string) {
	t.Helper()

	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	return tr.routing.Route(req)
}

func newDoc(t *testing.T, doc string) *testdataclient.Client {
	t.Helper()

	dc, err := testdataclient.NewDoc(doc)
	require.NoError(t, err)
	return dc
}

func TestMatchesAfterInitialSettings(t *testing.T) {
	dc := newDoc(t, `
- id: user-service
  uri: https://users.example.org
  predicates:
  - Path=/users/**
`)
	tr := newTestRouting(t, dc)

	route, _ := tr.route(t, "https://gw.example.org/users/42")
	require.NotNil(t, route)
	assert.Equal(t, "user-service", route.ID)
	assert.Equal(t, "https", route.Scheme)
	assert.Equal(t, "users.example.org", route.Host)
	assert.Equal(t, "https://users.example.org", route.Backend.String())

	route, _ = tr.route(t, "https://gw.example.org/orders")
	assert.Nil(t, route)
}

func TestMatchesNoRequestsBeforeInitialSettings(t *testing.T) {
	noleak.Check(t)

	dc := testdataclient.New(nil)
	dc.FailNext()

	tl := loggingtest.New()
	tl.Mute = true
	defer tl.Close()

	rt := routing.New(routing.Options{
		DataClients: []routing.DataClient{dc},
		PollTimeout: time.Hour,
		Log:         tl,
	})
	defer rt.Close()

	req, err := http.NewRequest("GET", "https://gw.example.org/users", nil)
	require.NoError(t, err)

	route, params := rt.Route(req)
	assert.Nil(t, route)
	assert.Nil(t, params)
}

func TestRetriesFailedInitialRequest(t *testing.T) {
	dc := newDoc(t, `
- id: user-service
  uri: https://users.example.org
`)
	dc.FailNext()

	tr := newTestRouting(t, dc)
	require.NoError(t, tr.log.WaitFor("error while receiving initial data", waitTimeout))

	route, _ := tr.route(t, "https://gw.example.org/anything")
	require.NotNil(t, route)
	assert.Equal(t, "user-service", route.ID)
}

func TestReceivesUpdates(t *testing.T) {
	dc := newDoc(t, `
- id: user-service
  uri: https://users.example.org
  predicates:
  - Path=/users/**
`)
	tr := newTestRouting(t, dc)

	require.NoError(t, dc.UpdateDoc(`
- id: order-service
  uri: https://orders.example.org
  predicates:
  - Path=/orders/**
`, nil))
	tr.waitForSettings(t, 2)

	route, _ := tr.route(t, "https://gw.example.org/orders/7")
	require.NotNil(t, route)
	assert.Equal(t, "order-service", route.ID)

	route, _ = tr.route(t, "https://gw.example.org/users/42")
	require.NotNil(t, route)
	assert.Equal(t, "user-service", route.ID)
}

func TestReceivesDelete(t *testing.T) {
	dc := newDoc(t, `
- id: user-service
  uri: https://users.example.org
  predicates:
  - Path=/users/**
- id: order-service
  uri: https://orders.example.org
  predicates:
  - Path=/orders/**
`)
	tr := newTestRouting(t, dc)

	dc.Update(nil, []string{"user-service"})
	tr.waitForSettings(t, 2)

	route, _ := tr.route(t, "https://gw.example.org/users/42")
	assert.Nil(t, route)

	route, _ = tr.route(t, "https://gw.example.org/orders/7")
	require.NotNil(t, route)
}

func TestFallsBackToInitialRequestAfterFailedUpdate(t *testing.T) {
	dc := newDoc(t, `
- id: user-service
  uri: https://users.example.org
`)
	tr := newTestRouting(t, dc)

	dc.FailNext()
	require.NoError(t, tr.log.WaitFor("error while receiving update", waitTimeout))

	require.NoError(t, dc.UpdateDoc(`
- id: order-service
  uri: https://orders.example.org
  predicates:
  - Path=/orders/**
`, nil))
	tr.waitForSettings(t, 2)

	route, _ := tr.route(t, "https://gw.example.org/orders/7")
	require.NotNil(t, route)
	assert.Equal(t, "order-service", route.ID)
}

func TestSkipsInvalidRoutesAndKeepsValidOnes(t *testing.T) {
	dc := newDoc(t, `
- id: broken-filter
  uri: https://one.example.org
  filters:
  - noSuchFilter=1
- id: broken-predicate
  uri: https://two.example.org
  predicates:
  - NoSuchPredicate=/x
- id: broken-backend
  uri: ":"
- id: valid
  uri: https://valid.example.org
  predicates:
  - Path=/valid
`)
	tr := newTestRouting(t, dc)
	require.NoError(t, tr.log.WaitFor("failed to process route broken-filter", waitTimeout))
	require.NoError(t, tr.log.WaitFor("failed to process route broken-predicate", waitTimeout))
	require.NoError(t, tr.log.WaitFor("failed to process route broken-backend", waitTimeout))

	route, _ := tr.route(t, "https://gw.example.org/valid")
	require.NotNil(t, route)
	assert.Equal(t, "valid", route.ID)
}

func TestFirstMatchInDeclarationOrder(t *testing.T) {
	dc := newDoc(t, `
- id: first
  uri: https://first.example.org
  predicates:
  - Path=/overlap/**
- id: second
  uri: https://second.example.org
  predicates:
  - Path=/overlap/**
`)
	tr := newTestRouting(t, dc)

	route, _ := tr.route(t, "https://gw.example.org/overlap/anything")
	require.NotNil(t, route)
	assert.Equal(t, "first", route.ID)
}

func TestLowerOrderWinsOverDeclaration(t *testing.T) {
	dc := newDoc(t, `
- id: first
  uri: https://first.example.org
  predicates:
  - Path=/overlap/**
- id: second
  uri: https://second.example.org
  order: -1
  predicates:
  - Path=/overlap/**
`)
	tr := newTestRouting(t, dc)

	route, _ := tr.route(t, "https://gw.example.org/overlap/anything")
	require.NotNil(t, route)
	assert.Equal(t, "second", route.ID)
}

func TestMoreSpecificRouteNeedsLowerOrder(t *testing.T) {
	dc := newDoc(t, `
- id: catch-all
  uri: https://all.example.org
  predicates:
  - Path=/**
- id: users
  uri: https://users.example.org
  order: -10
  predicates:
  - Path=/users/**
`)
	tr := newTestRouting(t, dc)

	route, _ := tr.route(t, "https://gw.example.org/users/42")
	require.NotNil(t, route)
	assert.Equal(t, "users", route.ID)

	route, _ = tr.route(t, "https://gw.example.org/other")
	require.NotNil(t, route)
	assert.Equal(t, "catch-all", route.ID)
}

func TestPredicateConjunction(t *testing.T) {
	dc := newDoc(t, `
- id: api
  uri: https://api.example.org
  predicates:
  - Path=/api/**
  - Method=GET
  - Host={tenant}.example.org
`)
	tr := newTestRouting(t, dc)

	route, params := tr.route(t, "https://acme.example.org/api/assets")
	require.NotNil(t, route)
	assert.Equal(t, "acme", params["tenant"])

	req, err := http.NewRequest("POST", "https://acme.example.org/api/assets", nil)
	require.NoError(t, err)
	route, _ = tr.routing.Route(req)
	assert.Nil(t, route)

	route, _ = tr.route(t, "https://acme.other.org/api/assets")
	assert.Nil(t, route)
}

func TestCapturesPathParams(t *testing.T) {
	dc := newDoc(t, `
- id: detail
  uri: https://details.example.org
  predicates:
  - Path=/catalog/{category}/{itemId}
`)
	tr := newTestRouting(t, dc)

	route, params := tr.route(t, "https://gw.example.org/catalog/books/42")
	require.NotNil(t, route)
	assert.Equal(t, map[string]string{"category": "books", "itemId": "42"}, params)
}

func TestGeneratesMissingRouteIDs(t *testing.T) {
	dc := newDoc(t, `
- uri: https://users.example.org
  predicates:
  - Path=/users/**
`)
	tr := newTestRouting(t, dc)

	route, _ := tr.route(t, "https://gw.example.org/users/42")
	require.NotNil(t, route)
	assert.NotEmpty(t, route.ID)
}

func TestMergesDataClients(t *testing.T) {
	dc1 := newDoc(t, `
- id: users
  uri: https://users.example.org
  predicates:
  - Path=/users/**
- id: shared
  uri: https://first.example.org
  predicates:
  - Path=/shared/**
`)
	dc2 := newDoc(t, `
- id: shared
  uri: https://second.example.org
  predicates:
  - Path=/shared/**
`)
	tr := newTestRoutingWithOptions(t, routing.Options{
		DataClients: []routing.DataClient{dc1, dc2},
	})

	// both clients deliver initial data
	tr.waitForSettings(t, 2)

	route, _ := tr.route(t, "https://gw.example.org/users/42")
	require.NotNil(t, route)
	assert.Equal(t, "users", route.ID)

	route, _ = tr.route(t, "https://gw.example.org/shared/x")
	require.NotNil(t, route)
	assert.Equal(t, "https://second.example.org", route.Backend.String())
}

func registry(specs ...filters.Spec) filters.Registry {
	fr := make(filters.Registry)
	for _, s := range specs {
		fr.Register(s)
	}

	return fr
}

func TestCreatesFiltersWithArgs(t *testing.T) {
	dc := newDoc(t, `
- id: users
  uri: https://users.example.org
  filters:
  - filter1=a,b
  - name: filter2
    args:
      key: value
`)
	tr := newTestRoutingWithOptions(t, routing.Options{
		FilterRegistry: registry(
			&filtertest.Filter{FilterName: "filter1"},
			&filtertest.Filter{FilterName: "filter2"},
		),
		DataClients: []routing.DataClient{dc},
	})

	route, _ := tr.route(t, "https://gw.example.org/anything")
	require.NotNil(t, route)
	require.Len(t, route.Filters, 2)

	f1 := route.Filters[0].(*filters.OrderedFilter).Wrapped.(*filtertest.Filter)
	assert.Equal(t, "filter1", f1.FilterName)
	assert.Equal(t, map[string]string{"_genkey_0": "a", "_genkey_1": "b"}, f1.Args)

	f2 := route.Filters[1].(*filters.OrderedFilter).Wrapped.(*filtertest.Filter)
	assert.Equal(t, "filter2", f2.FilterName)
	assert.Equal(t, map[string]string{"key": "value"}, f2.Args)
}

func TestDefaultFiltersPrependedAndPositionsAssigned(t *testing.T) {
	dc := newDoc(t, `
- id: users
  uri: https://users.example.org
  filters:
  - own=1
`)
	tr := newTestRoutingWithOptions(t, routing.Options{
		FilterRegistry: registry(
			&filtertest.Filter{FilterName: "shared"},
			&filtertest.Filter{FilterName: "own"},
		),
		DataClients: []routing.DataClient{dc},
		DefaultFilters: []*routedef.FilterDefinition{
			{Name: "shared", Args: map[string]string{"_genkey_0": "0"}},
		},
	})

	route, _ := tr.route(t, "https://gw.example.org/anything")
	require.NotNil(t, route)
	require.Len(t, route.Filters, 2)

	assert.Equal(t, "shared", route.Filters[0].(*filters.OrderedFilter).Wrapped.(*filtertest.Filter).FilterName)
	assert.Equal(t, 1, filters.OrderOf(route.Filters[0]))
	assert.Equal(t, "own", route.Filters[1].(*filters.OrderedFilter).Wrapped.(*filtertest.Filter).FilterName)
	assert.Equal(t, 2, filters.OrderOf(route.Filters[1]))
}

func TestCloseStopsPolling(t *testing.T) {
	noleak.Check(t)

	dc := newDoc(t, `
- id: users
  uri: https://users.example.org
`)
	tr := newTestRouting(t, dc)
	tr.routing.Close()

	// polling has stopped, updates are not applied anymore
	require.NoError(t, dc.UpdateDoc(`
- id: orders
  uri: https://orders.example.org
`, nil))
	assert.Error(t, tr.log.WaitForN("route settings applied", 2, 120*time.Millisecond))
}
