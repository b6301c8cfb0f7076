package routing

import (
	"net/http"
	"sort"
)

// matcher holds an immutable snapshot of the routes, sorted for
// evaluation. A new instance replaces the previous one whenever the route
// settings change.
type matcher struct {
	routes []*Route
}

// newMatcher sorts the routes in ascending route order. The sort is
// stable, routes with equal order keep their declaration order.
func newMatcher(routes []*Route) *matcher {
	sorted := make([]*Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	return &matcher{routes: sorted}
}

// match evaluates the routes in sorted order and returns the first one
// whose predicate matches the request, together with the captured
// variables. Routes further down the list are not evaluated.
func (m *matcher) match(req *http.Request) (*Route, map[string]string) {
	for _, route := range m.routes {
		if ok, params := route.Predicate.Match(req); ok {
			return route, params
		}
	}

	return nil, nil
}
