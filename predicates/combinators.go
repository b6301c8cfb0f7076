package predicates

import (
	"net/http"

	"github.com/viaduct-io/viaduct/routing"
)

type andPredicate struct {
	predicates []routing.Predicate
}

type orPredicate struct {
	predicates []routing.Predicate
}

type notPredicate struct {
	predicate routing.Predicate
}

// And combines predicates so that the result matches when all of them
// match. The captured variables are merged, predicates later in the
// list win. An empty And matches every request, like a route without
// predicates.
func And(ps ...routing.Predicate) routing.Predicate {
	return &andPredicate{predicates: ps}
}

// Or combines predicates so that the result matches when any of them
// matches. Evaluation stops at the first matching predicate and its
// captured variables are returned. An empty Or matches no request.
func Or(ps ...routing.Predicate) routing.Predicate {
	return &orPredicate{predicates: ps}
}

// Not inverts a predicate. The captured variables of the wrapped
// predicate are dropped, a non-match has none to offer anyway.
func Not(p routing.Predicate) routing.Predicate {
	return &notPredicate{predicate: p}
}

func (a *andPredicate) Match(req *http.Request) (bool, map[string]string) {
	var params map[string]string
	for _, p := range a.predicates {
		ok, captured := p.Match(req)
		if !ok {
			return false, nil
		}

		if len(captured) == 0 {
			continue
		}

		if params == nil {
			params = make(map[string]string, len(captured))
		}

		for name, value := range captured {
			params[name] = value
		}
	}

	return true, params
}

func (o *orPredicate) Match(req *http.Request) (bool, map[string]string) {
	for _, p := range o.predicates {
		if ok, params := p.Match(req); ok {
			return true, params
		}
	}

	return false, nil
}

func (n *notPredicate) Match(req *http.Request) (bool, map[string]string) {
	ok, _ := n.predicate.Match(req)
	return !ok, nil
}
