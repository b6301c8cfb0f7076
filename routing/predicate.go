package routing

import "net/http"

// trueMatcher matches every request. It is used for routes without
// predicates.
type trueMatcher struct{}

func (m *trueMatcher) Match(*http.Request) (bool, map[string]string) {
	return true, nil
}

// conjunction matches a request when all of its predicates match. The
// variables captured by the individual predicates are merged, where the
// predicates later in the list win.
type conjunction struct {
	predicates []Predicate
}

func newConjunction(ps []Predicate) Predicate {
	switch len(ps) {
	case 0:
		return &trueMatcher{}
	case 1:
		return ps[0]
	default:
		return &conjunction{ps}
	}
}

func (c *conjunction) Match(req *http.Request) (bool, map[string]string) {
	var params map[string]string
	for _, p := range c.predicates {
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
