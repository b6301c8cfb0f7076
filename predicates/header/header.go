/*
Package header implements the Header route predicate to match requests
based on a request header.

With a single argument it checks the presence of the header, a second
argument is a regular expression that any of the header values has to
match:

	// matches requests carrying an X-Request-Id header
	Header=X-Request-Id

	// matches when the value is numeric
	Header=X-Request-Id,\d+
*/
package header

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/predicates"
	"github.com/viaduct-io/viaduct/routing"
)

type matchType int

const (
	exists matchType = iota + 1
	matches
)

type predicate struct {
	typ      matchType
	name     string
	valueExp *regexp.Regexp
}

type spec struct{}

// New creates a new Header predicate specification.
func New() routing.PredicateSpec { return &spec{} }

func (s *spec) Name() string { return predicates.HeaderName }

func (s *spec) Create(args map[string]string) (routing.Predicate, error) {
	a := filters.Args(args)
	name := a.String("header")
	value := a.OptionalString("regexp", "")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", predicates.ErrInvalidPredicateParameters, err)
	}

	if value == "" {
		return &predicate{exists, name, nil}, nil
	}

	valueExp, err := regexp.Compile(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", predicates.ErrInvalidPredicateParameters, err)
	}

	return &predicate{matches, name, valueExp}, nil
}

func (p *predicate) Match(r *http.Request) (bool, map[string]string) {
	vals, ok := r.Header[http.CanonicalHeaderKey(p.name)]

	switch p.typ {
	case exists:
		return ok, nil
	case matches:
		for _, v := range vals {
			if p.valueExp.MatchString(v) {
				return true, nil
			}
		}
	}

	return false, nil
}
