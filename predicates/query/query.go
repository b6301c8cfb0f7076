/*
Package query implements the Query route predicate to match requests
based on the query params in the URL.

It supports checking the existence of a query param and checking whether
the param value matches a given regular expression:

	// matches http://example.org?bb=a&green=withvalue
	Query=green

	// matches http://example.org?bb=a&red=greet
	Query=red,gree.
*/
package query

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
	typ       matchType
	paramName string
	valueExp  *regexp.Regexp
}

type spec struct{}

// New creates a new Query predicate specification.
func New() routing.PredicateSpec { return &spec{} }

func (s *spec) Name() string { return predicates.QueryName }

func (s *spec) Create(args map[string]string) (routing.Predicate, error) {
	a := filters.Args(args)
	name := a.String("param")
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
	queryMap := r.URL.Query()
	vals, ok := queryMap[p.paramName]

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
