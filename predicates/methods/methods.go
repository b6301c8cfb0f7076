/*
Package methods implements the Method route predicate to match requests
based on the http method.

It supports multiple http methods, with case insensitive input:

	// matches GET requests
	Method=GET

	// matches GET or POST requests
	Method=GET,post
*/
package methods

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/predicates"
	"github.com/viaduct-io/viaduct/routing"
)

type (
	spec struct {
		allowedMethods map[string]bool
	}

	predicate struct {
		methods map[string]bool
	}
)

// New creates a new Method predicate specification.
func New() routing.PredicateSpec {
	return &spec{allowedMethods: map[string]bool{
		http.MethodGet:     true,
		http.MethodHead:    true,
		http.MethodPost:    true,
		http.MethodPut:     true,
		http.MethodPatch:   true,
		http.MethodDelete:  true,
		http.MethodConnect: true,
		http.MethodOptions: true,
		http.MethodTrace:   true,
	}}
}

func (s *spec) Name() string { return predicates.MethodName }

func (s *spec) Create(args map[string]string) (routing.Predicate, error) {
	a := filters.Args(args)
	methods := a.Strings("methods")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", predicates.ErrInvalidPredicateParameters, err)
	}

	if len(methods) == 0 {
		return nil, predicates.ErrInvalidPredicateParameters
	}

	p := predicate{methods: map[string]bool{}}
	for _, method := range methods {
		method = strings.ToUpper(method)
		if !s.allowedMethods[method] {
			return nil, fmt.Errorf("%w: method %s is not allowed", predicates.ErrInvalidPredicateParameters, method)
		}

		p.methods[method] = true
	}

	return &p, nil
}

func (p *predicate) Match(r *http.Request) (bool, map[string]string) {
	return p.methods[strings.ToUpper(r.Method)], nil
}
