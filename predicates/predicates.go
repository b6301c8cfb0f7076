// Package predicates contains the names of the route matching predicates
// and the error contract shared by the predicate factories. The factories
// themselves live in the subpackages.
package predicates

import "errors"

// The canonical predicate names as referenced by route definitions.
const (
	PathName   = "Path"
	HostName   = "Host"
	MethodName = "Method"
	HeaderName = "Header"
	QueryName  = "Query"
)

// ErrInvalidPredicateParameters is used in case of invalid predicate parameters.
var ErrInvalidPredicateParameters = errors.New("invalid predicate parameters")
