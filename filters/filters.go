// Package filters contains the contracts of the viaduct filter chain and
// the argument handling shared by the filter and predicate factories.
//
// Filters are created from route definitions by named factories
// (specifications) and participate in request processing as an ordered
// chain. A filter receives the per-request filter context together with
// the remainder of the chain, and decides whether to continue, to serve a
// response without continuing, or to fail. Errors returned by a filter
// travel backward through every filter that wrapped the call.
package filters

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Metrics is the metrics collector interface exposed to filters through
// the filter context. It is implemented by the backends of the metrics
// package.
type Metrics interface {

	// MeasureSince adds a measurement for key since start.
	MeasureSince(key string, start time.Time)

	// IncCounter increments the counter identified by key.
	IncCounter(key string)

	// IncCounterBy increments the counter identified by key by value.
	IncCounterBy(key string, value int64)

	// IncFloatCounterBy increments the float counter identified by key
	// by value.
	IncFloatCounterBy(key string, value float64)
}

// FilterContextLogger is the request scoped logger exposed to filters
// through the filter context.
type FilterContextLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// FilterContext carries the state of a single request through the filter
// chain. It is implemented by the proxy and shared by every filter that
// processes the request.
type FilterContext interface {

	// ResponseWriter gives access to the underlying response writer.
	// Filters normally serve through Serve or SetResponse instead of
	// writing to it directly.
	ResponseWriter() http.ResponseWriter

	// Request gives access to the request being processed. Filters may
	// modify it in place, header and URL changes are visible to the
	// filters and the backend dispatch that follow.
	Request() *http.Request

	// SetRequest replaces the request seen by the rest of the chain and
	// by the backend dispatch. Used by filters that need to swap the
	// request context, e.g. to apply a deadline.
	SetRequest(*http.Request)

	// OriginalRequest returns the request with the metadata as it
	// arrived at the proxy, unaffected by the filters.
	OriginalRequest() *http.Request

	// Response returns the response stashed on the context, or nil when
	// no backend call was made and no filter served one yet.
	Response() *http.Response

	// SetResponse stashes the response to be written to the client once
	// the chain has completed. It does not stop chain processing.
	SetResponse(*http.Response)

	// Serve stashes a response and marks the request as served. A filter
	// that calls Serve must return without calling the rest of the
	// chain.
	Serve(*http.Response)

	// Served reports whether a filter has served a response.
	Served() bool

	// PathParam returns the value of the named template variable
	// captured by the matched route's predicates.
	PathParam(name string) string

	// StateBag returns the request scoped storage shared by the filters
	// of the chain.
	StateBag() map[string]interface{}

	// BackendURL returns the resolved target of the backend dispatch. It
	// is nil until the route's backend has been merged with the request
	// URL.
	BackendURL() *url.URL

	// SetBackendURL replaces the target of the backend dispatch.
	SetBackendURL(*url.URL)

	// OutgoingHost returns the host value used for the outgoing request.
	OutgoingHost() string

	// SetOutgoingHost sets the host value used for the outgoing request.
	SetOutgoingHost(string)

	// Routed reports whether a routing filter already dispatched the
	// request. Routing filters check it before dispatching and pass
	// through when it is set.
	Routed() bool

	// SetRouted transitions the request to routed. It panics when the
	// request was routed before, dispatching twice is a programming
	// error.
	SetRouted()

	// RouteID returns the id of the matched route, or the empty string
	// when no route matched.
	RouteID() string

	// Logger returns the request scoped logger.
	Logger() FilterContextLogger

	// Metrics provides the filter with a metrics collector.
	Metrics() Metrics
}

// Chain represents the not yet processed remainder of the filter chain.
// Calling Filter past the last filter of the chain is a no-op returning
// nil.
type Chain interface {
	Filter(ctx FilterContext) error
}

// Filter processes a request as a member of the chain. Implementations
// decide whether to call the rest of the chain, work scheduled before the
// chain call sees the request, work scheduled after it sees the response.
// Returning a non-nil error fails the request and skips the response work
// of the filters that would have followed.
type Filter interface {
	Filter(ctx FilterContext, next Chain) error
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(ctx FilterContext, next Chain) error

func (f FilterFunc) Filter(ctx FilterContext, next Chain) error { return f(ctx, next) }

// Spec is a named filter factory. Creating a filter validates the
// arguments, invalid arguments keep the route using the filter from
// activating.
type Spec interface {

	// Name returns the name of the filter as referenced by the route
	// definitions.
	Name() string

	// CreateFilter creates a filter instance from the definition
	// arguments. Positional arguments of shorthand definitions appear
	// under generated names, see GenArgKey.
	CreateFilter(args map[string]string) (Filter, error)
}

// Ordered is implemented by filters with an explicit position in the
// chain. Filters that do not implement it keep their declaration order.
type Ordered interface {
	Order() int
}

// OrderedFilter attaches an explicit order to a filter.
type OrderedFilter struct {
	Wrapped     Filter
	FilterOrder int
}

func (f *OrderedFilter) Filter(ctx FilterContext, next Chain) error {
	return f.Wrapped.Filter(ctx, next)
}

func (f *OrderedFilter) Order() int { return f.FilterOrder }

// Registry maps filter names to specifications.
type Registry map[string]Spec

func (r Registry) Register(s Spec) {
	r[s.Name()] = s
}

// Keys of well known state bag values shared between filters and the
// proxy.
const (
	// OriginalRequestURLKey holds a *url.URL copy of the target URL as
	// it was before the first path changing filter touched it.
	OriginalRequestURLKey = "#originalRequestUrl"
)

// ErrInvalidFilterParameters is returned by filter factories on invalid
// creation arguments.
var ErrInvalidFilterParameters = errors.New("invalid filter parameters")

// StatusError is a filter chain failure with an explicit HTTP status. The
// proxy responds with the code of the error, filters between the failing
// filter and the proxy propagate it unchanged.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}

	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// NewStatusError creates a chain failure with an explicit HTTP status.
func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}
