// Package routing implements matching of http requests to a continuously
// updatable set of routes.
package routing

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/logging"
	"github.com/viaduct-io/viaduct/routedef"
)

// Predicate instances are used to match requests. They are created for a
// route by a PredicateSpec from the arguments of a predicate definition.
type Predicate interface {

	// Match is called with every request that is evaluated against the
	// owning route. It returns true when the request is matched, together
	// with any variables captured from the request, e.g. the values of
	// the template placeholders of a path pattern. It must not modify
	// the request, and it must be safe for concurrent calls.
	Match(req *http.Request) (bool, map[string]string)
}

// PredicateSpec is a named factory for request predicates. Implementations
// validate the arguments eagerly in Create, so that misconfigured routes
// are detected when the route settings are received and not during request
// processing.
type PredicateSpec interface {

	// Name returns the name of the predicate as referenced by route
	// definitions.
	Name() string

	// Create returns a predicate instance for the parsed arguments, or an
	// error when the arguments are invalid.
	Create(args map[string]string) (Predicate, error)
}

// DataClient instances provide sets of route definitions from a
// configuration source.
//
// The ids of the provided definitions are used to detect changes between
// polls, so a client must assign a unique id to every definition it
// returns.
type DataClient interface {

	// GetInitial returns the complete set of route definitions available
	// from the source.
	GetInitial() ([]*routedef.RouteDefinition, error)

	// GetUpdate returns the definitions that changed since the previous
	// call and the ids of the ones that were deleted. When it fails, the
	// complete set is requested again with GetInitial.
	GetUpdate() ([]*routedef.RouteDefinition, []string, error)
}

// Route is a definition prepared for request matching: the backend URI is
// parsed, the predicates and filters are created, and the default filters
// are merged in.
type Route struct {
	routedef.RouteDefinition

	// Scheme and Host of the parsed backend URI.
	Scheme, Host string

	// Backend is the parsed backend URI of the route.
	Backend *url.URL

	// Predicate is the conjunction of the created predicates of the
	// route. It matches every request when the route has no predicates.
	Predicate Predicate

	// Filters are the created filter instances of the route in
	// declaration order, preceded by the default filters. Filters
	// without their own order report the position in this slice.
	Filters []filters.Filter
}

// Options for initialization of the routing container.
type Options struct {

	// FilterRegistry maps the filter names of the route definitions to
	// filter specifications.
	FilterRegistry filters.Registry

	// Predicates contains the available predicate specifications.
	Predicates []PredicateSpec

	// DataClients provide the route definitions. Definitions from
	// different clients are merged by id, where the clients later in the
	// list win.
	DataClients []DataClient

	// PollTimeout is the timeout between polling the data clients for
	// updates, and between retries after a failed initial request.
	PollTimeout time.Duration

	// DefaultFilters are prepended to the filters of every route.
	DefaultFilters []*routedef.FilterDefinition

	// Log is used for the route settings and the definitions that failed
	// to process. When nil, the default logging is used.
	Log logging.Logger
}

// Routing matches incoming requests to the current set of routes, while
// receiving definition updates from the data clients in the background.
type Routing struct {
	log        logging.Logger
	getMatcher <-chan *matcher
	quit       chan struct{}
	closeOnce  sync.Once
}

// feedMatchers delivers the most recent matcher to any number of readers,
// replacing it whenever a new one arrives on the in channel.
func feedMatchers(current *matcher, quit <-chan struct{}) (chan<- *matcher, <-chan *matcher) {
	in := make(chan *matcher)
	out := make(chan *matcher)

	go func() {
		for {
			select {
			case current = <-in:
			case out <- current:
			case <-quit:
				return
			}
		}
	}()

	return in, out
}

// New creates a routing container listening for route definitions from the
// configured data clients. Until the first definitions are received, it
// matches no requests.
func New(o Options) *Routing {
	if o.Log == nil {
		o.Log = &logging.DefaultLog{}
	}

	quit := make(chan struct{})
	matchersIn, matchersOut := feedMatchers(newMatcher(nil), quit)
	go receiveRouteMatcher(o, matchersIn, quit)
	return &Routing{log: o.Log, getMatcher: matchersOut, quit: quit}
}

// Route matches a request against the current set of routes. It returns
// the first route whose predicates match, in ascending route order, ties
// resolved by the declaration order, together with the variables captured
// while matching, or nil when no route matched.
func (r *Routing) Route(req *http.Request) (*Route, map[string]string) {
	select {
	case m := <-r.getMatcher:
		return m.match(req)
	case <-r.quit:
		return nil, nil
	}
}

// Close stops the data client polling and releases the background
// resources of the container.
func (r *Routing) Close() {
	r.closeOnce.Do(func() {
		close(r.quit)
	})
}
