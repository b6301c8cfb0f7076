package routing

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/routedef"
)

type incomingType uint

const (
	incomingReset incomingType = iota
	incomingUpdate
)

func (t incomingType) String() string {
	switch t {
	case incomingReset:
		return "reset"
	case incomingUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// routeDefs stores the definitions of a single data client, preserving
// the order in which they were first received. The order determines the
// declaration order used to resolve route matching ties.
type routeDefs struct {
	byID  map[string]*routedef.RouteDefinition
	order []string
}

type incomingData struct {
	typ          incomingType
	client       DataClient
	upsertedDefs []*routedef.RouteDefinition
	deletedIDs   []string
}

func receiveInitial(c DataClient, o Options, out chan<- *incomingData, quit <-chan struct{}) bool {
	for {
		defs, err := c.GetInitial()
		if err != nil {
			o.Log.Error("error while receiving initial data;", err)
			select {
			case <-time.After(o.PollTimeout):
				continue
			case <-quit:
				return false
			}
		}

		select {
		case out <- &incomingData{incomingReset, c, defs, nil}:
			return true
		case <-quit:
			return false
		}
	}
}

func receiveUpdates(c DataClient, o Options, out chan<- *incomingData, quit <-chan struct{}) bool {
	for {
		select {
		case <-time.After(o.PollTimeout):
		case <-quit:
			return false
		}

		defs, deletedIDs, err := c.GetUpdate()
		if err != nil {
			o.Log.Error("error while receiving update;", err)
			return true
		}

		if len(defs) == 0 && len(deletedIDs) == 0 {
			continue
		}

		select {
		case out <- &incomingData{incomingUpdate, c, defs, deletedIDs}:
		case <-quit:
			return false
		}
	}
}

// receiveFromClient polls a data client until quit is closed. It requests
// the whole set of definitions first, then polls for updates. After a
// failed update it falls back to requesting the whole set again.
func receiveFromClient(c DataClient, o Options, out chan<- *incomingData, quit <-chan struct{}) {
	for {
		if !receiveInitial(c, o, out, quit) {
			return
		}

		if !receiveUpdates(c, o, out, quit) {
			return
		}
	}
}

func applyIncoming(defs *routeDefs, d *incomingData) *routeDefs {
	if d.typ == incomingReset || defs == nil {
		defs = &routeDefs{byID: make(map[string]*routedef.RouteDefinition)}
	}

	if d.typ == incomingUpdate {
		for _, id := range d.deletedIDs {
			delete(defs.byID, id)
		}
	}

	for _, def := range d.upsertedDefs {
		if _, ok := defs.byID[def.ID]; !ok {
			defs.order = append(defs.order, def.ID)
		}

		defs.byID[def.ID] = def
	}

	return defs
}

// mergeDefs merges the definitions of all the data clients, in client
// registration order and within a client in the order the definitions
// were first received. Definitions with the same id override the ones
// from earlier clients, keeping the earlier position.
func mergeDefs(clients []DataClient, defsByClient map[DataClient]*routeDefs) []*routedef.RouteDefinition {
	mergeByID := make(map[string]*routedef.RouteDefinition)
	var ids []string
	for _, c := range clients {
		defs, ok := defsByClient[c]
		if !ok {
			continue
		}

		for _, id := range defs.order {
			def, ok := defs.byID[id]
			if !ok {
				continue
			}

			if _, ok := mergeByID[id]; !ok {
				ids = append(ids, id)
			}

			mergeByID[id] = def
		}
	}

	all := make([]*routedef.RouteDefinition, 0, len(ids))
	for _, id := range ids {
		all = append(all, mergeByID[id])
	}

	return all
}

func receiveRouteDefs(o Options, quit <-chan struct{}) <-chan []*routedef.RouteDefinition {
	in := make(chan *incomingData)
	out := make(chan []*routedef.RouteDefinition)
	defsByClient := make(map[DataClient]*routeDefs)

	for _, c := range o.DataClients {
		go receiveFromClient(c, o, in, quit)
	}

	go func() {
		for {
			var incoming *incomingData
			select {
			case incoming = <-in:
			case <-quit:
				return
			}

			o.Log.Infof(
				"route settings, %v, upsert count: %d, delete count: %d",
				incoming.typ,
				len(incoming.upsertedDefs),
				len(incoming.deletedIDs),
			)

			c := incoming.client
			defsByClient[c] = applyIncoming(defsByClient[c], incoming)

			select {
			case out <- mergeDefs(o.DataClients, defsByClient):
			case <-quit:
				return
			}
		}
	}()

	return out
}

func splitBackend(u *url.URL) (string, string) {
	return u.Scheme, u.Host
}

func parseBackend(def *routedef.RouteDefinition) (*url.URL, error) {
	if def.URI == "" {
		return nil, fmt.Errorf("missing backend uri")
	}

	bu, err := url.Parse(def.URI)
	if err != nil {
		return nil, fmt.Errorf("invalid backend uri: %w", err)
	}

	if bu.Scheme == "" {
		return nil, fmt.Errorf("missing scheme in backend uri: '%s'", def.URI)
	}

	return bu, nil
}

func createPredicate(specs map[string]PredicateSpec, def *routedef.PredicateDefinition) (Predicate, error) {
	spec, ok := specs[def.Name]
	if !ok {
		return nil, fmt.Errorf("predicate not found: '%s'", def.Name)
	}

	p, err := spec.Create(def.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to create predicate '%s': %w", def.Name, err)
	}

	return p, nil
}

func createPredicates(specs map[string]PredicateSpec, defs []*routedef.PredicateDefinition) (Predicate, error) {
	ps := make([]Predicate, 0, len(defs))
	for _, def := range defs {
		p, err := createPredicate(specs, def)
		if err != nil {
			return nil, err
		}

		ps = append(ps, p)
	}

	return newConjunction(ps), nil
}

func createFilter(fr filters.Registry, def *routedef.FilterDefinition, position int) (filters.Filter, error) {
	spec, ok := fr[def.Name]
	if !ok {
		return nil, fmt.Errorf("filter not found: '%s'", def.Name)
	}

	f, err := spec.CreateFilter(def.Args)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter '%s': %w", def.Name, err)
	}

	// filters without their own order take the one-based declaration
	// position, keeping them in declaration order between each other
	if _, ok := f.(filters.Ordered); !ok {
		f = &filters.OrderedFilter{Wrapped: f, FilterOrder: position + 1}
	}

	return f, nil
}

func createFilters(fr filters.Registry, defaultDefs, defs []*routedef.FilterDefinition) ([]filters.Filter, error) {
	all := make([]*routedef.FilterDefinition, 0, len(defaultDefs)+len(defs))
	all = append(all, defaultDefs...)
	all = append(all, defs...)

	fs := make([]filters.Filter, 0, len(all))
	for i, def := range all {
		f, err := createFilter(fr, def, i)
		if err != nil {
			return nil, err
		}

		fs = append(fs, f)
	}

	return fs, nil
}

func processRouteDef(o Options, specs map[string]PredicateSpec, def *routedef.RouteDefinition) (*Route, error) {
	bu, err := parseBackend(def)
	if err != nil {
		return nil, err
	}

	p, err := createPredicates(specs, def.Predicates)
	if err != nil {
		return nil, err
	}

	fs, err := createFilters(o.FilterRegistry, o.DefaultFilters, def.Filters)
	if err != nil {
		return nil, err
	}

	scheme, host := splitBackend(bu)
	r := &Route{
		RouteDefinition: *def,
		Scheme:          scheme,
		Host:            host,
		Backend:         bu,
		Predicate:       p,
		Filters:         fs,
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	return r, nil
}

func mapPredicateSpecs(specs []PredicateSpec) map[string]PredicateSpec {
	byName := make(map[string]PredicateSpec, len(specs))
	for _, s := range specs {
		byName[s.Name()] = s
	}

	return byName
}

// processRouteDefs converts definitions to routes, dropping and logging
// the ones that fail, so that a single invalid definition does not block
// the rest of the route settings.
func processRouteDefs(o Options, defs []*routedef.RouteDefinition) []*Route {
	specs := mapPredicateSpecs(o.Predicates)
	routes := make([]*Route, 0, len(defs))
	for _, def := range defs {
		route, err := processRouteDef(o, specs, def)
		if err != nil {
			o.Log.Errorf("failed to process route %s: %v", def.ID, err)
			continue
		}

		routes = append(routes, route)
	}

	return routes
}

func receiveRouteMatcher(o Options, out chan<- *matcher, quit <-chan struct{}) {
	updates := receiveRouteDefs(o, quit)
	for {
		var defs []*routedef.RouteDefinition
		select {
		case defs = <-updates:
		case <-quit:
			return
		}

		routes := processRouteDefs(o, defs)
		m := newMatcher(routes)

		select {
		case out <- m:
			o.Log.Infof("route settings applied, total: %d", len(routes))
		case <-quit:
			return
		}
	}
}
