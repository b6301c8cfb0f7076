// Package loadbalancer implements round robin selection of backend
// endpoints for routes that address a named endpoint group through the
// lb scheme, e.g. lb://payments.
package loadbalancer

import (
	"fmt"
	"math/rand"
	"net/url"
	"sync"
)

// Scheme is the virtual backend scheme resolved by the load balancer.
// The host part of an lb URI names the endpoint group.
const Scheme = "lb"

type counter chan int

func newCounter(size int) counter {
	c := make(counter, 1)
	c <- rand.Intn(size)
	return c
}

func (c counter) inc(size int) int {
	v := <-c
	c <- v + 1
	return v % size
}

// Group is a named set of backend endpoints rotated over by Next.
type Group struct {
	name      string
	endpoints []*url.URL
	counter   counter
}

// Name returns the name that routes reference the group by.
func (g *Group) Name() string { return g.name }

// Endpoints returns the endpoints of the group in registration order.
func (g *Group) Endpoints() []*url.URL {
	e := make([]*url.URL, len(g.endpoints))
	copy(e, g.endpoints)
	return e
}

// Next returns the next endpoint of the group, rotating over the
// endpoints in registration order. It is safe for concurrent use.
func (g *Group) Next() *url.URL {
	return g.endpoints[g.counter.inc(len(g.endpoints))]
}

// Registry holds the endpoint groups available to the routes with an lb
// backend. Groups can be replaced while requests are being served, a
// replaced group finishes its in-flight selections on the old endpoint
// set.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

// NewRegistry creates an empty endpoint group registry.
func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*Group)}
}

func parseEndpoint(group, endpoint string) (*url.URL, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("group %s: invalid endpoint %s: %w", group, endpoint, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("group %s: endpoint %s must be an absolute http or https url", group, endpoint)
	}

	return u, nil
}

// Set registers the endpoint group under the given name, replacing a
// previously registered group.
func (r *Registry) Set(name string, endpoints []string) error {
	if name == "" {
		return fmt.Errorf("missing load balancer group name")
	}

	if len(endpoints) == 0 {
		return fmt.Errorf("group %s: no endpoints", name)
	}

	parsed := make([]*url.URL, 0, len(endpoints))
	for _, e := range endpoints {
		u, err := parseEndpoint(name, e)
		if err != nil {
			return err
		}

		parsed = append(parsed, u)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups[name] = &Group{
		name:      name,
		endpoints: parsed,
		counter:   newCounter(len(parsed)),
	}

	return nil
}

// Get returns the named endpoint group, or nil when no group is
// registered under the name. It is safe to call on a nil registry.
func (r *Registry) Get(name string) *Group {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.groups[name]
}
