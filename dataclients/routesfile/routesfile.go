// Package routesfile implements a data client that loads route
// definitions from a YAML document in the file system and polls it for
// changes.
//
// The document either holds the route definitions under a routes key,
// optionally together with filters applied to every route:
//
//	routes:
//	  - id: payments
//	    uri: http://payments.example.org
//	    predicates:
//	      - Path=/payments/**
//	defaultFilters:
//	  - addResponseHeader=X-Gateway,viaduct
//
// or it is a bare list of route definitions. Definitions may use the
// shorthand or the expanded predicate and filter forms, see the routedef
// package.
package routesfile

import (
	"fmt"
	"os"
	"reflect"
	"sync"

	"github.com/google/uuid"
	yaml "gopkg.in/yaml.v2"

	"github.com/viaduct-io/viaduct/routedef"
)

type document struct {
	Routes         []*routedef.RouteDefinition  `yaml:"routes"`
	DefaultFilters []*routedef.FilterDefinition `yaml:"defaultFilters"`
}

// Client loads route definitions from a YAML document in a file. It
// implements routing.DataClient: the routing container requests the
// complete definition set once and polls for changes after. Close is
// not required, the client holds no background resources.
//
// The client always reads the file identified by the initially provided
// name, it does not follow file system nodes.
type Client struct {
	fileName string

	mu        sync.Mutex
	routes    map[string]*routedef.RouteDefinition
	defaults  []*routedef.FilterDefinition
	generated map[string]string
}

// Open creates a client for the named routes file. The file is read
// eagerly, so that a misconfiguration fails the startup instead of
// surfacing as an empty route table.
func Open(name string) (*Client, error) {
	c := &Client{fileName: name, generated: make(map[string]string)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.load(); err != nil {
		return nil, err
	}

	return c, nil
}

func parseDocument(content []byte) (*document, error) {
	var doc document
	err := yaml.Unmarshal(content, &doc)
	if err == nil {
		return &doc, nil
	}

	var defs []*routedef.RouteDefinition
	if lerr := yaml.Unmarshal(content, &defs); lerr == nil {
		return &document{Routes: defs}, nil
	}

	return nil, err
}

// assignIDs gives definitions declared without an id a generated one.
// The assignment is remembered by the definition content, so that an
// unchanged definition reports the same id on every poll and does not
// show up as a routing update.
func (c *Client) assignIDs(defs []*routedef.RouteDefinition) {
	next := make(map[string]string)
	occurrences := make(map[string]int)
	for _, def := range defs {
		if def.ID != "" {
			continue
		}

		content, err := yaml.Marshal(def)
		if err != nil {
			def.ID = uuid.NewString()
			continue
		}

		key := fmt.Sprintf("%d:%s", occurrences[string(content)], content)
		occurrences[string(content)]++

		id, ok := c.generated[key]
		if !ok {
			id = uuid.NewString()
		}

		next[key] = id
		def.ID = id
	}

	c.generated = next
}

func mapRoutes(defs []*routedef.RouteDefinition) map[string]*routedef.RouteDefinition {
	m := make(map[string]*routedef.RouteDefinition, len(defs))
	for _, def := range defs {
		m[def.ID] = def
	}

	return m
}

// diffStoreRoutes compares a freshly parsed definition set against the
// stored one and replaces it, reporting the changed definitions and the
// ids of the removed ones.
func (c *Client) diffStoreRoutes(defs []*routedef.RouteDefinition) (upsert []*routedef.RouteDefinition, deletedIDs []string) {
	for _, def := range defs {
		if !reflect.DeepEqual(def, c.routes[def.ID]) {
			upsert = append(upsert, def)
		}
	}

	m := mapRoutes(defs)
	for id := range c.routes {
		if _, keep := m[id]; !keep {
			deletedIDs = append(deletedIDs, id)
		}
	}

	c.routes = m
	return
}

func (c *Client) deleteAllListIDs() []string {
	var ids []string
	for id := range c.routes {
		ids = append(ids, id)
	}

	c.routes = nil
	return ids
}

func (c *Client) load() (*document, error) {
	content, err := os.ReadFile(c.fileName)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.fileName, err)
	}

	c.assignIDs(doc.Routes)
	c.routes = mapRoutes(doc.Routes)
	c.defaults = doc.DefaultFilters
	return doc, nil
}

// GetInitial reads the file and returns the complete set of route
// definitions found in it.
func (c *Client) GetInitial() ([]*routedef.RouteDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.load()
	if err != nil {
		return nil, err
	}

	return doc.Routes, nil
}

// GetUpdate re-reads the file and returns the definitions that changed
// since the previous read and the ids of the deleted ones. A removed
// file deletes every route, any other read or parse failure is returned
// as an error, leaving the stored definition set in place.
func (c *Client) GetUpdate() ([]*routedef.RouteDefinition, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	content, err := os.ReadFile(c.fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, c.deleteAllListIDs(), nil
		}

		return nil, nil, err
	}

	doc, err := parseDocument(content)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", c.fileName, err)
	}

	c.assignIDs(doc.Routes)
	upsert, deletedIDs := c.diffStoreRoutes(doc.Routes)
	c.defaults = doc.DefaultFilters
	return upsert, deletedIDs, nil
}

// DefaultFilters returns the filter definitions of the defaultFilters
// section as of the last successful read. They are meant to be passed to
// the routing options at wiring time, a later change of the section in
// the file takes effect on restart.
func (c *Client) DefaultFilters() []*routedef.FilterDefinition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaults
}
