// Package testdataclient provides a test implementation for the DataClient
// interface of the routing package.
package testdataclient

import (
	"errors"
	"sync"

	yaml "gopkg.in/yaml.v2"

	"github.com/viaduct-io/viaduct/routedef"
)

// Client is a data client with instantly updatable definitions.
type Client struct {
	mu         sync.Mutex
	byID       map[string]*routedef.RouteDefinition
	order      []string
	upsert     []*routedef.RouteDefinition
	deletedIDs []string
	failNext   int
}

// New creates a data client with an initial set of definitions.
func New(defs []*routedef.RouteDefinition) *Client {
	c := &Client{byID: make(map[string]*routedef.RouteDefinition)}
	c.set(defs)
	return c
}

// NewDoc creates a data client from a route document in YAML format.
func NewDoc(doc string) (*Client, error) {
	var defs []*routedef.RouteDefinition
	if err := yaml.Unmarshal([]byte(doc), &defs); err != nil {
		return nil, err
	}

	return New(defs), nil
}

func (c *Client) set(defs []*routedef.RouteDefinition) {
	for _, def := range defs {
		if _, ok := c.byID[def.ID]; !ok {
			c.order = append(c.order, def.ID)
		}

		c.byID[def.ID] = def
	}
}

// GetInitial returns the current definitions in the order they were first
// added.
func (c *Client) GetInitial() ([]*routedef.RouteDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNext > 0 {
		c.failNext--
		return nil, errors.New("failed to get initial routes")
	}

	defs := make([]*routedef.RouteDefinition, 0, len(c.byID))
	for _, id := range c.order {
		if def, ok := c.byID[id]; ok {
			defs = append(defs, def)
		}
	}

	return defs, nil
}

// GetUpdate returns the changes fed with Update since the last poll. It
// does not block when no changes are pending.
func (c *Client) GetUpdate() ([]*routedef.RouteDefinition, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNext > 0 {
		c.failNext--
		return nil, nil, errors.New("failed to get route updates")
	}

	upsert, deletedIDs := c.upsert, c.deletedIDs
	c.upsert, c.deletedIDs = nil, nil
	return upsert, deletedIDs, nil
}

// Update feeds changes to the client, to be returned by the next
// GetUpdate call.
func (c *Client) Update(upsert []*routedef.RouteDefinition, deletedIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range deletedIDs {
		delete(c.byID, id)
	}

	c.set(upsert)
	c.upsert = append(c.upsert, upsert...)
	c.deletedIDs = append(c.deletedIDs, deletedIDs...)
}

// UpdateDoc feeds changes provided as a route document in YAML format.
func (c *Client) UpdateDoc(upsertDoc string, deletedIDs []string) error {
	var defs []*routedef.RouteDefinition
	if err := yaml.Unmarshal([]byte(upsertDoc), &defs); err != nil {
		return err
	}

	c.Update(defs, deletedIDs)
	return nil
}

// FailNext makes the next poll request fail.
func (c *Client) FailNext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext++
}
