// Package routestring provides a data client serving route definitions
// from an inline YAML document, a list of routes without the wrapping
// routes field of the route files.
//
// Usage from the command line:
//
//	viaduct -inline-routes '[{id: hello, uri: "https://backend.example.org"}]'
package routestring

import (
	"fmt"

	"github.com/google/uuid"
	yaml "gopkg.in/yaml.v2"

	"github.com/viaduct-io/viaduct/routedef"
	"github.com/viaduct-io/viaduct/routing"
)

type routes struct {
	parsed []*routedef.RouteDefinition
}

// New creates a data client that parses a YAML list of route
// definitions and serves it unchanged to the routing. Definitions
// without an id receive a generated one.
func New(doc string) (routing.DataClient, error) {
	var parsed []*routedef.RouteDefinition
	if err := yaml.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("parsing inline routes: %v", err)
	}

	for _, def := range parsed {
		if def.ID == "" {
			def.ID = uuid.NewString()
		}
	}

	return &routes{parsed: parsed}, nil
}

func (r *routes) GetInitial() ([]*routedef.RouteDefinition, error) {
	return r.parsed, nil
}

func (*routes) GetUpdate() ([]*routedef.RouteDefinition, []string, error) {
	return nil, nil, nil
}
