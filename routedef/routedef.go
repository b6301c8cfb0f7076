// Package routedef contains the route definition model of viaduct.
//
// A route definition names a backend URI and the predicates and filters
// applied to the requests of the route, referencing predicate and filter
// factories by name. Definitions are produced by data clients, e.g. from
// a YAML document, and turned into executable routes by the routing
// package.
//
// Predicate and filter arguments are held as a string map. The compact
// shorthand form
//
//	Path=/foo/{segment}
//
// assigns the positional arguments to generated names, so the factories
// see the same map for both the shorthand and the expanded form:
//
//	name: Path
//	args:
//	  _genkey_0: /foo/{segment}
package routedef

import (
	"fmt"
	"sort"
	"strings"

	"github.com/viaduct-io/viaduct/filters"
)

// PredicateDefinition references a predicate factory by name together
// with its creation arguments.
type PredicateDefinition struct {
	Name string            `yaml:"name"`
	Args map[string]string `yaml:"args"`
}

// FilterDefinition references a filter factory by name together with its
// creation arguments.
type FilterDefinition struct {
	Name string            `yaml:"name"`
	Args map[string]string `yaml:"args"`
}

// RouteDefinition describes a single route. The zero order is the
// default, routes with equal order keep their declaration order during
// matching.
type RouteDefinition struct {
	ID         string                 `yaml:"id"`
	URI        string                 `yaml:"uri"`
	Order      int                    `yaml:"order"`
	Predicates []*PredicateDefinition `yaml:"predicates"`
	Filters    []*FilterDefinition    `yaml:"filters"`
	Metadata   map[string]string      `yaml:"metadata"`
}

// ParseShorthand parses the compact "Name=arg1,arg2" definition form. The
// text is split at the first '=', the arguments at every ',', surrounding
// whitespace of the name and the arguments is dropped. A definition
// without '=' has no arguments. Positional arguments are stored under
// generated names.
func ParseShorthand(text string) (string, map[string]string, error) {
	name, argText, hasArgs := strings.Cut(text, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("invalid shorthand definition: %q", text)
	}

	args := make(map[string]string)
	if !hasArgs {
		return name, args, nil
	}

	i := 0
	for _, arg := range strings.Split(argText, ",") {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}

		args[filters.GenArgKey(i)] = arg
		i++
	}

	return name, args, nil
}

func unmarshalDefinition(unmarshal func(interface{}) error) (string, map[string]string, error) {
	var shorthand string
	if err := unmarshal(&shorthand); err == nil {
		return ParseShorthand(shorthand)
	}

	var expanded struct {
		Name string                 `yaml:"name"`
		Args map[string]interface{} `yaml:"args"`
	}
	if err := unmarshal(&expanded); err != nil {
		return "", nil, err
	}

	if expanded.Name == "" {
		return "", nil, fmt.Errorf("missing definition name")
	}

	args := make(map[string]string, len(expanded.Args))
	for k, v := range expanded.Args {
		switch v.(type) {
		case string, bool, int, int64, float64:
			args[k] = fmt.Sprintf("%v", v)
		default:
			return "", nil, fmt.Errorf("argument %s of %s is not a scalar", k, expanded.Name)
		}
	}

	return expanded.Name, args, nil
}

// UnmarshalYAML accepts a predicate definition either in the shorthand
// string form or as a name/args mapping.
func (d *PredicateDefinition) UnmarshalYAML(unmarshal func(interface{}) error) error {
	name, args, err := unmarshalDefinition(unmarshal)
	if err != nil {
		return err
	}

	d.Name, d.Args = name, args
	return nil
}

// UnmarshalYAML accepts a filter definition either in the shorthand
// string form or as a name/args mapping.
func (d *FilterDefinition) UnmarshalYAML(unmarshal func(interface{}) error) error {
	name, args, err := unmarshalDefinition(unmarshal)
	if err != nil {
		return err
	}

	d.Name, d.Args = name, args
	return nil
}

func formatDefinition(name string, args map[string]string) string {
	var positional []string
	for i := 0; ; i++ {
		v, ok := args[filters.GenArgKey(i)]
		if !ok {
			break
		}

		positional = append(positional, v)
	}

	var named []string
	for k, v := range args {
		if !filters.IsGenArgKey(k) {
			named = append(named, k+"="+v)
		}
	}
	sort.Strings(named)

	all := append(positional, named...)
	if len(all) == 0 {
		return name
	}

	return name + "=" + strings.Join(all, ",")
}

func (d *PredicateDefinition) String() string { return formatDefinition(d.Name, d.Args) }
func (d *FilterDefinition) String() string    { return formatDefinition(d.Name, d.Args) }
