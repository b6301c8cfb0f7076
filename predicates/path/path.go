/*
Package path implements the Path route predicate.

The predicate matches the request path against one or more path patterns.
A pattern consists of literal segments, single segment template variables
and an optional trailing multi segment wildcard:

	Path=/foo/{segment}
	Path=/assets/**
	Path=/users/{name}/roles,/users/{name}/groups

Template variables match exactly one segment, their captured values are
handed to the filters of the route. The multi segment wildcard is only
allowed at the end of a pattern, it also matches the bare base path. By
default a pattern matches the path with and without a trailing slash, an
optional "false" flag after the patterns turns the tolerance off.
*/
package path

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/dimfeld/httppath"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/predicates"
	"github.com/viaduct-io/viaduct/routing"
)

type spec struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

type predicate struct {
	patterns []*regexp.Regexp
}

// New creates a new Path predicate specification. Compiled patterns are
// shared by all predicate instances created through the same
// specification.
func New() routing.PredicateSpec {
	return &spec{compiled: make(map[string]*regexp.Regexp)}
}

func (s *spec) Name() string { return predicates.PathName }

func (s *spec) Create(args map[string]string) (routing.Predicate, error) {
	a := filters.Args(args)
	patterns := a.Strings("patterns")

	// an optional trailing true/false flag controls the trailing slash
	// tolerance, the expanded definition form names it instead
	matchTrailingSlash := true
	if n := len(patterns); n > 0 {
		switch patterns[n-1] {
		case "true":
			patterns = patterns[:n-1]
		case "false":
			matchTrailingSlash = false
			patterns = patterns[:n-1]
		}
	}
	matchTrailingSlash = a.OptionalBool("matchTrailingSlash", matchTrailingSlash)

	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", predicates.ErrInvalidPredicateParameters, err)
	}

	if len(patterns) == 0 {
		return nil, predicates.ErrInvalidPredicateParameters
	}

	p := &predicate{}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pattern := range patterns {
		rx, err := s.compile(pattern, matchTrailingSlash)
		if err != nil {
			return nil, err
		}

		p.patterns = append(p.patterns, rx)
	}

	return p, nil
}

// compile translates a path pattern into a regular expression, reusing
// earlier translations. Callers hold the specification mutex.
func (s *spec) compile(pattern string, matchTrailingSlash bool) (*regexp.Regexp, error) {
	key := pattern
	if !matchTrailingSlash {
		key = pattern + "\x00exact"
	}

	if rx, ok := s.compiled[key]; ok {
		return rx, nil
	}

	src, err := patternToRegexp(pattern, matchTrailingSlash)
	if err != nil {
		return nil, err
	}

	rx, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", predicates.ErrInvalidPredicateParameters, err)
	}

	s.compiled[key] = rx
	return rx, nil
}

func patternToRegexp(pattern string, matchTrailingSlash bool) (string, error) {
	if !strings.HasPrefix(pattern, "/") {
		return "", fmt.Errorf("%w: path pattern must start with /: %s", predicates.ErrInvalidPredicateParameters, pattern)
	}

	freeWildcard := false
	if strings.HasSuffix(pattern, "/**") {
		freeWildcard = true
		pattern = pattern[:len(pattern)-3]
	}

	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '{':
			j := strings.IndexByte(pattern[i:], '}')
			if j < 0 {
				return "", fmt.Errorf("%w: unclosed template variable in %s", predicates.ErrInvalidPredicateParameters, pattern)
			}

			name := pattern[i+1 : i+j]
			if !templateVarRx.MatchString(name) {
				return "", fmt.Errorf("%w: invalid template variable %q in %s", predicates.ErrInvalidPredicateParameters, name, pattern)
			}

			b.WriteString("(?P<" + name + ">[^/]+)")
			i += j
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				return "", fmt.Errorf("%w: multi segment wildcard is only allowed at the end of %s", predicates.ErrInvalidPredicateParameters, pattern)
			}

			b.WriteString("[^/]*")
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}

	if freeWildcard {
		b.WriteString("(?:/.*)?")
	}

	if matchTrailingSlash {
		b.WriteString("/?")
	}

	b.WriteString("$")
	return b.String(), nil
}

var templateVarRx = regexp.MustCompile(`^\w+$`)

func (p *predicate) Match(r *http.Request) (bool, map[string]string) {
	path := httppath.Clean(r.URL.Path)
	for _, rx := range p.patterns {
		m := rx.FindStringSubmatch(path)
		if m == nil {
			continue
		}

		var params map[string]string
		for i, name := range rx.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}

			if params == nil {
				params = make(map[string]string)
			}
			params[name] = m[i]
		}

		return true, params
	}

	return false, nil
}
