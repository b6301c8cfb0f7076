/*
Package host implements the Host route predicate.

The predicate matches the host of the request against one or more glob
patterns over the dot separated hostname labels:

	Host=**.example.org
	Host={sub}.myhost.org,anotherhost.org

The multi label wildcard is allowed at the start or the end of a pattern
and also matches zero labels, so "**.example.org" matches both
"www.example.org" and "example.org". Template variables match exactly one
label, their captured values are handed to the filters of the route. A
port in the request host is ignored, matching is case insensitive.
*/
package host

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/predicates"
	"github.com/viaduct-io/viaduct/routing"
)

type spec struct{}

type predicate struct {
	patterns []*regexp.Regexp
}

// New creates a new Host predicate specification.
func New() routing.PredicateSpec { return &spec{} }

func (s *spec) Name() string { return predicates.HostName }

func (s *spec) Create(args map[string]string) (routing.Predicate, error) {
	a := filters.Args(args)
	patterns := a.Strings("patterns")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", predicates.ErrInvalidPredicateParameters, err)
	}

	if len(patterns) == 0 {
		return nil, predicates.ErrInvalidPredicateParameters
	}

	p := &predicate{}
	for _, pattern := range patterns {
		src, err := patternToRegexp(pattern)
		if err != nil {
			return nil, err
		}

		rx, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", predicates.ErrInvalidPredicateParameters, err)
		}

		p.patterns = append(p.patterns, rx)
	}

	return p, nil
}

func patternToRegexp(pattern string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("%w: empty host pattern", predicates.ErrInvalidPredicateParameters)
	}

	if pattern == "**" {
		return `(?i)^.+$`, nil
	}

	prefix := ""
	if strings.HasPrefix(pattern, "**.") {
		prefix = `(?:[^.]+\.)*`
		pattern = pattern[3:]
	}

	suffix := ""
	if strings.HasSuffix(pattern, ".**") {
		suffix = `(?:\.[^.]+)*`
		pattern = pattern[:len(pattern)-3]
	}

	if strings.Contains(pattern, "**") {
		return "", fmt.Errorf("%w: multi label wildcard is only allowed at the start or the end of a host pattern", predicates.ErrInvalidPredicateParameters)
	}

	var b strings.Builder
	b.WriteString("(?i)^")
	b.WriteString(prefix)
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

			b.WriteString("(?P<" + name + ">[^.]+)")
			i += j
		case '*':
			b.WriteString("[^.]*")
		default:
			b.WriteString(regexp.QuoteMeta(pattern[i : i+1]))
		}
	}
	b.WriteString(suffix)
	b.WriteString("$")
	return b.String(), nil
}

var templateVarRx = regexp.MustCompile(`^\w+$`)

func (p *predicate) Match(r *http.Request) (bool, map[string]string) {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	for _, rx := range p.patterns {
		m := rx.FindStringSubmatch(host)
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
