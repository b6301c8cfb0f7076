package routedef

import (
	"regexp"
	"strings"

	"github.com/viaduct-io/viaduct/filters"
)

var placeholderRegexp = regexp.MustCompile(`\{(\w+)\}`)

// TemplateGetter functions return the value for a template placeholder
// name.
type TemplateGetter func(string) string

// Template represents a string template with named placeholders of the
// format:
//
//	/bar/{segment}
//
// Filter factories use it to resolve arguments against the template
// variables captured by the route's predicates.
type Template struct {
	template     string
	placeholders []string
}

// NewTemplate parses a template string and returns a reusable *Template
// object.
func NewTemplate(template string) *Template {
	matches := placeholderRegexp.FindAllStringSubmatch(template, -1)
	placeholders := make([]string, len(matches))

	for index, placeholder := range matches {
		placeholders[index] = placeholder[1]
	}

	return &Template{template: template, placeholders: placeholders}
}

// Apply evaluates the template using a TemplateGetter function to resolve
// the placeholders.
func (t *Template) Apply(get TemplateGetter) string {
	if get == nil {
		return t.template
	}
	result, _ := t.apply(get)
	return result
}

// ApplyRequestContext evaluates the template using the path parameters of
// a filter context to resolve the placeholders. Returns true if all
// placeholders resolved to non-empty values.
func (t *Template) ApplyRequestContext(ctx filters.FilterContext) (string, bool) {
	return t.apply(ctx.PathParam)
}

// apply evaluates the template using a TemplateGetter function to resolve
// the placeholders. Returns true if all placeholders resolved to
// non-empty values.
func (t *Template) apply(get TemplateGetter) (string, bool) {
	result := t.template
	missing := false
	for _, placeholder := range t.placeholders {
		value := get(placeholder)
		if value == "" {
			missing = true
		}
		result = strings.Replace(result, "{"+placeholder+"}", value, -1)
	}
	return result, !missing
}
