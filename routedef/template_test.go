package routedef

import (
	"testing"

	"github.com/viaduct-io/viaduct/filters/filtertest"
)

type createTestItem struct {
	template string
	expected string
	getter   TemplateGetter
}

func testCreate(t *testing.T, items []createTestItem) {
	for _, ti := range items {
		template := NewTemplate(ti.template)
		result := template.Apply(ti.getter)
		if result != ti.expected {
			t.Errorf("Error: '%s' != '%s'", result, ti.expected)
		}
	}
}

func TestTemplateGetter(t *testing.T) {
	testCreate(t, []createTestItem{{
		"template",
		"template",
		func(param string) string {
			return param
		},
	}, {
		"/path/{param1}/",
		"/path/param1/",
		func(param string) string {
			return param
		},
	}, {
		"/{param2}/{param1}/",
		"/param2/param1/",
		func(param string) string {
			return param
		},
	}, {
		"/{missing}",
		"/",
		func(param string) string {
			return ""
		},
	}, {
		"/{param}",
		"/{param}",
		nil,
	}})
}

func TestTemplateApplyRequestContext(t *testing.T) {
	ctx := &filtertest.Context{FParams: map[string]string{"segment": "42"}}

	result, ok := NewTemplate("/bar/{segment}").ApplyRequestContext(ctx)
	if !ok || result != "/bar/42" {
		t.Errorf("Error: '%s' != '/bar/42'", result)
	}

	result, ok = NewTemplate("/bar/{other}").ApplyRequestContext(ctx)
	if ok {
		t.Error("resolved unknown placeholder")
	}
	if result != "/bar/" {
		t.Errorf("Error: '%s' != '/bar/'", result)
	}
}
