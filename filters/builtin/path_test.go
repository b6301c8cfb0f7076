package builtin

import (
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/filters/filtertest"
)

func testContext(t *testing.T, u string) *filtertest.Context {
	t.Helper()

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		t.Fatal(err)
	}

	return &filtertest.Context{
		FRequest:  req,
		FParams:   make(map[string]string),
		FStateBag: make(map[string]interface{}),
	}
}

func runFilter(t *testing.T, f filters.Filter, ctx *filtertest.Context) {
	t.Helper()

	if err := f.Filter(ctx, filters.NewChain(nil)); err != nil {
		t.Fatal(err)
	}
}

func TestRewritePath(t *testing.T) {
	for _, tt := range []struct {
		msg         string
		expression  string
		replacement string
		path        string
		expected    string
	}{{
		"replaces matching prefix",
		"^/foo",
		"/bar",
		"/foo/baz",
		"/bar/baz",
	}, {
		"leaves not matching path alone",
		"^/foo",
		"/bar",
		"/qux/baz",
		"/qux/baz",
	}, {
		"replaces with numbered group",
		"^/red/(.*)",
		"/blue/$1",
		"/red/delivery/42",
		"/blue/delivery/42",
	}, {
		"replaces with named group through the dollar escape",
		"^/red/?(?P<segment>.*)",
		`/$\{segment}`,
		"/red/blue",
		"/blue",
	}, {
		"replaces every match",
		"/v1/",
		"/v2/",
		"/v1/foo/v1/bar",
		"/v2/foo/v2/bar",
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			f, err := NewRewritePath().CreateFilter(map[string]string{
				"regexp":      tt.expression,
				"replacement": tt.replacement,
			})
			if err != nil {
				t.Fatal(err)
			}

			ctx := testContext(t, "https://example.org"+tt.path)
			runFilter(t, f, ctx)

			if ctx.FRequest.URL.Path != tt.expected {
				t.Errorf("expected path %s, got %s", tt.expected, ctx.FRequest.URL.Path)
			}
		})
	}
}

func TestRewritePathSavesOriginalURL(t *testing.T) {
	f, err := NewRewritePath().CreateFilter(map[string]string{
		"regexp":      "^/foo",
		"replacement": "/bar",
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx := testContext(t, "https://example.org/foo/baz?q=1")
	runFilter(t, f, ctx)

	u, ok := ctx.FStateBag[filters.OriginalRequestURLKey].(*url.URL)
	if !ok {
		t.Fatal("original url missing from the state bag")
	}

	if u.Path != "/foo/baz" || u.RawQuery != "q=1" {
		t.Errorf("unexpected original url: %v", u)
	}

	// the first path changing filter wins
	runFilter(t, f, ctx)
	if saved := ctx.FStateBag[filters.OriginalRequestURLKey]; saved != u {
		t.Error("original url overwritten by a subsequent rewrite")
	}
}

func TestRewritePathCreateErrors(t *testing.T) {
	for _, tt := range []struct {
		msg  string
		args map[string]string
	}{{
		"no args",
		nil,
	}, {
		"missing replacement",
		map[string]string{"regexp": "^/foo"},
	}, {
		"invalid expression",
		map[string]string{"regexp": "(", "replacement": "/bar"},
	}, {
		"too many args",
		map[string]string{"regexp": "^/foo", "replacement": "/bar", "_genkey_2": "baz"},
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			if _, err := NewRewritePath().CreateFilter(tt.args); err == nil {
				t.Error("failed to fail")
			}
		})
	}
}

func TestSetPath(t *testing.T) {
	for _, tt := range []struct {
		msg      string
		template string
		params   map[string]string
		expected string
	}{{
		"fixed path",
		"/bar",
		nil,
		"/bar",
	}, {
		"resolves captured variable",
		"/bar/{segment}",
		map[string]string{"segment": "42"},
		"/bar/42",
	}, {
		"missing variable resolves empty",
		"/bar/{segment}",
		nil,
		"/bar/",
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			f, err := NewSetPath().CreateFilter(map[string]string{"template": tt.template})
			if err != nil {
				t.Fatal(err)
			}

			ctx := testContext(t, "https://example.org/foo")
			ctx.FParams = tt.params
			runFilter(t, f, ctx)

			if ctx.FRequest.URL.Path != tt.expected {
				t.Errorf("expected path %s, got %s", tt.expected, ctx.FRequest.URL.Path)
			}
		})
	}
}

func TestStripPrefix(t *testing.T) {
	for _, tt := range []struct {
		msg      string
		parts    int
		path     string
		expected string
	}{{
		"drops a single segment",
		1,
		"/api/users",
		"/users",
	}, {
		"drops multiple segments",
		2,
		"/api/v1/users/42",
		"/users/42",
	}, {
		"keeps the root when everything is dropped",
		2,
		"/api/v1",
		"/",
	}, {
		"keeps the root on fewer segments than parts",
		3,
		"/api",
		"/",
	}, {
		"ignores empty segments",
		1,
		"//api//users",
		"/users",
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			f, err := NewStripPrefix().CreateFilter(map[string]string{"parts": strconv.Itoa(tt.parts)})
			if err != nil {
				t.Fatal(err)
			}

			ctx := testContext(t, "https://example.org"+tt.path)
			runFilter(t, f, ctx)

			if ctx.FRequest.URL.Path != tt.expected {
				t.Errorf("expected path %s, got %s", tt.expected, ctx.FRequest.URL.Path)
			}
		})
	}
}

func TestStripPrefixCreateErrors(t *testing.T) {
	for _, tt := range []struct {
		msg  string
		args map[string]string
	}{{
		"no args",
		nil,
	}, {
		"not a number",
		map[string]string{"parts": "one"},
	}, {
		"zero parts",
		map[string]string{"parts": "0"},
	}, {
		"negative parts",
		map[string]string{"parts": "-1"},
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			if _, err := NewStripPrefix().CreateFilter(tt.args); err == nil {
				t.Error("failed to fail")
			}
		})
	}
}
