package builtin

import (
	"net/http"
	"testing"

	"github.com/viaduct-io/viaduct/filters"
)

func TestSetStatus(t *testing.T) {
	f, err := NewSetStatus().CreateFilter(map[string]string{"status": "418"})
	if err != nil {
		t.Fatal(err)
	}

	ctx := testContext(t, "https://example.org/")
	serve := filters.FilterFunc(func(ctx filters.FilterContext, _ filters.Chain) error {
		ctx.Serve(&http.Response{StatusCode: http.StatusOK, Header: http.Header{}})
		return nil
	})

	if err := f.Filter(ctx, filters.NewChain([]filters.Filter{serve})); err != nil {
		t.Fatal(err)
	}

	if ctx.FResponse.StatusCode != http.StatusTeapot {
		t.Errorf("expected status %d, got %d", http.StatusTeapot, ctx.FResponse.StatusCode)
	}
}

func TestSetStatusLeavesFailedChainsAlone(t *testing.T) {
	f, err := NewSetStatus().CreateFilter(map[string]string{"status": "418"})
	if err != nil {
		t.Fatal(err)
	}

	ctx := testContext(t, "https://example.org/")
	fail := filters.FilterFunc(func(filters.FilterContext, filters.Chain) error {
		return filters.NewStatusError(http.StatusBadGateway, "backend failed")
	})

	if err := f.Filter(ctx, filters.NewChain([]filters.Filter{fail})); err == nil {
		t.Error("expected the chain error to propagate")
	}

	if ctx.FResponse != nil {
		t.Error("expected no response")
	}
}

func TestSetStatusCreateErrors(t *testing.T) {
	for _, tt := range []struct {
		msg  string
		args map[string]string
	}{{
		"no args",
		nil,
	}, {
		"not a number",
		map[string]string{"status": "teapot"},
	}, {
		"unknown status code",
		map[string]string{"status": "999"},
	}} {
		t.Run(tt.msg, func(t *testing.T) {
			if _, err := NewSetStatus().CreateFilter(tt.args); err == nil {
				t.Error("failed to fail")
			}
		})
	}
}
