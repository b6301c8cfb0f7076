package builtin

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/viaduct-io/viaduct/filters"
)

type redirect struct {
	code     int
	location *url.URL
}

// NewRedirectTo creates a filter specification whose instances serve an
// HTTP redirect response. The rest of the chain is not executed and the
// request is not forwarded to the backend. Instances expect two
// arguments: the redirect status code and the location:
//
//	redirectTo=308,https://example.org/moved
//
// Scheme, host, path and query missing from the location are taken from
// the incoming request. Name: "redirectTo".
func NewRedirectTo() filters.Spec { return &redirect{} }

func (spec *redirect) Name() string { return RedirectToName }

func (spec *redirect) CreateFilter(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	code := a.Int("status")
	location := a.OptionalString("location", "")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	if code < http.StatusMultipleChoices || code >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: invalid redirect status code %d", filters.ErrInvalidFilterParameters, code)
	}

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	return &redirect{code: code, location: u}, nil
}

func requestHost(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}

	return r.URL.Host
}

func location(ctx filters.FilterContext, location *url.URL) string {
	r := ctx.Request()

	uc := *location
	u := &uc

	if u.Scheme == "" {
		if r.URL.Scheme != "" {
			u.Scheme = r.URL.Scheme
		} else {
			u.Scheme = "https"
		}
	}

	u.User = r.URL.User

	if u.Host == "" {
		u.Host = requestHost(r)
	}

	if u.Path == "" {
		u.Path = r.URL.Path
	}

	if u.RawQuery == "" {
		u.RawQuery = r.URL.RawQuery
	} else if r.URL.RawQuery != "" {
		u.RawQuery = r.URL.RawQuery + "&" + u.RawQuery
	}

	return u.String()
}

func (f *redirect) Filter(ctx filters.FilterContext, _ filters.Chain) error {
	ctx.Serve(&http.Response{
		StatusCode: f.code,
		Header:     http.Header{"Location": []string{location(ctx, f.location)}},
	})

	return nil
}
