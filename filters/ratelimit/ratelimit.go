/*
Package ratelimit provides the filter protecting routes with the
distributed token bucket rate limiter.

For detailed documentation of the rate limiting, see
https://godoc.org/github.com/viaduct-io/viaduct/ratelimit.
*/
package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/ratelimit"
)

// Name is the filter name as referenced by the route definitions.
const Name = "requestRateLimiter"

type spec struct {
	registry *ratelimit.Registry
}

type filter struct {
	limiter        ratelimit.Limiter
	resolver       ratelimit.KeyResolver
	settings       ratelimit.Settings
	denyEmptyKey   bool
	emptyKeyStatus int
	statusCode     int
	includeHeaders bool
}

// New creates a filter specification whose instances check the token
// bucket of the route before letting a request through to the rest of
// the chain. The bucket is keyed by the route and the identity derived
// from the request by the key resolver. Instances expect the replenish
// rate and the burst capacity, both at least one:
//
//	requestRateLimiter=10,20
//
// Optional named arguments:
//
//	keyResolver: name of a registered key resolver, or "header:<Name>"
//	for the value of a request header, defaulting to the client address
//
//	denyEmptyKey: whether requests without a resolvable identity are
//	denied, defaulting to true
//
//	emptyKeyStatus: the status served for denied requests without an
//	identity, defaulting to 403
//
//	statusCode: the status served for rate limited requests, defaulting
//	to 429
//
//	includeHeaders: whether the X-RateLimit-* headers are set on the
//	response, defaulting to true
//
// When the counter store of the limiter is not available, requests are
// allowed through and the remaining tokens header reports -1.
//
// Name: "requestRateLimiter".
func New(registry *ratelimit.Registry) filters.Spec {
	return &spec{registry: registry}
}

func (s *spec) Name() string { return Name }

func (s *spec) CreateFilter(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	settings := ratelimit.Settings{
		ReplenishRate: a.Int("replenishRate"),
		BurstCapacity: a.Int("burstCapacity"),
	}

	resolverName := a.OptionalString("keyResolver", "")
	f := &filter{
		settings:       settings,
		denyEmptyKey:   a.OptionalBool("denyEmptyKey", true),
		emptyKeyStatus: a.OptionalInt("emptyKeyStatus", http.StatusForbidden),
		statusCode:     a.OptionalInt("statusCode", http.StatusTooManyRequests),
		includeHeaders: a.OptionalBool("includeHeaders", true),
	}

	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	for _, code := range []int{f.emptyKeyStatus, f.statusCode} {
		if http.StatusText(code) == "" {
			return nil, fmt.Errorf("%w: invalid status code %d", filters.ErrInvalidFilterParameters, code)
		}
	}

	resolver, ok := s.registry.Resolver(resolverName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown key resolver %s", filters.ErrInvalidFilterParameters, resolverName)
	}

	f.limiter = s.registry.Limiter()
	f.resolver = resolver
	return f, nil
}

func (f *filter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	req := ctx.Request()

	key := f.resolver.Resolve(req)
	if key == "" {
		if !f.denyEmptyKey {
			return next.Filter(ctx)
		}

		ctx.Logger().Debugf("no rate limiting key for the request, denying")
		ctx.Serve(&http.Response{StatusCode: f.emptyKeyStatus, Header: http.Header{}})
		return nil
	}

	result := f.limiter.Allow(req.Context(), f.settings, ctx.RouteID(), key)
	if !result.Allowed {
		header := http.Header{}
		if f.includeHeaders {
			header = result.Headers(f.settings)
		}

		ctx.Serve(&http.Response{StatusCode: f.statusCode, Header: header})
		return nil
	}

	if err := next.Filter(ctx); err != nil {
		return err
	}

	if f.includeHeaders {
		if rsp := ctx.Response(); rsp != nil {
			for name, values := range result.Headers(f.settings) {
				rsp.Header[name] = values
			}
		}
	}

	return nil
}
