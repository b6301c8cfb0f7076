/*
Package circuit provides a filter protecting routes with a named
circuit breaker, an optional command timeout and an optional fallback.

For detailed documentation of the breaker state machine, see
https://godoc.org/github.com/viaduct-io/viaduct/circuit.
*/
package circuit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/viaduct-io/viaduct/circuit"
	"github.com/viaduct-io/viaduct/filters"
	"github.com/viaduct-io/viaduct/filters/serve"
)

// Name is the filter name as referenced by the route definitions.
const Name = "circuitBreaker"

// FallbackScheme is the only scheme allowed for fallback addresses,
// dispatching through the local handler.
const FallbackScheme = "forward"

var (
	// ErrOpen is the failure of requests rejected by an open breaker.
	ErrOpen = errors.New("circuit breaker open")

	// ErrTimeout is the failure of protected calls exceeding the
	// command timeout.
	ErrTimeout = errors.New("circuit breaker timeout")
)

type spec struct {
	registry     *circuit.Registry
	localHandler func() http.Handler
}

type filter struct {
	registry     *circuit.Registry
	localHandler func() http.Handler
	name         string
	timeout      time.Duration
	hasTimeout   bool
	fallback     *url.URL
}

// hands the command timer to the response body, released when the
// proxy finished streaming
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// New creates a filter specification whose instances run the rest of
// the chain as a command protected by the named circuit breaker from
// the registry. Instances expect the breaker name:
//
//	circuitBreaker=payments
//
// Optional named arguments:
//
//	timeout: limits the duration of the command, overriding the
//	command timeout of the breaker settings. A command past its
//	timeout fails as a timeout, distinguishable from other failures.
//
//	fallbackUri: an address with the forward scheme, for example
//	"forward:/unavailable". A failed command is redispatched once
//	through the local handler with the path of the fallback and the
//	query of the original request.
//
// Failures carrying an explicit HTTP status propagate unchanged and
// are never redispatched, the status intended by the failing filter
// reaches the client. Requests rejected by an open breaker fail with
// ErrOpen. When the registry resolves no breaker for the name, the
// filter passes the requests through unprotected.
//
// The local handler is resolved lazily, it does not have to exist
// when the filter is created. Name: "circuitBreaker".
func New(registry *circuit.Registry, localHandler func() http.Handler) filters.Spec {
	return &spec{registry: registry, localHandler: localHandler}
}

func (s *spec) Name() string { return Name }

func (s *spec) CreateFilter(args map[string]string) (filters.Filter, error) {
	a := filters.Args(args)
	name := a.String("name")
	timeout := a.OptionalDuration("timeout", -1)
	fallbackURI := a.OptionalString("fallbackUri", "")
	if err := a.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
	}

	f := &filter{
		registry:     s.registry,
		localHandler: s.localHandler,
		name:         name,
		timeout:      timeout,
		hasTimeout:   timeout >= 0,
	}

	if fallbackURI != "" {
		u, err := url.Parse(fallbackURI)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", filters.ErrInvalidFilterParameters, err)
		}

		if u.Scheme != FallbackScheme {
			return nil, fmt.Errorf(
				"%w: fallback scheme must be %s, got %q",
				filters.ErrInvalidFilterParameters, FallbackScheme, u.Scheme,
			)
		}

		f.fallback = u
	}

	return f, nil
}

func (f *filter) Filter(ctx filters.FilterContext, next filters.Chain) error {
	b := f.registry.Get(circuit.BreakerSettings{Name: f.name})
	if b == nil {
		return next.Filter(ctx)
	}

	parent := ctx.Request().Context()

	done, ok := b.Allow()
	if !ok {
		return f.recover(ctx, parent, ErrOpen)
	}

	err := f.run(ctx, next, b.Settings().CommandTimeout)
	done(err == nil)
	if err != nil {
		return f.recover(ctx, parent, err)
	}

	return nil
}

// run executes the rest of the chain under the command timeout. The
// timeout context is attached to the request, canceling the backend
// dispatch when it fires. On success the timer is kept alive until the
// response body is consumed, the body streams under the same command.
func (f *filter) run(ctx filters.FilterContext, next filters.Chain, timeout time.Duration) error {
	if f.hasTimeout {
		timeout = f.timeout
	}

	if timeout <= 0 {
		return next.Filter(ctx)
	}

	req := ctx.Request()
	cctx, cancel := context.WithTimeout(req.Context(), timeout)
	ctx.SetRequest(req.WithContext(cctx))

	err := next.Filter(ctx)
	if err == nil {
		if rsp := ctx.Response(); rsp != nil && rsp.Body != nil {
			rsp.Body = &cancelBody{ReadCloser: rsp.Body, cancel: cancel}
		} else {
			cancel()
		}

		return nil
	}

	cancel()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}

	return err
}

func (f *filter) recover(ctx filters.FilterContext, parent context.Context, err error) error {
	var se *filters.StatusError
	if errors.As(err, &se) {
		return err
	}

	if f.fallback == nil {
		return err
	}

	h := f.localHandler()
	if h == nil {
		ctx.Logger().Errorf("fallback %v not dispatched, no local handler", f.fallback)
		return err
	}

	ctx.Logger().Infof("dispatching the fallback %v: %v", f.fallback, err)
	ctx.Serve(serve.ServeResponse(fallbackRequest(ctx.Request(), parent, f.fallback), h))
	return nil
}

// fallbackRequest derives the redispatched request: the path of the
// fallback, the query of the original request, scheme and host
// dropped. It runs on the context the request had before the command,
// a fired command timeout does not apply to the fallback.
func fallbackRequest(req *http.Request, parent context.Context, fallback *url.URL) *http.Request {
	freq := req.Clone(parent)
	freq.URL.Scheme = ""
	freq.URL.Host = ""
	freq.URL.Path = fallback.Path
	freq.RequestURI = freq.URL.RequestURI()
	return freq
}
