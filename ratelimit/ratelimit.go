package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	xnet "github.com/viaduct-io/viaduct/net"
)

const (
	// Header holding the number of tokens left in the bucket after the
	// check, or FailOpenRemaining when the counter store failed.
	RemainingHeader = "X-RateLimit-Remaining"

	// Header holding the configured replenish rate.
	ReplenishRateHeader = "X-RateLimit-Replenish-Rate"

	// Header holding the configured burst capacity.
	BurstCapacityHeader = "X-RateLimit-Burst-Capacity"

	// FailOpenRemaining is reported as the remaining token count when
	// the counter store was not available and the request was allowed
	// without a bucket check.
	FailOpenRemaining int64 = -1
)

// Settings configures the token bucket of a limiter check.
type Settings struct {
	// ReplenishRate is the number of tokens added to the bucket per
	// second.
	ReplenishRate int

	// BurstCapacity is the maximum number of tokens the bucket holds.
	// It is also the number of requests allowed in a single burst.
	BurstCapacity int
}

// Validate checks that the settings describe a usable bucket.
func (s Settings) Validate() error {
	if s.ReplenishRate < 1 {
		return fmt.Errorf("invalid replenish rate: %d", s.ReplenishRate)
	}
	if s.BurstCapacity < 1 {
		return fmt.Errorf("invalid burst capacity: %d", s.BurstCapacity)
	}
	return nil
}

func (s Settings) String() string {
	return fmt.Sprintf("ratelimit(rate=%d,burst=%d)", s.ReplenishRate, s.BurstCapacity)
}

// Result is the outcome of a limiter check.
type Result struct {
	// Allowed is true when the request may proceed.
	Allowed bool

	// TokensRemaining is the number of tokens left in the bucket, or
	// FailOpenRemaining when the counter store was not available.
	TokensRemaining int64
}

// Headers returns the rate limiting response headers for the result.
func (r Result) Headers(s Settings) http.Header {
	h := make(http.Header)
	h.Set(RemainingHeader, strconv.FormatInt(r.TokensRemaining, 10))
	h.Set(ReplenishRateHeader, strconv.Itoa(s.ReplenishRate))
	h.Set(BurstCapacityHeader, strconv.Itoa(s.BurstCapacity))
	return h
}

// Limiter checks whether a request identified by a key within a group
// is allowed. Implementations recover counter store failures by
// failing open, they do not return errors.
type Limiter interface {
	Allow(ctx context.Context, s Settings, group, key string) Result
}

// KeyResolver extracts the rate limiting key from a request. An empty
// key means the request could not be identified, the caller decides
// whether to deny or allow such requests.
type KeyResolver interface {
	Resolve(req *http.Request) string
}

type remoteHostResolver struct{}

// NewRemoteHostResolver returns a resolver that keys requests by the
// client address, taking the first entry of the X-Forwarded-For header
// when present.
func NewRemoteHostResolver() KeyResolver { return remoteHostResolver{} }

func (remoteHostResolver) Resolve(req *http.Request) string {
	addr := xnet.RemoteAddr(req)
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

type remoteHostFromLastResolver struct{}

// NewRemoteHostFromLastResolver returns a resolver that keys requests
// by the client address, taking the last entry of the X-Forwarded-For
// header when present.
func NewRemoteHostFromLastResolver() KeyResolver { return remoteHostFromLastResolver{} }

func (remoteHostFromLastResolver) Resolve(req *http.Request) string {
	addr := xnet.RemoteAddrFromLast(req)
	if !addr.IsValid() {
		return ""
	}
	return addr.String()
}

type headerResolver struct {
	name string
}

// NewHeaderResolver returns a resolver that keys requests by the value
// of the named request header.
func NewHeaderResolver(name string) KeyResolver { return headerResolver{name} }

func (h headerResolver) Resolve(req *http.Request) string {
	return req.Header.Get(h.name)
}

type sameBucketResolver struct{}

// NewSameBucketResolver returns a resolver that keys all requests into
// the same bucket, limiting the total rate of a route regardless of
// the caller.
func NewSameBucketResolver() KeyResolver { return sameBucketResolver{} }

func (sameBucketResolver) Resolve(*http.Request) string { return "same" }
