package ratelimit

import (
	"strings"
	"sync"

	"github.com/opentracing/opentracing-go"

	"github.com/viaduct-io/viaduct/logging"
	"github.com/viaduct-io/viaduct/net"
)

// DefaultResolverName selects the key resolver used when a filter does
// not name one.
const DefaultResolverName = "remoteHost"

// headerResolverPrefix selects a header resolver by name, for example
// "header:X-Api-Key".
const headerResolverPrefix = "header:"

// Options configures a rate limiting registry.
type Options struct {
	// Redis configures the shared counter store. When nil, the
	// registry falls back to in-process buckets.
	Redis *net.RedisOptions

	// Tracer traces the counter store queries.
	Tracer opentracing.Tracer

	// Log is used for failures of the counter store.
	Log logging.Logger
}

// Registry holds the limiter shared by the rate limiting filters and
// the named key resolvers.
type Registry struct {
	limiter     Limiter
	redisClient *net.RedisRingClient

	mu        sync.Mutex
	resolvers map[string]KeyResolver
}

// NewRegistry creates a registry with the built-in key resolvers. With
// Redis configured it checks the buckets in the shared counter store,
// otherwise in process memory.
func NewRegistry(o Options) *Registry {
	r := &Registry{
		resolvers: map[string]KeyResolver{
			"remoteHost":         NewRemoteHostResolver(),
			"remoteHostFromLast": NewRemoteHostFromLastResolver(),
			"sameBucket":         NewSameBucketResolver(),
		},
	}

	if o.Redis != nil {
		if o.Redis.Tracer == nil {
			o.Redis.Tracer = o.Tracer
		}
		if o.Redis.Log == nil {
			o.Redis.Log = o.Log
		}

		r.redisClient = net.NewRedisRingClient(o.Redis)
		r.redisClient.StartMetricsCollection()
		r.limiter = NewClusterLimiter(r.redisClient)
	} else {
		r.limiter = NewLocalLimiter()
	}

	return r
}

// Limiter returns the limiter of the registry.
func (r *Registry) Limiter() Limiter {
	return r.limiter
}

// RegisterResolver makes a custom key resolver available to filters
// under the given name.
func (r *Registry) RegisterResolver(name string, kr KeyResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[name] = kr
}

// Resolver returns the key resolver registered under name, resolving
// the empty name to the default and "header:<Name>" to a resolver for
// the named request header.
func (r *Registry) Resolver(name string) (KeyResolver, bool) {
	if name == "" {
		name = DefaultResolverName
	}

	if h, ok := strings.CutPrefix(name, headerResolverPrefix); ok && h != "" {
		return NewHeaderResolver(h), true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kr, ok := r.resolvers[name]
	return kr, ok
}

// Close releases the counter store client of the registry.
func (r *Registry) Close() {
	if r.redisClient != nil {
		r.redisClient.Close()
	}
}
