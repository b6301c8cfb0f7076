package circuit

import (
	"sync"
	"time"
)

// DefaultIdleTTL is applied to breakers that have no idle timeout
// configured.
const DefaultIdleTTL = time.Hour

// Registry objects hold the active circuit breakers, ensure synchronized
// access to them, apply default settings and recycle the idle breakers.
type Registry struct {
	defaults      BreakerSettings
	namedSettings map[string]BreakerSettings
	lookup        map[BreakerSettings]*Breaker
	mu            sync.Mutex
}

// NewRegistry initializes a registry with the provided settings. Settings
// with an empty Name field are considered as defaults. Settings with the
// same Name field are merged together.
func NewRegistry(settings ...BreakerSettings) *Registry {
	var (
		defaults      BreakerSettings
		namedSettings []BreakerSettings
	)

	for _, s := range settings {
		if s.Name == "" {
			defaults = defaults.mergeSettings(s)
			continue
		}

		namedSettings = append(namedSettings, s)
	}

	if defaults.IdleTTL <= 0 {
		defaults.IdleTTL = DefaultIdleTTL
	}

	ns := make(map[string]BreakerSettings)
	for _, s := range namedSettings {
		if sn, ok := ns[s.Name]; ok {
			ns[s.Name] = s.mergeSettings(sn)
		} else {
			ns[s.Name] = s.mergeSettings(defaults)
		}
	}

	return &Registry{
		defaults:      defaults,
		namedSettings: ns,
		lookup:        make(map[BreakerSettings]*Breaker),
	}
}

func (r *Registry) mergeDefaults(s BreakerSettings) BreakerSettings {
	defaults, ok := r.namedSettings[s.Name]
	if !ok {
		defaults = r.defaults
	}

	return s.mergeSettings(defaults)
}

func (r *Registry) dropIdle(now time.Time) {
	for h, b := range r.lookup {
		if b.idle(now) {
			delete(r.lookup, h)
		}
	}
}

func (r *Registry) get(s BreakerSettings) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	b, ok := r.lookup[s]
	if !ok || b.idle(now) {
		// check if there is any other to evict, evict if yes
		r.dropIdle(now)

		// create a new one
		b = newBreaker(s)
		r.lookup[s] = b
	}

	// set the access timestamp
	b.ts = now

	return b
}

// Get returns a circuit breaker for the provided settings. The
// BreakerSettings object is used here as a key, but typically it is enough
// to just set its Name field:
//
//	r.Get(BreakerSettings{Name: "payments"})
//
// The key is filled up with the named and the default settings, and the
// matching breaker is returned if it exists, or a new one is created if
// not. Get returns nil when the breaker is disabled or the merged settings
// define no breaker type.
func (r *Registry) Get(s BreakerSettings) *Breaker {
	// we check for name, because we don't want to use shared global breakers
	if s.Type == BreakerDisabled || s.Name == "" {
		return nil
	}

	s = r.mergeDefaults(s)
	if s.Type == BreakerNone {
		return nil
	}

	return r.get(s)
}
