package circuit

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// rateBreaker trips when the failures within the sliding window of the
// last Window calls reach Failures. The window is maintained outside of
// gobreaker, which only provides the state machine.
type rateBreaker struct {
	settings BreakerSettings
	open     bool
	mu       sync.Mutex
	sampler  *binarySampler
	gb       *gobreaker.TwoStepCircuitBreaker
}

func newRate(s BreakerSettings) *rateBreaker {
	b := &rateBreaker{
		settings: s,
	}

	b.gb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: uint32(s.HalfOpenRequests),
		Timeout:     s.Timeout,
		ReadyToTrip: func(gobreaker.Counts) bool { return b.readyToTrip() },
	})

	return b
}

func (b *rateBreaker) readyToTrip() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sampler == nil {
		return false
	}

	b.open = b.sampler.count >= b.settings.Failures
	if b.open {
		log.Infof("circuit breaker open: %v", b.settings)
		b.sampler = nil
	}

	return b.open
}

// count the failures in closed and half-open state
func (b *rateBreaker) countRate(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sampler == nil {
		b.sampler = newBinarySampler(b.settings.Window)
	}

	b.sampler.tick(!success)
}

func (b *rateBreaker) Allow() (func(bool), bool) {
	done, err := b.gb.Allow()

	// this error can only indicate that the breaker is not closed
	if err != nil {
		return nil, false
	}

	if b.open {
		b.open = false
		log.Infof("circuit breaker closed: %v", b.settings)
	}

	return func(success bool) {
		b.countRate(success)
		done(success)
	}, true
}
