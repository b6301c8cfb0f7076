/*
Package circuit implements the circuit breakers used by the CircuitBreaker
filter.

It provides two types of circuit breakers: consecutive failures and failure
rate based. Breakers are identified by name: routes that reference the same
breaker name share the same breaker state, so that the outcome of requests
on one route can protect the backend called by another. The registry object
ensures synchronized access to the active breakers and releases the idle
ones.

# Breaker type - consecutive failures

This breaker opens when the protected call failed at least N times in a
row, where N is the configuration of the breaker. When open, calls are
rejected without executing them during the configured timeout. After this
timeout, the breaker goes into half-open state, in which it expects that M
number of calls succeed. The calls in the half-open state are accepted
concurrently. If any of the calls during the half-open state fails, the
breaker goes back to open state. If all succeed, it goes to closed state
again.

# Breaker type - failure rate

The rate breaker works similar to the consecutive breaker, but instead of
considering N consecutive failures for going open, it opens when the
failures reach a rate of N out of M, where M is a sliding window. The
sliding window is not time based, it always tracks the last M calls,
allowing the same breaker characteristics for rarely and frequently called
backends. N and M are configuration settings of the rate breaker.

# Usage

Instances of the Registry hold the active breakers and their settings.
Settings with an empty Name field are the defaults, named settings override
them per breaker:

	r := circuit.NewRegistry(
		circuit.BreakerSettings{
			Type:     circuit.FailureRate,
			Window:   200,
			Failures: 30,
			Timeout:  30 * time.Second,
		},
		circuit.BreakerSettings{
			Name:     "payments",
			Type:     circuit.ConsecutiveFailures,
			Failures: 5,
		},
	)

	b := r.Get(circuit.BreakerSettings{Name: "payments"})
	if done, ok := b.Allow(); ok {
		err := call()
		done(err == nil)
	}

The state transition thresholds are delegated to the breaker
implementations selected by the Type field, the callers only see the
Allow/done contract.
*/
package circuit
