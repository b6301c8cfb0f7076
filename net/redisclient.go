package net

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opentracing/opentracing-go"
	"github.com/redis/go-redis/v9"

	"github.com/viaduct-io/viaduct/logging"
	"github.com/viaduct-io/viaduct/metrics"
)

// RedisOptions is used to configure the redis.Ring
type RedisOptions struct {
	// Addrs are the list of redis shards
	Addrs []string

	// Password is the password needed to connect to the redis shards
	Password string

	// ReadTimeout for redis socket reads
	ReadTimeout time.Duration
	// WriteTimeout for redis socket writes
	WriteTimeout time.Duration
	// DialTimeout is the max time.Duration to dial a new connection
	DialTimeout time.Duration

	// PoolTimeout is the max time.Duration to get a connection from pool
	PoolTimeout time.Duration
	// ConnMaxIdleTime is the max time.Duration a connection stays idle
	// in the pool before it is closed
	ConnMaxIdleTime time.Duration
	// MinIdleConns is the minimum number of socket connections to redis
	MinIdleConns int
	// MaxIdleConns is the maximum number of socket connections to redis
	MaxIdleConns int

	// HeartbeatFrequency frequency of PING commands sent to check
	// shards availability.
	HeartbeatFrequency time.Duration

	// ConnMetricsInterval defines the frequency of updating the redis
	// connection related metrics. Defaults to 60 seconds.
	ConnMetricsInterval time.Duration
	// MetricsPrefix is the prefix for redis ring client metrics,
	// defaults to "redis." if not set
	MetricsPrefix string
	// Tracer provides OpenTracing for Redis queries.
	Tracer opentracing.Tracer
	// Log is the logger that is used
	Log logging.Logger
}

// RedisRingClient is a redis client that does sharding over a ring of
// redis shards.
type RedisRingClient struct {
	ring          *redis.Ring
	log           logging.Logger
	metrics       metrics.Metrics
	metricsPrefix string
	options       *RedisOptions
	tracer        opentracing.Tracer
	quit          chan struct{}
	closeOnce     sync.Once
}

// RedisScript is a representation of a script with the sha hashed
// created on Redis
type RedisScript struct {
	script *redis.Script
}

const (
	DefaultReadTimeout  = 25 * time.Millisecond
	DefaultWriteTimeout = 25 * time.Millisecond
	DefaultPoolTimeout  = 25 * time.Millisecond
	DefaultDialTimeout  = 25 * time.Millisecond
	DefaultMinConns     = 100
	DefaultMaxConns     = 100

	defaultConnMetricsInterval = 60 * time.Second
	defaultMetricsPrefix       = "redis."
)

func NewRedisRingClient(ro *RedisOptions) *RedisRingClient {
	r := new(RedisRingClient)
	r.quit = make(chan struct{})
	r.metrics = metrics.Default
	r.metricsPrefix = defaultMetricsPrefix
	r.tracer = &opentracing.NoopTracer{}
	r.log = &logging.DefaultLog{}

	ringOptions := &redis.RingOptions{
		Addrs: map[string]string{},
	}

	if ro != nil {
		for idx, addr := range ro.Addrs {
			ringOptions.Addrs[fmt.Sprintf("redis%d", idx)] = addr
		}
		ringOptions.Password = ro.Password
		ringOptions.ReadTimeout = ro.ReadTimeout
		ringOptions.WriteTimeout = ro.WriteTimeout
		ringOptions.PoolTimeout = ro.PoolTimeout
		ringOptions.DialTimeout = ro.DialTimeout
		ringOptions.MinIdleConns = ro.MinIdleConns
		ringOptions.MaxIdleConns = ro.MaxIdleConns
		ringOptions.ConnMaxIdleTime = ro.ConnMaxIdleTime
		ringOptions.HeartbeatFrequency = ro.HeartbeatFrequency

		if ro.ConnMetricsInterval <= 0 {
			ro.ConnMetricsInterval = defaultConnMetricsInterval
		}
		if ro.Tracer != nil {
			r.tracer = ro.Tracer
		}
		if ro.Log != nil {
			r.log = ro.Log
		}
		if ro.MetricsPrefix != "" {
			r.metricsPrefix = ro.MetricsPrefix
		}

		r.options = ro
		r.ring = redis.NewRing(ringOptions)
	}

	return r
}

// RingAvailable pings the ring with an exponential backoff and reports
// whether it became reachable.
func (r *RedisRingClient) RingAvailable() bool {
	// v4 WithMaxRetries(b, 6) allows 6 retries after the first attempt,
	// i.e. 7 tries total, matching v5 WithMaxTries(7).
	err := backoff.Retry(func() error {
		_, err := r.ring.Ping(context.Background()).Result()
		if err != nil {
			r.log.Infof("Failed to ping redis, retry with backoff: %v", err)
		}
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 6))

	return err == nil
}

func (r *RedisRingClient) StartMetricsCollection() {
	go func() {
		for {
			select {
			case <-time.After(r.options.ConnMetricsInterval):
				stats := r.ring.PoolStats()
				r.metrics.UpdateGauge(r.metricsPrefix+"hits", float64(stats.Hits))
				r.metrics.UpdateGauge(r.metricsPrefix+"idleconns", float64(stats.IdleConns))
				r.metrics.UpdateGauge(r.metricsPrefix+"misses", float64(stats.Misses))
				r.metrics.UpdateGauge(r.metricsPrefix+"staleconns", float64(stats.StaleConns))
				r.metrics.UpdateGauge(r.metricsPrefix+"timeouts", float64(stats.Timeouts))
				r.metrics.UpdateGauge(r.metricsPrefix+"totalconns", float64(stats.TotalConns))
			case <-r.quit:
				return
			}
		}
	}()
}

func (r *RedisRingClient) Metrics() metrics.Metrics {
	return r.metrics
}

func (r *RedisRingClient) Tracer() opentracing.Tracer {
	return r.tracer
}

// StartSpan starts a new span with the tracer configured for the
// client.
func (r *RedisRingClient) StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span {
	return r.tracer.StartSpan(operationName, opts...)
}

func (r *RedisRingClient) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		close(r.quit)
		if r.ring != nil {
			r.ring.Close()
		}
	})
}

// NewScript creates a new RedisScript for the given source. The sha
// hash of the script is loaded to the shards lazily on the first run.
func (r *RedisRingClient) NewScript(source string) *RedisScript {
	return &RedisScript{redis.NewScript(source)}
}

// RunScript runs the given script with keys and args on the ring and
// returns the reply of the script.
func (r *RedisRingClient) RunScript(ctx context.Context, s *RedisScript, keys []string, args ...interface{}) (interface{}, error) {
	return s.script.Run(ctx, r.ring, keys, args...).Result()
}
