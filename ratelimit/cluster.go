package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	"github.com/viaduct-io/viaduct/logging"
	"github.com/viaduct-io/viaduct/metrics"
	"github.com/viaduct-io/viaduct/net"
)

// ClusterLimiter implements a distributed token bucket using Redis.
type ClusterLimiter struct {
	client  scriptRunner
	script  *net.RedisScript
	metrics metrics.Metrics
	log     logging.Logger
	now     func() time.Time
}

// scriptRunner is the part of the redis ring client used by the
// cluster limiter.
type scriptRunner interface {
	NewScript(source string) *net.RedisScript
	RunScript(ctx context.Context, s *net.RedisScript, keys []string, args ...interface{}) (interface{}, error)
	StartSpan(operationName string, opts ...opentracing.StartSpanOption) opentracing.Span
}

const (
	clusterKeyPrefix       = "ratelimit."
	clusterTokensSuffix    = ".tokens"
	clusterTimestampSuffix = ".timestamp"

	clusterMetricPrefix  = "ratelimit.redis."
	clusterMetricLatency = clusterMetricPrefix + "latency"
	clusterMetricFailure = clusterMetricPrefix + "failure"
	clusterSpanName      = "redis_tokenbucket"
)

// Implements the token bucket refill and take as a Redis lua script.
// Redis guarantees that a script is executed in an atomic way: no
// other script or Redis command runs while a script is being executed.
// The refill is computed from the elapsed seconds since the stored
// timestamp, so the bucket needs no background filler.
//
// See https://redis.io/commands/eval
//
//go:embed tokenbucket.lua
var tokenBucketScript string

// NewClusterLimiter creates a limiter that checks token buckets in
// Redis through the given ring client.
func NewClusterLimiter(c *net.RedisRingClient) *ClusterLimiter {
	return newClusterLimiter(c, time.Now)
}

func newClusterLimiter(c scriptRunner, now func() time.Time) *ClusterLimiter {
	return &ClusterLimiter{
		client:  c,
		script:  c.NewScript(tokenBucketScript),
		metrics: metrics.Default,
		log:     &logging.DefaultLog{},
		now:     now,
	}
}

// Allow checks the bucket of the given group and key and reports
// whether the request may proceed. Counter store failures are
// recovered by failing open.
func (l *ClusterLimiter) Allow(ctx context.Context, s Settings, group, key string) Result {
	now := l.now()
	span := l.startSpan(ctx, s)
	defer span.Finish()
	defer l.metrics.MeasureSince(clusterMetricLatency, now)

	r, err := l.client.RunScript(ctx, l.script,
		[]string{
			bucketKey(group, key, clusterTokensSuffix),
			bucketKey(group, key, clusterTimestampSuffix),
		},
		s.ReplenishRate, // ARGV[1] refill per second
		s.BurstCapacity, // ARGV[2] bucket capacity
		now.Unix(),      // ARGV[3] current time in seconds
		1,               // ARGV[4] requested tokens
	)
	if err != nil {
		l.log.Errorf("failed to run the rate limiter script, failing open: %v", err)
		l.metrics.IncCounter(clusterMetricFailure)
		ext.Error.Set(span, true)
		return Result{Allowed: true, TokensRemaining: FailOpenRemaining}
	}

	reply, ok := r.([]interface{})
	if !ok || len(reply) != 2 {
		l.log.Errorf("unexpected rate limiter script reply, failing open: %v", r)
		l.metrics.IncCounter(clusterMetricFailure)
		ext.Error.Set(span, true)
		return Result{Allowed: true, TokensRemaining: FailOpenRemaining}
	}

	allowed, _ := reply[0].(int64)
	tokens, _ := reply[1].(int64)
	return Result{Allowed: allowed == 1, TokensRemaining: tokens}
}

// bucketKey colocates the token count and the timestamp of one bucket
// under a single hash tag, so both land on the same shard.
func bucketKey(group, key, suffix string) string {
	return clusterKeyPrefix + "{" + group + "." + key + "}" + suffix
}

func (l *ClusterLimiter) startSpan(ctx context.Context, s Settings) opentracing.Span {
	spanOpts := []opentracing.StartSpanOption{opentracing.Tags{
		string(ext.Component): "viaduct",
		string(ext.DBType):    "redis",
		string(ext.SpanKind):  ext.SpanKindRPCClientEnum,
		"ratelimit_type":      "clusterTokenBucket",
		"ratelimit_settings":  fmt.Sprint(s),
	}}
	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		spanOpts = append(spanOpts, opentracing.ChildOf(parent.Context()))
	}
	return l.client.StartSpan(clusterSpanName, spanOpts...)
}
