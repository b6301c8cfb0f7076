/*
Package ratelimit implements a distributed token bucket rate limiter.

The limiter maintains one bucket per group and key, where the group is
typically the route id and the key identifies the caller, resolved from
the request by a pluggable KeyResolver. Each bucket holds up to
BurstCapacity tokens and is refilled with ReplenishRate tokens per
second. A request takes one token from the bucket and is denied when
the bucket is empty.

The cluster limiter stores the buckets in Redis and updates them with
an atomic server side script, so concurrent checks for the same key
across multiple gateway instances cannot overdraw a bucket. The token
count and the refill timestamp are colocated under one hash tag so
that both keys land on the same shard of a partitioned deployment.

When Redis is unreachable or the script fails, the limiter fails open:
the request is allowed and the remaining token count is reported as
the FailOpenRemaining sentinel. Callers that need to observe counter
store failures can check for the sentinel.

The local limiter keeps the buckets in process memory and serves as a
standalone fallback when no Redis shards are configured.
*/
package ratelimit
