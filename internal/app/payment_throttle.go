package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle scopes. Anonymous payment intents are counted per client address,
// checkouts per signed-in user.
const (
	ThrottlePaymentIntent = "payment_intent"
	ThrottleCheckout      = "checkout"
)

// ClientSubject keys an anonymous caller by network address.
func ClientSubject(ip string) string { return "ip:" + strings.TrimSpace(ip) }

// UserSubject keys a signed-in caller by user id.
func UserSubject(userID string) string { return "user:" + strings.TrimSpace(userID) }

// ThrottleDecision is the outcome of counting one payment attempt.
type ThrottleDecision struct {
	Attempts   int
	Limit      int
	RetryAfter time.Duration
}

// Allowed reports whether the attempt fits in the current window.
func (d ThrottleDecision) Allowed() bool {
	return d.Limit <= 0 || d.Attempts <= d.Limit
}

// RetryAfterSeconds rounds RetryAfter up for the Retry-After header.
func (d ThrottleDecision) RetryAfterSeconds() int {
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// The window starts with the first attempt; later attempts only increment.
var paymentWindowScript = redis.NewScript(`
redis.call("SET", KEYS[1], 0, "PX", ARGV[1], "NX")
local attempts = redis.call("INCR", KEYS[1])
return {attempts, redis.call("PTTL", KEYS[1])}
`)

// RedisPaymentThrottle caps payment attempts per subject in a fixed window
// shared by every replica.
type RedisPaymentThrottle struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisPaymentThrottle allows limit attempts per window. A nil client or a
// non-positive limit disables throttling.
func NewRedisPaymentThrottle(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisPaymentThrottle {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "tree_adoption"
	}
	if window < time.Second {
		window = time.Minute
	}
	return &RedisPaymentThrottle{
		client: client,
		prefix: prefix + ":payment_throttle",
		limit:  limit,
		window: window,
	}
}

func (t *RedisPaymentThrottle) Allow(ctx context.Context, scope, subject string) (ThrottleDecision, error) {
	if t == nil || t.client == nil || t.limit <= 0 || strings.TrimSpace(subject) == "" {
		return ThrottleDecision{}, nil
	}

	res, err := paymentWindowScript.Run(ctx, t.client, []string{t.key(scope, subject)}, t.window.Milliseconds()).Int64Slice()
	if err != nil {
		return ThrottleDecision{}, err
	}
	if len(res) != 2 {
		return ThrottleDecision{}, fmt.Errorf("payment throttle: unexpected reply of %d values", len(res))
	}

	retryAfter := time.Duration(res[1]) * time.Millisecond
	if res[1] < 0 {
		retryAfter = t.window
	}
	return ThrottleDecision{Attempts: int(res[0]), Limit: t.limit, RetryAfter: retryAfter}, nil
}

func (t *RedisPaymentThrottle) key(scope, subject string) string {
	return t.prefix + ":" + scope + ":" + subject
}
