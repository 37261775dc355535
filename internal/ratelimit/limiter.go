package ratelimit

import (
	"context"
	"math"
	"strings"
	"time"
)

// Decision is the outcome of one Allow call. RetryAfter is set only when the
// request was rejected and the limiter knows when the key frees up.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Limiter decides whether one more request for key fits in the quota.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
