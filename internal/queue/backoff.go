package queue

import (
	"math/rand/v2"
	"time"
)

// Backoff returns the delay before the given 1-based attempt: base doubled
// per attempt, capped at max, plus up to 20% jitter.
func Backoff(base, max time.Duration, attempt int64) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := int64(1); i < attempt && (max <= 0 || d < max); i++ {
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	jitter := time.Duration(rand.Int64N(int64(d)/5 + 1))
	return d + jitter
}
