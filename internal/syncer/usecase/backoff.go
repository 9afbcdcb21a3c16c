package usecase

import (
	"math/rand/v2"
	"time"
)

// backoffDelay computes the exponential retry delay for a given attempt
// count: base doubled per attempt, capped, with ±20% jitter to spread retry
// storms across devices.
func backoffDelay(attempts int, base, cap time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	if delay > cap {
		delay = cap
	}

	// ±20% jitter
	jitter := 1 + (rand.Float64()*0.4 - 0.2) //nolint:gosec // scheduling jitter, not crypto
	return time.Duration(float64(delay) * jitter)
}
