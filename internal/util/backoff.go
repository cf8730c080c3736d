package util

import (
	"math"
	"time"

	"github.com/relaymcp/meridian/internal/core/domain"
)

// CalculateExponentialBackoff computes exponential backoff with optional jitter.
// Formula: baseDelay * 2^(attempt-1), capped at maxDelay
func CalculateExponentialBackoff(attempt int, baseDelay time.Duration, maxDelay time.Duration, jitterPercent float64) time.Duration {
	if attempt <= 0 {
		return 0
	}

	backoff := float64(baseDelay) * math.Pow(2, float64(attempt-1))

	if backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}

	if jitterPercent > 0 {
		// Time-based pseudo-random avoids import of math/rand
		pseudoRandom := float64(time.Now().UnixNano()%1000) / 1000.0
		jitter := backoff * jitterPercent * (pseudoRandom - 0.5)
		backoff += jitter
	}

	return time.Duration(backoff)
}

// CalculateConnectionRetryBackoff computes backoff for reconnect attempts
// after the initial connect sequence has been exhausted. Linear
// progression, capped at MaxReconnectBackoff.
func CalculateConnectionRetryBackoff(consecutiveFailures int) time.Duration {
	backoffDuration := time.Duration(consecutiveFailures*domain.ReconnectBackoffMultiplier) * time.Second
	if backoffDuration > domain.MaxReconnectBackoff {
		backoffDuration = domain.MaxReconnectBackoff
	}
	return backoffDuration
}
