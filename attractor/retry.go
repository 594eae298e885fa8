// ABOUTME: Retry policies with exponential backoff, jitter, and transient-error classification.
// ABOUTME: Provides the preset policies (none, standard, aggressive, linear, patient) and per-node policy building.
package attractor

import (
	"math"
	"math/rand"
	"strings"
	"time"
)

// BackoffConfig controls delay timing between retry attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Delay computes the backoff for a 1-indexed attempt:
// min(initial * factor^(attempt-1), max), optionally scaled by a uniform
// jitter draw in [0.5, 1.5), rounded to the nearest millisecond.
func (b BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(b.InitialDelay.Milliseconds()) * math.Pow(b.Factor, float64(attempt-1))
	capped := math.Min(base, float64(b.MaxDelay.Milliseconds()))
	if b.Jitter {
		capped *= 0.5 + rand.Float64()
	}
	ms := math.Round(capped)
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// RetryPolicy bounds how often a node execution is retried and how retryable
// failures are classified.
type RetryPolicy struct {
	MaxAttempts int // minimum 1; 1 means no retries
	Backoff     BackoffConfig
	ShouldRetry func(error) bool
}

// RetryPolicyNone performs a single attempt.
func RetryPolicyNone() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 1,
		Backoff:     BackoffConfig{InitialDelay: 0, Factor: 1, MaxDelay: 0},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyStandard retries up to 5 attempts with exponential backoff.
func RetryPolicyStandard() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     BackoffConfig{InitialDelay: 200 * time.Millisecond, Factor: 2.0, MaxDelay: 60 * time.Second, Jitter: true},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyAggressive retries up to 5 attempts starting at a higher delay.
func RetryPolicyAggressive() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Backoff:     BackoffConfig{InitialDelay: 500 * time.Millisecond, Factor: 2.0, MaxDelay: 60 * time.Second, Jitter: true},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyLinear retries up to 3 attempts with a constant delay.
func RetryPolicyLinear() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffConfig{InitialDelay: 500 * time.Millisecond, Factor: 1.0, MaxDelay: 60 * time.Second, Jitter: true},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyPatient retries up to 3 attempts with slow, steep backoff.
func RetryPolicyPatient() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffConfig{InitialDelay: 2 * time.Second, Factor: 3.0, MaxDelay: 60 * time.Second, Jitter: true},
		ShouldRetry: DefaultShouldRetry,
	}
}

// RetryPolicyByName resolves a preset by name, defaulting to standard.
func RetryPolicyByName(name string) RetryPolicy {
	switch name {
	case "none":
		return RetryPolicyNone()
	case "aggressive":
		return RetryPolicyAggressive()
	case "linear":
		return RetryPolicyLinear()
	case "patient":
		return RetryPolicyPatient()
	default:
		return RetryPolicyStandard()
	}
}

// retryableMarkers are substrings indicating a transient failure.
var retryableMarkers = []string{"429", "rate limit", "network", "timeout"}

// permanentMarkers are substrings indicating a failure that will not
// succeed on retry.
var permanentMarkers = []string{"400", "401", "403", "bad request"}

// DefaultShouldRetry is the heuristic transient classifier: retry on rate
// limiting, networking, and timeout markers (checked first); otherwise not
// on client-error markers; otherwise retry.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}

// BuildRetryPolicy derives a node's policy: the node's retry budget plus one
// initial attempt, on the standard backoff curve.
func BuildRetryPolicy(node *GraphNode, graph *Graph) RetryPolicy {
	policy := RetryPolicyStandard()
	policy.MaxAttempts = node.MaxRetries + 1
	return policy
}
