package step

import "time"

// Decision is the retry policy's verdict for one error kind.
type Decision struct {
	Retry       bool
	MaxAttempts int
	BackoffBase time.Duration
}

// Delay computes the backoff before re-running a step after the given 1-based
// attempt: BackoffBase * 2^(attempt-1).
func (d Decision) Delay(attempt int) time.Duration {
	if !d.Retry || attempt < 1 {
		return 0
	}
	return d.BackoffBase << (attempt - 1)
}

// Policy holds the per-kind retry budgets. Retry counters are kept per job,
// per step, per kind by the orchestrator; the policy itself is stateless.
type Policy struct {
	TransientMaxAttempts int
	TransientBackoff     time.Duration
	RateLimitMaxAttempts int
	RateLimitBackoff     time.Duration
}

// DefaultPolicy returns the standard budgets: transient failures (including
// timeouts) retry up to 3 attempts from a 2s base, rate limits up to 5
// attempts from a 60s base.
func DefaultPolicy() Policy {
	return Policy{
		TransientMaxAttempts: 3,
		TransientBackoff:     2 * time.Second,
		RateLimitMaxAttempts: 5,
		RateLimitBackoff:     60 * time.Second,
	}
}

// Classify maps an error kind to a retry decision. Validation and quota
// exhaustion abort immediately; unclassified errors abort too, and the
// orchestrator logs them as policy-table defects.
func (p Policy) Classify(kind ErrorKind) Decision {
	switch kind {
	case KindTransient, KindTimeout:
		return Decision{Retry: true, MaxAttempts: p.TransientMaxAttempts, BackoffBase: p.TransientBackoff}
	case KindRateLimit:
		return Decision{Retry: true, MaxAttempts: p.RateLimitMaxAttempts, BackoffBase: p.RateLimitBackoff}
	default:
		return Decision{}
	}
}
