package telemetry

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds the exponential backoff applied to retryable
// export failures. Delivered and fatal outcomes return immediately;
// only retryable outcomes consume attempts.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	JitterEnabled bool
}

// DefaultRetryPolicy provides sensible defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   4,
		BaseDelay:     200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		JitterEnabled: true,
	}
}

// Execute runs send until it stops returning a retryable outcome or the
// attempt budget is spent. It returns the final outcome and the number
// of attempts made. Context cancellation cuts the backoff sleep short
// and reports the in-flight batch as retryable (the caller decides
// whether to drop it).
func (p RetryPolicy) Execute(ctx context.Context, send func(context.Context) Outcome) (Outcome, int) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	delay := p.BaseDelay

	for attempt := 1; ; attempt++ {
		outcome := send(ctx)
		if outcome != OutcomeRetryable || attempt == p.MaxAttempts {
			return outcome, attempt
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * 2.0)
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
		sleep := delay
		if p.JitterEnabled {
			// Desynchronizes retries across processes hammering the
			// same collector.
			sleep += time.Duration(float64(delay) * 0.1 * math.Sin(float64(attempt)))
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return OutcomeRetryable, attempt
		case <-timer.C:
		}
	}
}
