package runtime

import "time"

// BackoffPolicy computes restart delays for a failing subscription.
// Delays grow as Base*2^retries capped at Cap. Once MaxFailures consecutive
// failures have been scheduled, the next one waits Cooldown and the count resets.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxFailures int
	Cooldown    time.Duration
}

// Next returns the delay for a failure observed after `retries` consecutive failures,
// and the retry count to keep afterward.
func (p BackoffPolicy) Next(retries int) (time.Duration, int) {
	if p.MaxFailures > 0 && retries >= p.MaxFailures {
		return p.Cooldown, 0
	}
	delay := p.Base
	for i := 0; i < retries; i++ {
		if delay >= p.Cap/2 {
			delay = p.Cap
			break
		}
		delay *= 2
	}
	if delay > p.Cap {
		delay = p.Cap
	}
	return delay, retries + 1
}
