package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/gemini"
	"github.com/snarg/pullquote/internal/metrics"
	"golang.org/x/time/rate"
)

// CallPolicy governs every model API call in the process: one shared rate
// limiter, bounded retries with exponential backoff, and a per-call timeout.
// A single policy instance is shared between transcription and extraction so
// concurrent chunk calls and follow-up analysis calls draw from the same
// request budget.
type CallPolicy struct {
	Limiter        *rate.Limiter
	Attempts       int
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	PerCallTimeout time.Duration
	Log            zerolog.Logger

	// OnRetry, if set, is invoked once per retried attempt. Used for metrics.
	OnRetry func()
}

// NewCallPolicy builds a policy with a token-bucket limiter at callsPerSec.
func NewCallPolicy(callsPerSec float64, burst, attempts int, minBackoff, maxBackoff, perCall time.Duration, log zerolog.Logger) *CallPolicy {
	return &CallPolicy{
		Limiter:        rate.NewLimiter(rate.Limit(callsPerSec), burst),
		Attempts:       attempts,
		MinBackoff:     minBackoff,
		MaxBackoff:     maxBackoff,
		PerCallTimeout: perCall,
		Log:            log.With().Str("component", "call_policy").Logger(),
	}
}

// Do runs fn under the policy. Each attempt first waits for a limiter token,
// then runs fn with the per-call timeout. Transient failures are retried
// with exponential backoff; permanent failures and context cancellation
// return immediately.
func (p *CallPolicy) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	backoff := p.MinBackoff
	var lastErr error

	for attempt := 1; attempt <= p.Attempts; attempt++ {
		waitStart := time.Now()
		if err := p.Limiter.Wait(ctx); err != nil {
			return err
		}
		metrics.RateLimitWaitSeconds.Observe(time.Since(waitStart).Seconds())

		callCtx, cancel := context.WithTimeout(ctx, p.PerCallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !gemini.IsTransient(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry()
		}
		p.Log.Warn().Err(err).
			Str("call", label).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("transient API failure, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return fmt.Errorf("%s: %d attempts exhausted: %w", label, p.Attempts, lastErr)
}
