package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/logger"
)

// RetryPolicy bounds how a synthesis call is retried
type RetryPolicy struct {
	MaxAttempts    int
	Timeout        time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Retrying retries transient failures of the wrapped Synthesizer with
// exponential backoff. Each attempt runs under its own timeout.
type Retrying struct {
	next   Synthesizer
	policy RetryPolicy
	log    *logger.Logger
}

// NewRetrying wraps next
func NewRetrying(next Synthesizer, policy RetryPolicy, log *logger.Logger) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Retrying{next: next, policy: policy, log: log.With("component", "synthesis")}
}

// Generate implements Synthesizer
func (r *Retrying) Generate(ctx context.Context, prompt string) (string, error) {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialBackoff > 0 {
		b.InitialInterval = r.policy.InitialBackoff
	}
	if r.policy.MaxBackoff > 0 {
		b.MaxInterval = r.policy.MaxBackoff
	}

	attempt := 0
	out, err := backoff.Retry(ctx, func() (string, error) {
		attempt++
		text, err := r.generateOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if !apperr.IsRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Warn("synthesis attempt failed, retrying", "attempt", attempt, "err", err, "wait", wait)
		}),
	)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal && ctx.Err() != nil {
			err = apperr.New(apperr.Cancelled, err)
		}
		r.log.Error("synthesis failed", "attempts", attempt, "kind", apperr.KindOf(err), "err", err)
		return "", err
	}
	r.log.Info("synthesis complete", "attempts", attempt, "chars", len(out))
	return out, nil
}

func (r *Retrying) generateOnce(ctx context.Context, prompt string) (string, error) {
	actx := ctx
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}

	text, err := r.next.Generate(actx, prompt)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", apperr.New(apperr.Cancelled, ctx.Err())
	}
	if errors.Is(actx.Err(), context.DeadlineExceeded) && !apperr.IsRetryable(err) {
		// The attempt ran out of time, whatever the backend reported.
		return "", apperr.New(apperr.UpstreamTimeout, err)
	}
	return "", err
}
