package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds the retries of EnsureNamespace.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Step is the linear backoff increment: Step, 2*Step, ...
	Step time.Duration
}

// DefaultRetryPolicy tries three times, waiting 100ms then 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Step: 100 * time.Millisecond}
}

// linearBackOff implements backoff.BackOff with a linearly growing delay.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// EnsureNamespace calls store.EnsureNamespace, retrying transient failures
// according to policy. It is the only retried storage operation.
func EnsureNamespace(ctx context.Context, store BlobStore, namespace string, policy RetryPolicy, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var b backoff.BackOff = &linearBackOff{step: policy.Step}
	b = backoff.WithMaxRetries(b, uint64(policy.Attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (string, error) {
		attempt++
		return store.EnsureNamespace(ctx, namespace)
	}, b, func(err error, wait time.Duration) {
		logger.Warn("Ensuring namespace failed, retrying",
			zap.String("namespace", namespace),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
}
