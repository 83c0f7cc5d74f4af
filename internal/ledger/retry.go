package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/apostle/apostle-backend/internal/domain"
)

// RetryPolicy bounds the read-modify-conditional-write loop: MaxAttempts
// total attempts with exponential backoff starting at InitialInterval and
// doubling. This retry, together with the store's conditional write, is
// the only concurrency control in the ledger.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Second}
}

// Do runs op, retrying on version conflicts and transient store failures.
// Business-rule violations abort immediately; exhausting the attempts
// surfaces the last error to the caller.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	return p.DoIf(ctx, Retryable, op)
}

// DoIf is Do with a caller-supplied retryability predicate, for layers
// that retry a different error set than the ledger itself.
func (p RetryPolicy) DoIf(ctx context.Context, retryable func(error) bool, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
}

// Retryable reports whether err is worth another attempt. Insufficient
// balance, missing accounts and the like are final the moment they occur.
func Retryable(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrTransientStore)
}
