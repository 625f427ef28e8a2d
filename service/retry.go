package service

import (
	"context"
	"errors"
	"time"

	"looseline/models"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const (
	conflictInitialInterval = 20 * time.Millisecond
	conflictMaxInterval     = 500 * time.Millisecond
)

// withConflictRetry runs fn again when it fails with ErrConcurrencyConflict.
// Every other error is returned on the first attempt. fn must open its own
// unit of work so each attempt starts from a fresh transaction.
func withConflictRetry(ctx context.Context, maxRetries int, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = conflictInitialInterval
	policy.MaxInterval = conflictMaxInterval
	policy.MaxElapsedTime = 0

	retries := 0
	if maxRetries > 1 {
		retries = maxRetries - 1
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrConcurrencyConflict) {
			return backoff.Permanent(err)
		}
		log.WithFields(log.Fields{
			"operation": op,
			"attempt":   attempt,
		}).Debug("Retrying after concurrency conflict")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
}
