package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"reserver/internal/shared/apperrors"

	"gorm.io/gorm"
)

const txMaxAttempts = 3

// Backoff between transaction retries: 100/200/300 ms.
var txBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on failure. Serialization and deadlock failures are retried up to 3
// times with increasing backoff; any other error propagates unchanged.
func WithTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperrors.Wrap(apperrors.KindTransient, "transaction cancelled", ctx.Err())
			case <-time.After(txBackoff[attempt-1]):
			}
		}

		err := db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return apperrors.Wrap(apperrors.KindTransient, "transaction retries exhausted", lastErr)
}

// IsRetryable reports whether err is a transient conflict worth retrying:
// serialization failures, deadlocks, or duplicate-key races on guarded
// inserts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	// Postgres SQLSTATE 40001 (serialization_failure) and 40P01 (deadlock_detected).
	return strings.Contains(msg, "40001") ||
		strings.Contains(msg, "40P01") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "could not serialize")
}
