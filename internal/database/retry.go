package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courierchat/internal/constants"
)

// retryableDBOperation executes a cache operation with retry on transient
// sqlite failures such as a locked database file.
func retryableDBOperation(ctx context.Context, operation func() error, operationName string) error {
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableDBError(err) {
			return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
		}

		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if backoff > time.Duration(constants.DefaultMaxBackoffMs)*time.Millisecond {
			backoff = time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxAttempts, lastErr)
}

// isRetryableDBError determines if a cache error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()

	if strings.Contains(errStr, "database is locked") {
		return true
	}
	if strings.Contains(errStr, "disk I/O error") {
		return true
	}

	// Constraint and schema errors will not fix themselves.
	if strings.Contains(errStr, "UNIQUE constraint") || strings.Contains(errStr, "FOREIGN KEY constraint") {
		return false
	}
	if strings.Contains(errStr, "no such table") || strings.Contains(errStr, "no such column") {
		return false
	}

	return false
}
