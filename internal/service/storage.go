package service

import (
	"context"
	"errors"
	"time"

	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

const defaultStorageTimeout = 5 * time.Second

// storageCtx bounds one store round-trip so no operation in the core can
// hang on an unresponsive backend.
func storageCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// storageFailure maps a failed store call onto the typed error surface:
// an exceeded deadline becomes StorageTimeout (retryable with backoff by
// the caller), anything else an internal error.
func storageFailure(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrStorageTimeout.Code, appErrors.ErrStorageTimeout.Status, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
