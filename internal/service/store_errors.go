package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/institute-api/internal/repository"
	"github.com/noah-isme/institute-api/pkg/database"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
)

// txRunner executes fn inside one database transaction.
type txRunner interface {
	WithTx(ctx context.Context, fn repository.TxFunc) error
}

// storeError maps repository failures onto typed errors. Typed errors pass through untouched.
// A malformed identifier is NOT_FOUND for lookups and VALIDATION_ERROR for filters.
func storeError(err error, notFoundMsg, internalMsg string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if notFoundMsg != "" && errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
	}
	if database.IsInvalidText(err) {
		if notFoundMsg != "" {
			return appErrors.Clone(appErrors.ErrNotFound, notFoundMsg)
		}
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed identifier")
	}
	if database.IsConflict(err) {
		return appErrors.Wrap(err, appErrors.ErrTxConflict.Code, appErrors.ErrTxConflict.Status, appErrors.ErrTxConflict.Message)
	}
	return appErrors.Internal(err, internalMsg)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return appErrors.FromError(err).Code
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
