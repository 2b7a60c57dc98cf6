package wallet

import (
	"errors"
	"fmt"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/repositories"
)

// storeErr maps ledger store errors onto the domain taxonomy. Unknown errors
// are wrapped with the operation name.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrWalletNotFound):
		return apperrors.Wrap(apperrors.ErrNotFound, "wallet not found", err)
	case errors.Is(err, repositories.ErrInvalidTransaction):
		return apperrors.Wrap(apperrors.ErrValidation, err.Error(), err)
	case errors.Is(err, repositories.ErrDuplicateTransaction):
		return apperrors.Wrap(apperrors.ErrDuplicateTransaction, "", err)
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// errorKind is the metrics label for err.
func errorKind(err error) string {
	if code := apperrors.CodeOf(err); code != "" {
		return code
	}
	return "internal"
}
