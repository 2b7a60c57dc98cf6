package repositories

import (
	"context"
	"errors"

	"scoutpay/internal/models"
)

var (
	ErrReferralNotFound  = errors.New("referral account not found")
	ErrDuplicateReferral = errors.New("referral account or code already exists")
	ErrAlreadyReferred   = errors.New("user already referred")
	ErrWithdrawalPending = errors.New("previous referral withdrawal not yet credited")
)

// ReferralRepository persists referral accounts.
type ReferralRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.ReferralAccount, error)
	GetByCode(ctx context.Context, code string) (*models.ReferralAccount, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, account *models.ReferralAccount) error

	// AddReferral atomically appends newUserID to the account owning code
	// and adds points to it.
	AddReferral(ctx context.Context, code, newUserID string, points int64) (*models.ReferralAccount, error)

	// Withdraw zeroes the points of userID and records them as a pending
	// credit under reference in the same write. It returns the points that
	// were withdrawn.
	Withdraw(ctx context.Context, userID, reference string) (int64, error)
	// SettleWithdrawal clears the pending credit if it still carries reference.
	SettleWithdrawal(ctx context.Context, userID, reference string) error
	ListPendingWithdrawals(ctx context.Context, limit int) ([]models.ReferralAccount, error)
}
