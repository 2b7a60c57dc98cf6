package repositories

import (
	"context"
	"errors"
	"fmt"

	"scoutpay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type referralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func (r *referralRepository) GetByUserID(ctx context.Context, userID string) (*models.ReferralAccount, error) {
	var acc models.ReferralAccount
	if err := r.db.WithContext(ctx).First(&acc, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral account: %w", err)
	}
	return &acc, nil
}

func (r *referralRepository) GetByCode(ctx context.Context, code string) (*models.ReferralAccount, error) {
	var acc models.ReferralAccount
	if err := r.db.WithContext(ctx).First(&acc, "referral_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral account: %w", err)
	}
	return &acc, nil
}

func (r *referralRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReferralAccount{}).
		Where("referral_code = ?", code).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check referral code: %w", err)
	}
	return count > 0, nil
}

func (r *referralRepository) Create(ctx context.Context, account *models.ReferralAccount) error {
	if account.ReferredUsers == nil {
		account.ReferredUsers = models.StringSet{}
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateReferral
		}
		return fmt.Errorf("failed to create referral account: %w", err)
	}
	return nil
}

func (r *referralRepository) AddReferral(ctx context.Context, code, newUserID string, points int64) (*models.ReferralAccount, error) {
	var acc models.ReferralAccount
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("referral_code = ?", code).
			First(&acc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReferralNotFound
			}
			return err
		}

		if acc.ReferredUsers.Contains(newUserID) {
			return ErrAlreadyReferred
		}
		acc.ReferredUsers = acc.ReferredUsers.Add(newUserID)
		acc.Points += points

		return tx.Model(&acc).Updates(map[string]interface{}{
			"referred_users": acc.ReferredUsers,
			"points":         acc.Points,
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrReferralNotFound) || errors.Is(err, ErrAlreadyReferred) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to add referral: %w", err)
	}
	return &acc, nil
}

func (r *referralRepository) Withdraw(ctx context.Context, userID, reference string) (int64, error) {
	var withdrawn int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc models.ReferralAccount
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&acc, "user_id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReferralNotFound
			}
			return err
		}
		if acc.PendingCredit > 0 {
			return ErrWithdrawalPending
		}
		if acc.Points == 0 {
			return nil
		}

		withdrawn = acc.Points
		return tx.Model(&acc).Updates(map[string]interface{}{
			"points":            0,
			"pending_credit":    withdrawn,
			"pending_reference": reference,
		}).Error
	})
	if err != nil {
		if errors.Is(err, ErrReferralNotFound) || errors.Is(err, ErrWithdrawalPending) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to withdraw referral points: %w", err)
	}
	return withdrawn, nil
}

func (r *referralRepository) SettleWithdrawal(ctx context.Context, userID, reference string) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReferralAccount{}).
		Where("user_id = ? AND pending_reference = ?", userID, reference).
		Updates(map[string]interface{}{
			"pending_credit":    0,
			"pending_reference": "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to settle referral withdrawal: %w", result.Error)
	}
	return nil
}

func (r *referralRepository) ListPendingWithdrawals(ctx context.Context, limit int) ([]models.ReferralAccount, error) {
	var accounts []models.ReferralAccount
	err := r.db.WithContext(ctx).
		Where("pending_credit > 0").
		Order("updated_at ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending withdrawals: %w", err)
	}
	return accounts, nil
}
