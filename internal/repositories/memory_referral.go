package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"scoutpay/internal/models"
)

// MemoryReferralRepository keeps referral accounts in process.
type MemoryReferralRepository struct {
	mu       sync.Mutex
	accounts map[string]models.ReferralAccount
	codes    map[string]string
}

func NewMemoryReferralRepository() *MemoryReferralRepository {
	return &MemoryReferralRepository{
		accounts: make(map[string]models.ReferralAccount),
		codes:    make(map[string]string),
	}
}

func copyAccount(a models.ReferralAccount) *models.ReferralAccount {
	a.ReferredUsers = append(models.StringSet{}, a.ReferredUsers...)
	return &a
}

func (r *MemoryReferralRepository) GetByUserID(_ context.Context, userID string) (*models.ReferralAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return nil, ErrReferralNotFound
	}
	return copyAccount(a), nil
}

func (r *MemoryReferralRepository) GetByCode(_ context.Context, code string) (*models.ReferralAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.codes[code]
	if !ok {
		return nil, ErrReferralNotFound
	}
	return copyAccount(r.accounts[userID]), nil
}

func (r *MemoryReferralRepository) CodeExists(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.codes[code]
	return ok, nil
}

func (r *MemoryReferralRepository) Create(_ context.Context, account *models.ReferralAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.UserID]; ok {
		return ErrDuplicateReferral
	}
	if _, ok := r.codes[account.ReferralCode]; ok {
		return ErrDuplicateReferral
	}
	if account.ReferredUsers == nil {
		account.ReferredUsers = models.StringSet{}
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.UserID] = *copyAccount(*account)
	r.codes[account.ReferralCode] = account.UserID
	return nil
}

func (r *MemoryReferralRepository) AddReferral(_ context.Context, code, newUserID string, points int64) (*models.ReferralAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.codes[code]
	if !ok {
		return nil, ErrReferralNotFound
	}
	a := r.accounts[userID]
	if a.ReferredUsers.Contains(newUserID) {
		return nil, ErrAlreadyReferred
	}
	a.ReferredUsers = append(models.StringSet{}, a.ReferredUsers...).Add(newUserID)
	a.Points += points
	a.UpdatedAt = time.Now()
	r.accounts[userID] = a
	return copyAccount(a), nil
}

func (r *MemoryReferralRepository) Withdraw(_ context.Context, userID, reference string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok {
		return 0, ErrReferralNotFound
	}
	if a.PendingCredit > 0 {
		return 0, ErrWithdrawalPending
	}
	if a.Points == 0 {
		return 0, nil
	}
	withdrawn := a.Points
	a.Points = 0
	a.PendingCredit = withdrawn
	a.PendingReference = reference
	a.UpdatedAt = time.Now()
	r.accounts[userID] = a
	return withdrawn, nil
}

func (r *MemoryReferralRepository) SettleWithdrawal(_ context.Context, userID, reference string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[userID]
	if !ok || a.PendingReference != reference {
		return nil
	}
	a.PendingCredit = 0
	a.PendingReference = ""
	a.UpdatedAt = time.Now()
	r.accounts[userID] = a
	return nil
}

func (r *MemoryReferralRepository) ListPendingWithdrawals(_ context.Context, limit int) ([]models.ReferralAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReferralAccount
	for _, a := range r.accounts {
		if a.PendingCredit > 0 {
			out = append(out, *copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryNotificationRepository keeps notifications in process.
type MemoryNotificationRepository struct {
	mu    sync.Mutex
	items []models.Notification
}

func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{}
}

func (r *MemoryNotificationRepository) Append(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.EnsureID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.items = append(r.items, *n)
	return nil
}

func (r *MemoryNotificationRepository) ListByUser(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for i := len(r.items) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if r.items[i].UserID == userID {
			out = append(out, r.items[i])
		}
	}
	return out, nil
}
