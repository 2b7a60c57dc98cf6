// Package referral manages referral codes and the points users earn by
// inviting others.
package referral

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/models"
	"scoutpay/internal/repositories"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	CodeLength             = 8
	DefaultMaxCodeAttempts = 10
	DefaultPoints          = 50
	codeAlphabet           = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type Config struct {
	PointsPerReferral int64
	MaxCodeAttempts   int
}

// Withdrawal is the result of zeroing a referral account. Reference
// identifies the pending credit until it is settled.
type Withdrawal struct {
	UserID    string
	Points    int64
	Reference string
}

type Service struct {
	repo    repositories.ReferralRepository
	config  Config
	logger  *zap.Logger
	newCode func() (string, error)
	now     func() time.Time
}

type Option func(*Service)

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo repositories.ReferralRepository, config Config, logger *zap.Logger, opts ...Option) *Service {
	if repo == nil {
		panic("referral repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PointsPerReferral <= 0 {
		config.PointsPerReferral = DefaultPoints
	}
	if config.MaxCodeAttempts <= 0 {
		config.MaxCodeAttempts = DefaultMaxCodeAttempts
	}

	s := &Service{
		repo:    repo,
		config:  config,
		logger:  logger.Named("referral"),
		newCode: RandomCode,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomCode samples CodeLength characters from [A-Z0-9].
func RandomCode() (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

func (s *Service) fallbackCode() string {
	code := strings.ToUpper(strconv.FormatInt(s.now().UnixNano(), 36))
	if len(code) > CodeLength {
		code = code[len(code)-CodeLength:]
	}
	return code
}

func (s *Service) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < s.config.MaxCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			s.logger.Warn("referral code generation failed", zap.Error(err))
			continue
		}
		exists, err := s.repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	code := s.fallbackCode()
	s.logger.Warn("referral code attempts exhausted, using timestamp code",
		zap.Int("attempts", s.config.MaxCodeAttempts),
		zap.String("code", code),
	)
	return code, nil
}

// GetOrCreate returns the user's referral account, creating it with a fresh
// code on first use.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (*models.ReferralAccount, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validationf("user id is required")
	}

	acc, err := s.repo.GetByUserID(ctx, userID)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, repositories.ErrReferralNotFound) {
		return nil, fmt.Errorf("failed to load referral account: %w", err)
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate referral code: %w", err)
	}
	acc = &models.ReferralAccount{
		UserID:        userID,
		ReferralCode:  code,
		ReferredUsers: models.StringSet{},
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, repositories.ErrDuplicateReferral) {
			// a concurrent request created it first
			if existing, getErr := s.repo.GetByUserID(ctx, userID); getErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to create referral account: %w", err)
	}

	s.logger.Info("referral account created", zap.String("user_id", userID), zap.String("code", code))
	return acc, nil
}

// ProcessReferral credits the owner of code for bringing in newUserID. A
// non-positive points value awards the configured default.
func (s *Service) ProcessReferral(ctx context.Context, code, newUserID string, points int64) (*models.ReferralAccount, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, apperrors.Validationf("referral code is required")
	}
	if strings.TrimSpace(newUserID) == "" {
		return nil, apperrors.Validationf("referred user id is required")
	}
	if points <= 0 {
		points = s.config.PointsPerReferral
	}

	owner, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			return nil, apperrors.ErrInvalidReferralCode
		}
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}
	if owner.UserID == newUserID {
		return nil, apperrors.Validationf("cannot use your own referral code")
	}

	acc, err := s.repo.AddReferral(ctx, code, newUserID, points)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrReferralNotFound):
			return nil, apperrors.ErrInvalidReferralCode
		case errors.Is(err, repositories.ErrAlreadyReferred):
			return nil, apperrors.ErrAlreadyReferred
		}
		return nil, fmt.Errorf("failed to record referral: %w", err)
	}

	s.logger.Info("referral processed",
		zap.String("referrer", acc.UserID),
		zap.String("referred", newUserID),
		zap.Int64("points", acc.Points),
	)
	return acc, nil
}

// Withdraw zeroes the user's points and marks them as awaiting a wallet
// credit. Zero points yields an empty Withdrawal and no marker.
func (s *Service) Withdraw(ctx context.Context, userID string) (Withdrawal, error) {
	reference := ulid.Make().String()
	points, err := s.repo.Withdraw(ctx, userID, reference)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			return Withdrawal{}, apperrors.Wrap(apperrors.ErrNotFound, "referral account not found", err)
		}
		return Withdrawal{}, err
	}
	if points == 0 {
		return Withdrawal{UserID: userID}, nil
	}
	return Withdrawal{UserID: userID, Points: points, Reference: reference}, nil
}

// Settle clears the pending marker for a credited withdrawal.
func (s *Service) Settle(ctx context.Context, w Withdrawal) error {
	return s.repo.SettleWithdrawal(ctx, w.UserID, w.Reference)
}

// PendingWithdrawals lists withdrawals whose wallet credit is not yet
// confirmed.
func (s *Service) PendingWithdrawals(ctx context.Context, limit int) ([]Withdrawal, error) {
	accounts, err := s.repo.ListPendingWithdrawals(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Withdrawal, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, Withdrawal{UserID: a.UserID, Points: a.PendingCredit, Reference: a.PendingReference})
	}
	return out, nil
}

// Pending returns the user's unsettled withdrawal, if any.
func (s *Service) Pending(ctx context.Context, userID string) (*Withdrawal, error) {
	acc, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if acc.PendingCredit == 0 {
		return nil, nil
	}
	return &Withdrawal{UserID: userID, Points: acc.PendingCredit, Reference: acc.PendingReference}, nil
}
