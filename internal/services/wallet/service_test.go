package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "scoutpay/internal/errors"
	"scoutpay/internal/models"
	"scoutpay/internal/repositories"
	"scoutpay/internal/services/cards"
	"scoutpay/internal/services/gateway"
	"scoutpay/internal/services/notification"
	"scoutpay/internal/services/referral"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeGateway remembers the wallet each reference was opened for and hands
// it back as metadata on verification, the way the real gateway does.
type fakeGateway struct {
	mu          sync.Mutex
	verify      func(reference string, call int) (*gateway.VerifyResult, error)
	verifyCalls map[string]int
	owners      map[string]string
	charge      func(charge gateway.ChargeRequest, authCode string) (*gateway.VerifyResult, error)
	charges     []gateway.ChargeRequest
	checkouts   []*gateway.Checkout
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verifyCalls: make(map[string]int), owners: make(map[string]string)}
}

// own records reference as opened for walletID.
func (g *fakeGateway) own(reference, walletID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.owners[reference] = walletID
}

func (g *fakeGateway) remember(charge gateway.ChargeRequest) {
	if walletID, ok := charge.Metadata["wallet_id"].(string); ok {
		g.owners[charge.Reference] = walletID
	}
	g.charges = append(g.charges, charge)
}

func (g *fakeGateway) InitiateCheckout(_ context.Context, charge gateway.ChargeRequest, callbacks gateway.Callbacks) (*gateway.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c := gateway.NewCheckout(charge.Reference, "https://checkout.test/"+charge.Reference, "access", callbacks)
	g.remember(charge)
	g.checkouts = append(g.checkouts, c)
	return c, nil
}

func (g *fakeGateway) VerifyTransaction(_ context.Context, reference string) (*gateway.VerifyResult, error) {
	g.mu.Lock()
	g.verifyCalls[reference]++
	call := g.verifyCalls[reference]
	owner := g.owners[reference]
	fn := g.verify
	g.mu.Unlock()
	if fn == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "unknown reference", nil)
	}
	res, err := fn(reference, call)
	if res != nil && res.Metadata == nil && owner != "" {
		res.Metadata = map[string]interface{}{"wallet_id": owner}
	}
	return res, err
}

func (g *fakeGateway) ChargeAuthorization(_ context.Context, charge gateway.ChargeRequest, authCode string) (*gateway.VerifyResult, error) {
	g.mu.Lock()
	g.remember(charge)
	fn := g.charge
	g.mu.Unlock()
	if fn == nil {
		return nil, apperrors.Wrap(apperrors.ErrGatewayUnavailable, "", nil)
	}
	return fn(charge, authCode)
}

func (g *fakeGateway) calls(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyCalls[reference]
}

func settled(amountMinor int64) func(string, int) (*gateway.VerifyResult, error) {
	return func(reference string, _ int) (*gateway.VerifyResult, error) {
		return &gateway.VerifyResult{
			Reference:   reference,
			Success:     true,
			Status:      gateway.StatusSuccess,
			AmountMinor: amountMinor,
			Currency:    "NGN",
		}, nil
	}
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []*models.Notification
	events        []*notification.WalletEvent
	err           error
}

func (n *recordingNotifier) Notify(_ context.Context, note *models.Notification, event *notification.WalletEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, note)
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

// flakyStore fails whole store transactions while down is set.
type flakyStore struct {
	*repositories.MemoryStore
	mu   sync.Mutex
	down bool
}

func (f *flakyStore) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyStore) ExecuteInTransaction(ctx context.Context, fn func(repositories.LedgerStore) error) error {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return errors.New("store unavailable")
	}
	return f.MemoryStore.ExecuteInTransaction(ctx, fn)
}

type harness struct {
	svc       Service
	store     *flakyStore
	gateway   *fakeGateway
	referrals *referral.Service
	notifier  *recordingNotifier
	cards     *cards.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := &flakyStore{MemoryStore: repositories.NewMemoryStore()}
	gw := newFakeGateway()
	refs := referral.NewService(repositories.NewMemoryReferralRepository(), referral.Config{}, zap.NewNop())
	notifier := &recordingNotifier{}
	cardSvc := cards.NewService(store, cards.NewStripeTokenizer("sk_test_wallet"), zap.NewNop())

	svc := NewService(Dependencies{
		Store:     store,
		Gateway:   gw,
		Referrals: refs,
		Notifier:  notifier,
		Cards:     cardSvc,
		Logger:    zap.NewNop(),
	}, Config{
		MaxVerifyAttempts:     3,
		VerifyInitialInterval: time.Millisecond,
		VerifyMaxInterval:     5 * time.Millisecond,
	})
	return &harness{svc: svc, store: store, gateway: gw, referrals: refs, notifier: notifier, cards: cardSvc}
}

func (h *harness) wallet(t *testing.T, userID string) *models.Wallet {
	t.Helper()
	w, err := h.svc.GetOrCreateWallet(context.Background(), models.Identity{UserID: userID, Email: userID + "@example.com", DisplayName: userID})
	require.NoError(t, err)
	return w
}

func (h *harness) completed(t *testing.T, walletID string) []models.Transaction {
	t.Helper()
	all, err := h.store.ListTransactions(context.Background(), walletID, 0)
	require.NoError(t, err)
	var out []models.Transaction
	for _, tx := range all {
		if tx.Status == models.TransactionStatusCompleted {
			out = append(out, tx)
		}
	}
	return out
}

func (h *harness) balance(t *testing.T, walletID string) decimal.Decimal {
	t.Helper()
	w, err := h.store.GetWalletByID(context.Background(), walletID)
	require.NoError(t, err)
	return w.Balance
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// assertLedgerInvariant checks balance against the completed transactions.
func assertLedgerInvariant(t *testing.T, h *harness, walletID string) {
	t.Helper()
	w, err := h.store.GetWalletByID(context.Background(), walletID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, tx := range h.completed(t, walletID) {
		sum = sum.Add(tx.Signed())
	}
	assert.True(t, w.Balance.Equal(sum), "balance %s != ledger sum %s", w.Balance, sum)
	assert.True(t, w.Balance.Equal(w.TotalDeposited.Sub(w.TotalSpent)), "balance %s != deposited %s - spent %s", w.Balance, w.TotalDeposited, w.TotalSpent)
	assert.False(t, w.Balance.IsNegative())
}

func TestGetOrCreateWallet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	w := h.wallet(t, "user-1")
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, "NGN", w.Currency)
	assert.True(t, w.Balance.IsZero())
	assert.Equal(t, "user-1@example.com", w.Email)

	again, err := h.svc.GetOrCreateWallet(ctx, models.Identity{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, w.ID, again.ID)

	_, err = h.svc.GetOrCreateWallet(ctx, models.Identity{UserID: "  "})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestGetOrCreateWallet_ConcurrentFirstAccess(t *testing.T) {
	h := newHarness(t)

	const n = 25
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := h.svc.GetOrCreateWallet(context.Background(), models.Identity{UserID: "racer"})
			if assert.NoError(t, err) {
				ids[i] = w.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetWallet_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetWallet(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCompleteTopUp_CreditsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.wallet(t, "alice")

	res, err := h.svc.CompleteTopUp(ctx, w.ID, d("5000"), "R1", "success")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, res.Wallet.Balance.Equal(d("5000")))
	assert.Equal(t, models.TransactionTypeDeposit, res.Transaction.Type)
	assert.Equal(t, "R1", res.Transaction.Reference)
	assert.True(t, res.Transaction.Amount.Equal(d("5000")))

	again, err := h.svc.CompleteTopUp(ctx, w.ID, d("5000"), "R1", "success")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, res.Transaction.ID, again.Transaction.ID)

	assert.Len(t, h.completed(t, w.ID), 1)
	assert.True(t, h.balance(t, w.ID).Equal(d("5000")))
	assert.Equal(t, 1, h.notifier.count())
	assertLedgerInvariant(t, h, w.ID)
}

func TestCompleteTopUp_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		amount    string
		reference string
		status    string
		wantErr   error
	}{
		{name: "failed status", amount: "100", reference: "R1", status: "failed", wantErr: apperrors.ErrPaymentNotSuccessful},
		{name: "abandoned status", amount: "100", reference: "R1", status: "abandoned", wantErr: apperrors.ErrPaymentNotSuccessful},
		{name: "empty status", amount: "100", reference: "R1", status: "", wantErr: apperrors.ErrPaymentNotSuccessful},
		{name: "zero amount", amount: "0", reference: "R1", status: "success", wantErr: apperrors.ErrValidation},
		{name: "negative amount", amount: "-5", reference: "R1", status: "success", wantErr: apperrors.ErrValidation},
		{name: "sub-minor precision", amount: "1.005", reference: "R1", status: "success", wantErr: apperrors.ErrValidation},
		{name: "missing reference", amount: "100", reference: " ", status: "success", wantErr: apperrors.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			w := h.wallet(t, "alice")

			_, err := h.svc.CompleteTopUp(context.Background(), w.ID, d(tt.amount), tt.reference, tt.status)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, h.completed(t, w.ID))
			assert.True(t, h.balance(t, w.ID).IsZero())
			assert.Zero(t, h.notifier.count())
		})
	}
}

func TestCompleteTopUp_StatusIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	w := h.wallet(t, "alice")

	_, err := h.svc.CompleteTopUp(context.Background(), w.ID, d("10"), "R-case", " SUCCESS ")
	require.NoError(t, err)
	assert.True(t, h.balance(t, w.ID).Equal(d("10")))
}

func TestCompleteTopUp_UnknownWallet(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CompleteTopUp(context.Background(), "missing", d("10"), "R1", "success")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDebitForOrder_Boundaries(t *testing.T) {
	tests := []struct {
		name        string
		amount      string
		wantErr     error
		wantBalance string
	}{
		{name: "exact balance", amount: "5000", wantBalance: "0"},
		{name: "one minor unit over", amount: "5000.01", wantErr: apperrors.ErrInsufficientBalance, wantBalance: "5000"},
		{name: "well over", amount: "6000", wantErr: apperrors.ErrInsufficientBalance, wantBalance: "5000"},
		{name: "partial", amount: "1250.50", wantBalance: "3749.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			w := h.wallet(t, "alice")
			_, err := h.svc.CompleteTopUp(ctx, w.ID, d("5000"), "R1", "success")
			require.NoError(t, err)

			res, err := h.svc.DebitForOrder(ctx, w.ID, d(tt.amount), "O1", "Order #1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res)
				assert.Len(t, h.completed(t, w.ID), 1)
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.TransactionTypePayment, res.Transaction.Type)
				assert.Equal(t, "O1", res.Transaction.Reference)
				assert.Len(t, h.completed(t, w.ID), 2)
			}
			assert.True(t, h.balance(t, w.ID).Equal(d(tt.wantBalance)), "balance %s", h.balance(t, w.ID))
			assertLedgerInvariant(t, h, w.ID)
		})
	}
}

func TestDebitForOrder_RepeatedOrderChargesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.wallet(t, "alice")
	_, err := h.svc.CompleteTopUp(ctx, w.ID, d("100"), "R1", "success")
	require.NoError(t, err)

	first, err := h.svc.DebitForOrder(ctx, w.ID, d("40"), "O1", "")
	require.NoError(t, err)
	assert.Equal(t, "Order O1", first.Transaction.Description)

	second, err := h.svc.DebitForOrder(ctx, w.ID, d("40"), "O1", "")
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.True(t, h.balance(t, w.ID).Equal(d("60")))

	_, err = h.svc.DebitForOrder(ctx, w.ID, d("1"), "", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestReferenceReuse_DifferentOperationIsRejected(t *testing.T) {
	tests := []struct {
		name string
		run  func(h *harness, walletID string) (*OperationResult, error)
	}{
		{
			name: "debit reusing a deposit reference",
			run: func(h *harness, walletID string) (*OperationResult, error) {
				return h.svc.DebitForOrder(context.Background(), walletID, d("80"), "SP_X", "")
			},
		},
		{
			name: "debit of the same amount",
			run: func(h *harness, walletID string) (*OperationResult, error) {
				return h.svc.DebitForOrder(context.Background(), walletID, d("100"), "SP_X", "")
			},
		},
		{
			name: "deposit of another amount",
			run: func(h *harness, walletID string) (*OperationResult, error) {
				return h.svc.CompleteTopUp(context.Background(), walletID, d("50"), "SP_X", "success")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			w := h.wallet(t, "alice")
			_, err := h.svc.CompleteTopUp(context.Background(), w.ID, d("100"), "SP_X", "success")
			require.NoError(t, err)

			res, err := tt.run(h, w.ID)
			assert.ErrorIs(t, err, apperrors.ErrDuplicateTransaction)
			assert.Nil(t, res)
			assert.Len(t, h.completed(t, w.ID), 1)
			assert.True(t, h.balance(t, w.ID).Equal(d("100")), "balance %s", h.balance(t, w.ID))
			assert.Equal(t, 1, h.notifier.count())
			assertLedgerInvariant(t, h, w.ID)
		})
	}
}

func TestReconcileTopUp_OrderReferenceIsNotATopUp(t *testing.T) {
	h := newHarness(t)
	h.gateway.verify = settled(8000)
	ctx := context.Background()
	w := h.wallet(t, "alice")
	h.gateway.own("O1", w.ID)
	_, err := h.svc.CompleteTopUp(ctx, w.ID, d("100"), "R1", "success")
	require.NoError(t, err)
	_, err = h.svc.DebitForOrder(ctx, w.ID, d("80"), "O1", "")
	require.NoError(t, err)

	_, err = h.svc.ReconcileTopUp(ctx, w.ID, "O1")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateTransaction)
	assert.Zero(t, h.gateway.calls("O1"))
	assert.True(t, h.balance(t, w.ID).Equal(d("20")))
}

func TestRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.wallet(t, "alice")
	_, err := h.svc.CompleteTopUp(ctx, w.ID, d("100"), "R1", "success")
	require.NoError(t, err)
	_, err = h.svc.DebitForOrder(ctx, w.ID, d("80"), "O1", "Boots")
	require.NoError(t, err)

	_, err = h.svc.Refund(ctx, w.ID, d("10"), "O-unknown", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = h.svc.Refund(ctx, w.ID, d("80.01"), "O1", "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	res, err := h.svc.Refund(ctx, w.ID, d("80"), "O1", "")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeRefund, res.Transaction.Type)
	assert.Equal(t, RefundReferencePrefix+"O1", res.Transaction.Reference)
	assert.True(t, res.Wallet.Balance.Equal(d("100")))

	again, err := h.svc.Refund(ctx, w.ID, d("80"), "O1", "")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.True(t, h.balance(t, w.ID).Equal(d("100")))
	assertLedgerInvariant(t, h, w.ID)
}

func TestLedgerInvariant_MixedSequence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.wallet(t, "alice")

	steps := []func() error{
		func() error { _, err := h.svc.CompleteTopUp(ctx, w.ID, d("250.75"), "R1", "success"); return err },
		func() error { _, err := h.svc.DebitForOrder(ctx, w.ID, d("100.25"), "O1", ""); return err },
		func() error { _, err := h.svc.CompleteTopUp(ctx, w.ID, d("250.75"), "R1", "success"); return err },
		func() error { _, err := h.svc.DebitForOrder(ctx, w.ID, d("1000"), "O2", ""); return err },
		func() error { _, err := h.svc.CompleteTopUp(ctx, w.ID, d("20"), "R2", "failed"); return err },
		func() error { _, err := h.svc.Refund(ctx, w.ID, d("50"), "O1", ""); return err },
		func() error { _, err := h.svc.DebitForOrder(ctx, w.ID, d("200.50"), "O3", ""); return err },
	}
	for _, step := range steps {
		_ = step()
		assertLedgerInvariant(t, h, w.ID)
	}
	assert.True(t, h.balance(t, w.ID).Equal(d("0")))
}

func TestConcurrentMutations_NoLostUpdates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.wallet(t, "alice")
	_, err := h.svc.CompleteTopUp(ctx, w.ID, d("1000"), "seed", "success")
	require.NoError(t, err)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.CompleteTopUp(ctx, w.ID, d("10"), fmt.Sprintf("R-%d", i), "success")
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.DebitForOrder(ctx, w.ID, d("5"), fmt.Sprintf("O-%d", i), "")
			assert.NoError(t, err)
		}(i)
		go func() {
			defer wg.Done()
			_, err := h.svc.CompleteTopUp(ctx, w.ID, d("10"), "R-shared", "success")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// seed + n top-ups + one shared top-up - n debits
	want := d("1000").Add(d("10").Mul(decimal.NewFromInt(n))).Add(d("10")).Sub(d("5").Mul(decimal.NewFromInt(n)))
	assert.True(t, h.balance(t, w.ID).Equal(want), "balance %s, want %s", h.balance(t, w.ID), want)
	assert.Len(t, h.completed(t, w.ID), 2+2*n)
	assertLedgerInvariant(t, h, w.ID)
}

func TestNotificationFailureDoesNotFailMutation(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("push service down")
	w := h.wallet(t, "alice")

	res, err := h.svc.CompleteTopUp(context.Background(), w.ID, d("30"), "R1", "success")
	require.NoError(t, err)
	assert.True(t, res.Wallet.Balance.Equal(d("30")))
	assert.Equal(t, 1, h.notifier.count())
}

func TestNotificationContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := h.wallet(t, "alice")

	_, err := h.svc.CompleteTopUp(ctx, w.ID, d("30"), "R1", "success")
	require.NoError(t, err)
	_, err = h.svc.DebitForOrder(ctx, w.ID, d("12.5"), "O1", "Order #1")
	require.NoError(t, err)

	require.Len(t, h.notifier.events, 2)
	topUp := h.notifier.events[0]
	assert.Equal(t, notification.EventWalletUpdated, topUp.EventType)
	assert.Equal(t, "30.00", topUp.Amount)
	assert.Equal(t, "30.00", topUp.BalanceAfter)
	assert.Equal(t, models.NotificationTopUp, h.notifier.notifications[0].Kind)

	debit := h.notifier.events[1]
	assert.Equal(t, "-12.50", debit.Amount)
	assert.Equal(t, "17.50", debit.BalanceAfter)
	assert.Equal(t, "O1", debit.Reference)
	assert.Equal(t, models.NotificationPayment, h.notifier.notifications[1].Kind)
	assert.Contains(t, h.notifier.notifications[1].Body, "Order #1")
}

func TestWithdrawReferralToWallet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acc, err := h.referrals.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	_, err = h.referrals.ProcessReferral(ctx, acc.ReferralCode, "bob", 50)
	require.NoError(t, err)

	_, err = h.referrals.ProcessReferral(ctx, acc.ReferralCode, "bob", 50)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyReferred)

	credit, err := h.svc.WithdrawReferralToWallet(ctx, models.Identity{UserID: "alice", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), credit.Points)
	assert.True(t, credit.Amount.Equal(d("50")))
	assert.True(t, credit.Wallet.Balance.Equal(d("50")))
	require.NotNil(t, credit.Transaction)
	assert.Equal(t, models.TransactionTypeDeposit, credit.Transaction.Type)
	assert.Equal(t, "Referral bonus withdrawal (50 points)", credit.Transaction.Description)

	after, err := h.referrals.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, after.Points)
	assert.Zero(t, after.PendingCredit)

	// Nothing left to withdraw.
	empty, err := h.svc.WithdrawReferralToWallet(ctx, models.Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.Zero(t, empty.Points)
	assert.Nil(t, empty.Transaction)
	assert.True(t, h.balance(t, credit.Wallet.ID).Equal(d("50")))
	assertLedgerInvariant(t, h, credit.Wallet.ID)
}

func TestWithdrawReferralToWallet_NoAccount(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.WithdrawReferralToWallet(context.Background(), models.Identity{UserID: "stranger"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReferralCreditFailure_IsReplayed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acc, err := h.referrals.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	_, err = h.referrals.ProcessReferral(ctx, acc.ReferralCode, "bob", 50)
	require.NoError(t, err)
	w := h.wallet(t, "alice")

	h.store.setDown(true)
	_, err = h.svc.WithdrawReferralToWallet(ctx, models.Identity{UserID: "alice"})
	require.Error(t, err)

	// Points are gone from the account but held as a pending credit.
	pending, err := h.referrals.Pending(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, int64(50), pending.Points)
	assert.True(t, h.balance(t, w.ID).IsZero())

	report, err := h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Pending: 1, Failed: 1}, report)

	h.store.setDown(false)
	report, err = h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Pending: 1, Credited: 1}, report)
	assert.True(t, h.balance(t, w.ID).Equal(d("50")))

	report, err = h.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)
	assert.Len(t, h.completed(t, w.ID), 1)
	assertLedgerInvariant(t, h, w.ID)
}

func TestReferralReplay_AlreadyCreditedOnlySettles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acc, err := h.referrals.GetOrCreate(ctx, "alice")
	require.NoError(t, err)
	_, err = h.referrals.ProcessReferral(ctx, acc.ReferralCode, "bob", 20)
	require.NoError(t, err)
	w := h.wallet(t, "alice")

	// Credit landed but the settle never happened.
	withdrawal, err := h.referrals.Withdraw(ctx, "alice")
	require.NoError(t, err)
	_, err = h.svc.CompleteTopUp(ctx, w.ID, d("20"), ReferralReferencePrefix+withdrawal.Reference, "success")
	require.NoError(t, err)

	credit, err := h.svc.WithdrawReferralToWallet(ctx, models.Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, int64(20), credit.Points)
	assert.True(t, h.balance(t, w.ID).Equal(d("20")))

	pending, err := h.referrals.Pending(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestReconcileTopUp(t *testing.T) {
	unavailable := apperrors.Wrap(apperrors.ErrGatewayUnavailable, "", errors.New("connection reset"))

	tests := []struct {
		name        string
		verify      func(string, int) (*gateway.VerifyResult, error)
		wantErr     error
		wantCalls   int
		wantBalance string
	}{
		{
			name:        "settled",
			verify:      settled(500000),
			wantCalls:   1,
			wantBalance: "5000",
		},
		{
			name: "retries while unavailable",
			verify: func(ref string, call int) (*gateway.VerifyResult, error) {
				if call < 3 {
					return nil, unavailable
				}
				return settled(1250)(ref, call)
			},
			wantCalls:   3,
			wantBalance: "12.5",
		},
		{
			name: "retries exhausted",
			verify: func(string, int) (*gateway.VerifyResult, error) {
				return nil, unavailable
			},
			wantErr:     apperrors.ErrGatewayUnavailable,
			wantCalls:   3,
			wantBalance: "0",
		},
		{
			name: "verified failure is never credited",
			verify: func(ref string, _ int) (*gateway.VerifyResult, error) {
				return &gateway.VerifyResult{Reference: ref, Status: gateway.StatusFailed, AmountMinor: 1000}, nil
			},
			wantErr:     apperrors.ErrPaymentNotSuccessful,
			wantCalls:   1,
			wantBalance: "0",
		},
		{
			name: "not found is not retried",
			verify: func(string, int) (*gateway.VerifyResult, error) {
				return nil, apperrors.Wrap(apperrors.ErrNotFound, "transaction reference not found", nil)
			},
			wantErr:     apperrors.ErrNotFound,
			wantCalls:   1,
			wantBalance: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gateway.verify = tt.verify
			w := h.wallet(t, "alice")
			h.gateway.own("SP_1", w.ID)

			res, err := h.svc.ReconcileTopUp(context.Background(), w.ID, "SP_1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, h.completed(t, w.ID))
			} else {
				require.NoError(t, err)
				assert.Equal(t, "SP_1", res.Transaction.Reference)
			}
			assert.Equal(t, tt.wantCalls, h.gateway.calls("SP_1"))
			assert.True(t, h.balance(t, w.ID).Equal(d(tt.wantBalance)), "balance %s", h.balance(t, w.ID))
		})
	}
}

func TestReconcileTopUp_CompletedReferenceSkipsGateway(t *testing.T) {
	h := newHarness(t)
	h.gateway.verify = settled(1000)
	w := h.wallet(t, "alice")
	h.gateway.own("SP_1", w.ID)

	_, err := h.svc.ReconcileTopUp(context.Background(), w.ID, "SP_1")
	require.NoError(t, err)
	res, err := h.svc.ReconcileTopUp(context.Background(), w.ID, "SP_1")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, h.gateway.calls("SP_1"))
	assert.True(t, h.balance(t, w.ID).Equal(d("10")))
}

func TestReconcileTopUp_ReferenceBelongsToOneWallet(t *testing.T) {
	h := newHarness(t)
	h.gateway.verify = settled(500000)
	ctx := context.Background()
	alice := h.wallet(t, "alice")
	mallory := h.wallet(t, "mallory")
	h.gateway.own("SP_alice", alice.ID)

	_, err := h.svc.ReconcileTopUp(ctx, mallory.ID, "SP_alice")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	res, err := h.svc.ReconcileTopUp(ctx, alice.ID, "SP_alice")
	require.NoError(t, err)
	assert.False(t, res.Duplicate)

	// Replaying the settled reference against another wallet still fails.
	_, err = h.svc.ReconcileTopUp(ctx, mallory.ID, "SP_alice")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	forged := &gateway.WebhookEvent{Event: gateway.EventChargeSuccess}
	forged.Data.Reference = "SP_alice"
	forged.Data.Metadata = map[string]interface{}{"wallet_id": mallory.ID}
	assert.ErrorIs(t, h.svc.HandleGatewayEvent(ctx, forged), apperrors.ErrNotFound)

	assert.True(t, h.balance(t, alice.ID).Equal(d("5000")))
	assert.True(t, h.balance(t, mallory.ID).IsZero())
	assert.Empty(t, h.completed(t, mallory.ID))
}

func TestReconcileTopUp_UnboundReferenceIsRejected(t *testing.T) {
	h := newHarness(t)
	h.gateway.verify = settled(1000)
	w := h.wallet(t, "alice")

	_, err := h.svc.ReconcileTopUp(context.Background(), w.ID, "SP_foreign")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 1, h.gateway.calls("SP_foreign"))
	assert.True(t, h.balance(t, w.ID).IsZero())
}

func TestReconcileTopUp_Currency(t *testing.T) {
	tests := []struct {
		name        string
		currency    string
		wantErr     error
		wantBalance string
	}{
		{name: "wallet currency", currency: "NGN", wantBalance: "10"},
		{name: "case differs", currency: "ngn", wantBalance: "10"},
		{name: "not reported", currency: "", wantBalance: "10"},
		{name: "other currency", currency: "USD", wantErr: apperrors.ErrValidation, wantBalance: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gateway.verify = func(ref string, call int) (*gateway.VerifyResult, error) {
				res, err := settled(1000)(ref, call)
				res.Currency = tt.currency
				return res, err
			}
			w := h.wallet(t, "alice")
			h.gateway.own("SP_fx", w.ID)

			_, err := h.svc.ReconcileTopUp(context.Background(), w.ID, "SP_fx")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, h.completed(t, w.ID))
			} else {
				require.NoError(t, err)
			}
			assert.True(t, h.balance(t, w.ID).Equal(d(tt.wantBalance)), "balance %s", h.balance(t, w.ID))
		})
	}
}

func TestReconcileTopUp_SavesReusableAuthorization(t *testing.T) {
	h := newHarness(t)
	h.gateway.verify = func(ref string, _ int) (*gateway.VerifyResult, error) {
		return &gateway.VerifyResult{
			Reference:   ref,
			Success:     true,
			Status:      gateway.StatusSuccess,
			AmountMinor: 2000,
			Authorization: gateway.Authorization{
				AuthorizationCode: "AUTH_abc",
				CardType:          "visa",
				Last4:             "4081",
				ExpMonth:          "12",
				ExpYear:           "2030",
				Reusable:          true,
			},
		}, nil
	}
	w := h.wallet(t, "alice")
	h.gateway.own("SP_card", w.ID)

	_, err := h.svc.ReconcileTopUp(context.Background(), w.ID, "SP_card")
	require.NoError(t, err)

	saved, err := h.cards.ListCards(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, models.CardProviderGateway, saved[0].Provider)
	assert.Equal(t, "4081", saved[0].LastFourDigits)
	assert.True(t, saved[0].IsDefault)
}

func TestStartTopUp_CheckoutOutcomes(t *testing.T) {
	t.Run("success verifies then credits", func(t *testing.T) {
		h := newHarness(t)
		h.gateway.verify = settled(250000)
		ctx := context.Background()

		session, err := h.svc.StartTopUp(ctx, models.Identity{UserID: "alice", Email: "alice@example.com"}, d("2500"))
		require.NoError(t, err)
		assert.Equal(t, int64(250000), session.AmountMinor)
		assert.Contains(t, session.Reference, gateway.ReferencePrefix)
		require.Len(t, h.gateway.charges, 1)
		charge := h.gateway.charges[0]
		assert.Equal(t, "alice@example.com", charge.Email)
		assert.Equal(t, session.WalletID, charge.Metadata["wallet_id"])
		assert.Equal(t, "NGN", charge.Currency)

		checkout := h.gateway.checkouts[0]
		assert.True(t, checkout.Complete(ctx))
		assert.False(t, checkout.Cancel(ctx))

		assert.True(t, h.balance(t, session.WalletID).Equal(d("2500")))
		assert.Equal(t, 1, h.gateway.calls(session.Reference))
	})

	t.Run("cancel writes nothing", func(t *testing.T) {
		h := newHarness(t)
		h.gateway.verify = settled(250000)
		ctx := context.Background()

		session, err := h.svc.StartTopUp(ctx, models.Identity{UserID: "alice", Email: "alice@example.com"}, d("2500"))
		require.NoError(t, err)

		checkout := h.gateway.checkouts[0]
		assert.True(t, checkout.Cancel(ctx))
		assert.False(t, checkout.Complete(ctx))

		select {
		case <-checkout.Done():
		case <-time.After(time.Second):
			t.Fatal("checkout did not finish")
		}
		assert.Empty(t, h.completed(t, session.WalletID))
		assert.Zero(t, h.gateway.calls(session.Reference))
	})

	t.Run("client success is not trusted", func(t *testing.T) {
		h := newHarness(t)
		h.gateway.verify = func(ref string, _ int) (*gateway.VerifyResult, error) {
			return &gateway.VerifyResult{Reference: ref, Status: gateway.StatusAbandoned}, nil
		}
		ctx := context.Background()

		session, err := h.svc.StartTopUp(ctx, models.Identity{UserID: "alice", Email: "alice@example.com"}, d("10"))
		require.NoError(t, err)
		h.gateway.checkouts[0].Complete(ctx)

		assert.Empty(t, h.completed(t, session.WalletID))
	})

	t.Run("validation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.StartTopUp(context.Background(), models.Identity{UserID: "alice", Email: "alice@example.com"}, d("0"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = h.svc.StartTopUp(context.Background(), models.Identity{UserID: "alice"}, d("10"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.Empty(t, h.gateway.charges)
	})

	t.Run("amount limits", func(t *testing.T) {
		h := newHarness(t)
		identity := models.Identity{UserID: "alice", Email: "alice@example.com"}
		for _, amount := range []string{"10000000.01", "92233720368547758.08", "100000000000000000000000", "10.005"} {
			_, err := h.svc.StartTopUp(context.Background(), identity, d(amount))
			assert.ErrorIs(t, err, apperrors.ErrValidation, amount)
		}
		assert.Empty(t, h.gateway.charges)

		session, err := h.svc.StartTopUp(context.Background(), identity, d("10000000"))
		require.NoError(t, err)
		assert.Equal(t, int64(1000000000), session.AmountMinor)
	})
}

func TestHandleGatewayEvent(t *testing.T) {
	h := newHarness(t)
	h.gateway.verify = settled(75000)
	ctx := context.Background()
	w := h.wallet(t, "alice")

	event := &gateway.WebhookEvent{Event: gateway.EventChargeSuccess}
	event.Data.Reference = "SP_hook"
	event.Data.Status = gateway.StatusSuccess
	event.Data.Metadata = map[string]interface{}{"wallet_id": w.ID}
	h.gateway.own("SP_hook", w.ID)

	require.NoError(t, h.svc.HandleGatewayEvent(ctx, event))
	require.NoError(t, h.svc.HandleGatewayEvent(ctx, event))
	assert.True(t, h.balance(t, w.ID).Equal(d("750")))
	assert.Len(t, h.completed(t, w.ID), 1)

	noWallet := &gateway.WebhookEvent{Event: gateway.EventChargeSuccess}
	noWallet.Data.Reference = "SP_orphan"
	assert.ErrorIs(t, h.svc.HandleGatewayEvent(ctx, noWallet), apperrors.ErrValidation)

	failed := &gateway.WebhookEvent{Event: gateway.EventChargeFailed}
	failed.Data.Reference = "SP_other"
	failed.Data.Metadata = map[string]interface{}{"wallet_id": w.ID}
	assert.NoError(t, h.svc.HandleGatewayEvent(ctx, failed))
	assert.Zero(t, h.gateway.calls("SP_other"))
}

func TestTopUpWithCard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := models.Identity{UserID: "alice", Email: "alice@example.com"}
	h.wallet(t, "alice")

	card, err := h.cards.SaveAuthorization(ctx, "alice", gateway.Authorization{
		AuthorizationCode: "AUTH_saved",
		CardType:          "visa",
		Last4:             "4081",
		ExpMonth:          "12",
		ExpYear:           "2030",
		Reusable:          true,
	})
	require.NoError(t, err)

	var chargedCode string
	h.gateway.charge = func(charge gateway.ChargeRequest, authCode string) (*gateway.VerifyResult, error) {
		chargedCode = authCode
		return &gateway.VerifyResult{Reference: charge.Reference, Success: true, Status: gateway.StatusSuccess, AmountMinor: charge.AmountMinor}, nil
	}

	res, err := h.svc.TopUpWithCard(ctx, identity, card.ID, d("99.99"))
	require.NoError(t, err)
	assert.Equal(t, "AUTH_saved", chargedCode)
	assert.True(t, res.Wallet.Balance.Equal(d("99.99")))
	require.Len(t, h.gateway.charges, 1)
	assert.Equal(t, res.Wallet.ID, h.gateway.charges[0].Metadata["wallet_id"])
	assert.Equal(t, "NGN", h.gateway.charges[0].Currency)

	h.gateway.charge = func(charge gateway.ChargeRequest, _ string) (*gateway.VerifyResult, error) {
		return &gateway.VerifyResult{Reference: charge.Reference, Status: gateway.StatusFailed, AmountMinor: charge.AmountMinor}, nil
	}
	_, err = h.svc.TopUpWithCard(ctx, identity, card.ID, d("10"))
	assert.ErrorIs(t, err, apperrors.ErrPaymentNotSuccessful)

	_, err = h.svc.TopUpWithCard(ctx, identity, "missing-card", d("10"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = h.svc.TopUpWithCard(ctx, models.Identity{UserID: "mallory", Email: "m@example.com"}, card.ID, d("10"))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = h.svc.TopUpWithCard(ctx, identity, card.ID, d("100000000000000000000000"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	h.gateway.charge = func(charge gateway.ChargeRequest, _ string) (*gateway.VerifyResult, error) {
		return &gateway.VerifyResult{Reference: charge.Reference, Success: true, Status: gateway.StatusSuccess, AmountMinor: charge.AmountMinor, Currency: "USD"}, nil
	}
	_, err = h.svc.TopUpWithCard(ctx, identity, card.ID, d("10"))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	assert.True(t, h.balance(t, res.Wallet.ID).Equal(d("99.99")))
}

func TestTopUpWithCard_PendingSettlesLater(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := models.Identity{UserID: "alice", Email: "alice@example.com"}
	w := h.wallet(t, "alice")

	card, err := h.cards.SaveAuthorization(ctx, "alice", gateway.Authorization{
		AuthorizationCode: "AUTH_saved",
		CardType:          "visa",
		Last4:             "4081",
		ExpMonth:          "12",
		ExpYear:           "2030",
		Reusable:          true,
	})
	require.NoError(t, err)

	h.gateway.charge = func(charge gateway.ChargeRequest, _ string) (*gateway.VerifyResult, error) {
		return &gateway.VerifyResult{Reference: charge.Reference, Status: gateway.StatusPending, AmountMinor: charge.AmountMinor}, nil
	}

	res, err := h.svc.TopUpWithCard(ctx, identity, card.ID, d("25"))
	require.NoError(t, err)
	assert.True(t, res.Pending)
	assert.Nil(t, res.Transaction)
	assert.Contains(t, res.Reference, gateway.ReferencePrefix)
	assert.Zero(t, h.gateway.calls(res.Reference))
	assert.True(t, h.balance(t, w.ID).IsZero())

	h.gateway.verify = settled(2500)
	event := &gateway.WebhookEvent{Event: gateway.EventChargeSuccess}
	event.Data.Reference = res.Reference
	event.Data.Metadata = map[string]interface{}{"wallet_id": w.ID}
	require.NoError(t, h.svc.HandleGatewayEvent(ctx, event))
	assert.True(t, h.balance(t, w.ID).Equal(d("25")))
}

type memoryWalletCache struct {
	mu            sync.Mutex
	wallets       map[string]models.Wallet
	hits          int
	invalidations int
}

func (c *memoryWalletCache) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.wallets[userID]
	if !ok {
		return nil, nil
	}
	c.hits++
	return &w, nil
}

func (c *memoryWalletCache) CacheWallet(_ context.Context, wallet *models.Wallet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wallets[wallet.UserID] = *wallet
	return nil
}

func (c *memoryWalletCache) InvalidateWallet(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.wallets, userID)
	c.invalidations++
	return nil
}

func TestGetOrCreateWallet_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := repositories.NewMemoryStore()
	walletCache := &memoryWalletCache{wallets: make(map[string]models.Wallet)}
	svc := NewService(Dependencies{
		Store:     store,
		Gateway:   newFakeGateway(),
		Referrals: referral.NewService(repositories.NewMemoryReferralRepository(), referral.Config{}, zap.NewNop()),
		Cache:     walletCache,
		Logger:    zap.NewNop(),
	}, Config{})

	created, err := svc.GetOrCreateWallet(ctx, models.Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.Zero(t, walletCache.hits)

	cached, err := svc.GetOrCreateWallet(ctx, models.Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, walletCache.hits)
	assert.Equal(t, created.ID, cached.ID)

	_, err = svc.CompleteTopUp(ctx, created.ID, d("10"), "R1", "success")
	require.NoError(t, err)
	assert.Equal(t, 1, walletCache.invalidations)

	fresh, err := svc.GetOrCreateWallet(ctx, models.Identity{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, walletCache.hits)
	assert.True(t, fresh.Balance.Equal(d("10")))

	again, err := svc.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, walletCache.hits)
	assert.True(t, again.Balance.Equal(d("10")))
}

func TestListTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	txs, err := h.svc.ListTransactions(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, txs)

	w := h.wallet(t, "alice")
	for i := 1; i <= 3; i++ {
		_, err := h.svc.CompleteTopUp(ctx, w.ID, d("1"), fmt.Sprintf("R%d", i), "success")
		require.NoError(t, err)
	}

	txs, err = h.svc.ListTransactions(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "R3", txs[0].Reference)
	assert.Equal(t, "R2", txs[1].Reference)
}

func TestToggleBalanceVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hidden, err := h.svc.BalanceHidden(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hidden)

	hidden, err = h.svc.ToggleBalanceVisibility(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, hidden)

	hidden, err = h.svc.ToggleBalanceVisibility(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hidden)
}

func TestNewService_RequiresDependencies(t *testing.T) {
	assert.Panics(t, func() { NewService(Dependencies{}, Config{}) })
	assert.Panics(t, func() {
		NewService(Dependencies{Store: repositories.NewMemoryStore(), Gateway: newFakeGateway()}, Config{})
	})
}
