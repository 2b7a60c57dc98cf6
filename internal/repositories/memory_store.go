package repositories

import (
	"context"
	"sync"
	"time"

	"scoutpay/internal/models"
)

type memoryLedger struct {
	wallets       map[string]models.Wallet
	walletsByUser map[string]string
	transactions  []models.Transaction
	cards         map[string]models.PaymentCard
	cardOrder     []string
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		wallets:       make(map[string]models.Wallet),
		walletsByUser: make(map[string]string),
		cards:         make(map[string]models.PaymentCard),
	}
}

func (l *memoryLedger) clone() memoryLedger {
	out := memoryLedger{
		wallets:       make(map[string]models.Wallet, len(l.wallets)),
		walletsByUser: make(map[string]string, len(l.walletsByUser)),
		transactions:  make([]models.Transaction, len(l.transactions)),
		cards:         make(map[string]models.PaymentCard, len(l.cards)),
		cardOrder:     append([]string(nil), l.cardOrder...),
	}
	for k, v := range l.wallets {
		out.wallets[k] = v
	}
	for k, v := range l.walletsByUser {
		out.walletsByUser[k] = v
	}
	copy(out.transactions, l.transactions)
	for k, v := range l.cards {
		out.cards[k] = v
	}
	return out
}

// MemoryStore is an in-process LedgerStore used by tests and by the server
// when no database is configured. ExecuteInTransaction serializes callers
// and rolls back every write made by fn when it returns an error.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryLedger
	inTx bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu:   &sync.Mutex{},
		data: newMemoryLedger(),
	}
}

// lock is a no-op inside ExecuteInTransaction, which already holds mu.
func (m *MemoryStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) GetWallet(_ context.Context, userID string) (*models.Wallet, error) {
	defer m.lock()()
	id, ok := m.data.walletsByUser[userID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	w := m.data.wallets[id]
	return &w, nil
}

func (m *MemoryStore) GetWalletByID(_ context.Context, walletID string) (*models.Wallet, error) {
	defer m.lock()()
	w, ok := m.data.wallets[walletID]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return &w, nil
}

func (m *MemoryStore) GetWalletForUpdate(ctx context.Context, walletID string) (*models.Wallet, error) {
	return m.GetWalletByID(ctx, walletID)
}

func (m *MemoryStore) CreateWallet(_ context.Context, wallet *models.Wallet) error {
	defer m.lock()()
	if _, exists := m.data.walletsByUser[wallet.UserID]; exists {
		return ErrDuplicateWallet
	}
	wallet.EnsureID()
	if _, exists := m.data.wallets[wallet.ID]; exists {
		return ErrDuplicateWallet
	}
	now := time.Now()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now
	m.data.wallets[wallet.ID] = *wallet
	m.data.walletsByUser[wallet.UserID] = wallet.ID
	return nil
}

func (m *MemoryStore) UpdateBalance(_ context.Context, walletID string, b models.Balances) error {
	defer m.lock()()
	w, ok := m.data.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	w.Balance = b.Balance
	w.TotalDeposited = b.TotalDeposited
	w.TotalSpent = b.TotalSpent
	w.UpdatedAt = time.Now()
	m.data.wallets[walletID] = w
	return nil
}

func (m *MemoryStore) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	if err := ValidateTransaction(tx); err != nil {
		return err
	}
	defer m.lock()()
	if tx.Status == models.TransactionStatusCompleted && tx.Reference != "" {
		if m.completedLocked(tx.WalletID, tx.Reference) != nil {
			return ErrDuplicateTransaction
		}
	}
	tx.EnsureID()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	stored := *tx
	stored.Metadata = models.NewJSON(tx.Metadata)
	m.data.transactions = append(m.data.transactions, stored)
	return nil
}

func (m *MemoryStore) completedLocked(walletID, reference string) *models.Transaction {
	for i := range m.data.transactions {
		t := &m.data.transactions[i]
		if t.WalletID == walletID && t.Reference == reference && t.Status == models.TransactionStatusCompleted {
			return t
		}
	}
	return nil
}

func (m *MemoryStore) FindCompletedByReference(_ context.Context, walletID, reference string) (*models.Transaction, error) {
	defer m.lock()()
	t := m.completedLocked(walletID, reference)
	if t == nil {
		return nil, ErrTransactionNotFound
	}
	out := *t
	return &out, nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, walletID string, limit int) ([]models.Transaction, error) {
	defer m.lock()()
	var out []models.Transaction
	for i := len(m.data.transactions) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if t := m.data.transactions[i]; t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateCard(_ context.Context, card *models.PaymentCard) error {
	defer m.lock()()
	card.EnsureID()
	now := time.Now()
	card.CreatedAt = now
	card.UpdatedAt = now
	m.data.cards[card.ID] = *card
	m.data.cardOrder = append(m.data.cardOrder, card.ID)
	return nil
}

func (m *MemoryStore) GetCard(_ context.Context, cardID string) (*models.PaymentCard, error) {
	defer m.lock()()
	c, ok := m.data.cards[cardID]
	if !ok {
		return nil, ErrCardNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListCards(_ context.Context, userID string) ([]models.PaymentCard, error) {
	defer m.lock()()
	var out []models.PaymentCard
	for _, id := range m.data.cardOrder {
		if c, ok := m.data.cards[id]; ok && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteCard(_ context.Context, userID, cardID string) error {
	defer m.lock()()
	c, ok := m.data.cards[cardID]
	if !ok || c.UserID != userID {
		return ErrCardNotFound
	}
	delete(m.data.cards, cardID)
	for i, id := range m.data.cardOrder {
		if id == cardID {
			m.data.cardOrder = append(m.data.cardOrder[:i], m.data.cardOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) SetDefaultCard(_ context.Context, userID, cardID string) error {
	defer m.lock()()
	if c, ok := m.data.cards[cardID]; !ok || c.UserID != userID {
		return ErrCardNotFound
	}
	for id, c := range m.data.cards {
		if c.UserID != userID {
			continue
		}
		c.IsDefault = id == cardID
		m.data.cards[id] = c
	}
	return nil
}

func (m *MemoryStore) ExecuteInTransaction(ctx context.Context, fn func(LedgerStore) error) error {
	if m.inTx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(&MemoryStore{mu: m.mu, data: m.data, inTx: true}); err != nil {
		*m.data = snapshot
		return err
	}
	return nil
}
