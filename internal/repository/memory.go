package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
)

// MemoryStore is an in-memory Store implementation used by unit tests so
// service logic can be exercised without a running Postgres. It mirrors the
// PostgresStore semantics, including the atomicity of Link, Consume and
// Create, by serializing everything behind one mutex.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]*models.ConnectedWallet // keyed by wallet id
	states  map[string]*models.OAuthState      // keyed by token
	txs     map[uuid.UUID]*models.Transaction
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]*models.ConnectedWallet),
		states:  make(map[string]*models.OAuthState),
		txs:     make(map[uuid.UUID]*models.Transaction),
	}
}

func cloneWallet(w *models.ConnectedWallet) *models.ConnectedWallet {
	c := *w
	return &c
}

func cloneTransaction(t *models.Transaction) *models.Transaction {
	c := *t
	c.Legs = append([]models.TransferLeg(nil), t.Legs...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (s *MemoryStore) Link(_ context.Context, p LinkWalletParams) (*models.ConnectedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.wallets[p.WalletID]; ok {
		if existing.UserID != p.UserID || existing.Provider != p.Provider {
			return nil, ErrDuplicateWalletID
		}
		for _, w := range s.wallets {
			if w.UserID == p.UserID && w.Provider == p.Provider && w.Active && w.WalletID != p.WalletID {
				w.Active = false
				w.UpdatedAt = now
			}
		}
		existing.Credentials = p.Credentials
		existing.Metadata = p.Metadata
		existing.Active = true
		existing.UpdatedAt = now
		return cloneWallet(existing), nil
	}

	// New routing key: retire the prior active connection and insert a fresh
	// row. The retired row stays so transactions that reference its wallet id
	// keep resolving.
	for _, w := range s.wallets {
		if w.UserID == p.UserID && w.Provider == p.Provider && w.Active {
			w.Active = false
			w.UpdatedAt = now
		}
	}

	w := &models.ConnectedWallet{
		ID:          uuid.New(),
		UserID:      p.UserID,
		Provider:    p.Provider,
		WalletID:    p.WalletID,
		Credentials: p.Credentials,
		Metadata:    p.Metadata,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.wallets[p.WalletID] = w
	return cloneWallet(w), nil
}

func (s *MemoryStore) FindActive(_ context.Context, userID uuid.UUID, provider domain.Provider) (*models.ConnectedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.UserID == userID && w.Provider == provider && w.Active {
			return cloneWallet(w), nil
		}
	}
	return nil, ErrWalletNotFound
}

func (s *MemoryStore) FindByWalletID(_ context.Context, walletID string) (*models.ConnectedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[walletID]; ok && w.Active {
		return cloneWallet(w), nil
	}
	return nil, ErrWalletNotFound
}

func (s *MemoryStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.ConnectedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ConnectedWallet
	for _, w := range s.wallets {
		if w.UserID == userID && w.Active {
			out = append(out, *cloneWallet(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, walletID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok || !w.Active {
		return ErrWalletNotFound
	}
	w.Active = false
	w.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) Put(_ context.Context, state *models.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, st := range s.states {
		if st.UserID == state.UserID && st.Provider == state.Provider && st.ConsumedAt == nil {
			delete(s.states, token)
		}
	}
	c := *state
	s.states[state.Token] = &c
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, token string, now time.Time) (*models.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[token]
	if !ok || st.ConsumedAt != nil {
		return nil, ErrStateNotFound
	}
	consumed := now
	st.ConsumedAt = &consumed
	if st.Expired(now) {
		return nil, ErrStateExpired
	}
	c := *st
	return &c, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for token, st := range s.states {
		if st.Expired(now) {
			delete(s.states, token)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Create(_ context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ClientKey != "" {
		for _, existing := range s.txs {
			if existing.UserID == tx.UserID && existing.ClientKey == tx.ClientKey {
				return cloneTransaction(existing), false, nil
			}
		}
	}

	now := time.Now()
	c := cloneTransaction(tx)
	c.CreatedAt = now
	c.UpdatedAt = now
	s.txs[c.ID] = c
	return cloneTransaction(c), true, nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	return cloneTransaction(t), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id uuid.UUID, prev, next string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return ErrTransactionNotFound
	}
	if t.Status != prev {
		return ErrInvalidTransition
	}
	t.Status = next
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SaveProgress(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[tx.ID]
	if !ok {
		return ErrTransactionNotFound
	}
	t.Legs = append([]models.TransferLeg(nil), tx.Legs...)
	t.FailureKind = tx.FailureKind
	t.ReconcileRequired = tx.ReconcileRequired
	t.ReconcileReason = tx.ReconcileReason
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListReconcileRequired(_ context.Context, limit int32) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []models.Transaction
	for _, t := range s.txs {
		if t.ReconcileRequired {
			out = append(out, *cloneTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if int32(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CountReconcileRequired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.txs {
		if t.ReconcileRequired {
			n++
		}
	}
	return n, nil
}
