package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrDuplicateWalletID   = errors.New("wallet id already linked to another user")
	ErrStateNotFound       = errors.New("oauth state not found")
	ErrStateExpired        = errors.New("oauth state expired")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// LinkWalletParams carries everything needed to upsert a wallet connection.
type LinkWalletParams struct {
	UserID      uuid.UUID
	Provider    domain.Provider
	WalletID    string
	Credentials models.WalletCredentials
	Metadata    models.WalletMetadata
}

// WalletStore persists wallet connections. Uniqueness invariants (one active
// connection per user/provider, globally unique wallet id) are enforced with
// atomic check-and-set semantics, never read-then-write.
type WalletStore interface {
	// Link upserts the connection for (UserID, Provider). It fails with
	// ErrDuplicateWalletID when WalletID already belongs to a different user.
	Link(ctx context.Context, p LinkWalletParams) (*models.ConnectedWallet, error)
	// FindActive returns the active connection for (userID, provider).
	FindActive(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*models.ConnectedWallet, error)
	// FindByWalletID resolves an active wallet by its routing key.
	FindByWalletID(ctx context.Context, walletID string) (*models.ConnectedWallet, error)
	// ListByUser returns all active connections owned by the user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ConnectedWallet, error)
	// Deactivate soft-deletes the wallet. Historical transactions stay valid.
	Deactivate(ctx context.Context, walletID string) error
}

// OAuthStateStore persists single-use linking states.
type OAuthStateStore interface {
	// Put inserts the state and supersedes any unexpired state for the same
	// (user, provider) pair in the same atomic operation.
	Put(ctx context.Context, state *models.OAuthState) error
	// Consume atomically claims the token: exactly one of N concurrent
	// callers succeeds, the rest get ErrStateNotFound. Unconsumed states past
	// their TTL yield ErrStateExpired.
	Consume(ctx context.Context, token string, now time.Time) (*models.OAuthState, error)
	// DeleteExpired garbage-collects states past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TransactionStore persists the transfer audit trail.
type TransactionStore interface {
	// Create inserts the transaction. When tx.ClientKey is set and a
	// transaction with the same (user, key) already exists, the existing row
	// is returned with created=false and nothing is inserted.
	Create(ctx context.Context, tx *models.Transaction) (existing *models.Transaction, created bool, err error)
	// Get returns a transaction by id.
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	// UpdateStatus moves the transaction from prev to next with compare-and-set
	// semantics; ErrInvalidTransition when the row is no longer in prev.
	UpdateStatus(ctx context.Context, id uuid.UUID, prev, next string) error
	// SaveProgress persists legs, provider refs, failure kind and the
	// reconcile flag. Only the orchestrator invocation owning the transaction
	// calls this before the record reaches a terminal state.
	SaveProgress(ctx context.Context, tx *models.Transaction) error
	// ListReconcileRequired returns transactions flagged for operator review.
	ListReconcileRequired(ctx context.Context, limit int32) ([]models.Transaction, error)
	// CountReconcileRequired sizes the reconciliation queue.
	CountReconcileRequired(ctx context.Context) (int64, error)
}

// Store aggregates the three persistence contracts. Two implementations
// exist: Postgres (production) and Memory (unit tests).
type Store interface {
	WalletStore
	OAuthStateStore
	TransactionStore
}
