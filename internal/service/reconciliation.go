package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/observability"
	"github.com/kwamina/walletbridge/internal/repository"
)

// ReconciliationService tracks transfers whose provider-side and recorded
// state may have diverged, for operator review.
type ReconciliationService struct {
	store repository.TransactionStore
}

func NewReconciliationService(store repository.TransactionStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run refreshes the queue depth gauge and logs when the queue is non-empty.
func (s *ReconciliationService) Run(ctx context.Context) error {
	count, err := s.store.CountReconcileRequired(ctx)
	if err != nil {
		return fmt.Errorf("count reconcile queue: %w", err)
	}
	observability.SetReconcileQueueDepth(float64(count))

	if count > 0 {
		zap.L().Warn("transfers awaiting reconciliation", zap.Int64("count", count))
	} else {
		zap.L().Info("reconciliation queue empty")
	}
	return nil
}

// List returns the transfers currently flagged for reconciliation.
func (s *ReconciliationService) List(ctx context.Context, limit int32) ([]models.Transaction, error) {
	return s.store.ListReconcileRequired(ctx, limit)
}

// Resolve clears the reconciliation flag after an operator (or a settlement
// callback) has confirmed the provider-side state. The transfer's terminal
// status is never changed.
func (s *ReconciliationService) Resolve(ctx context.Context, id uuid.UUID, note string) (*models.Transaction, error) {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tx.ReconcileRequired {
		return tx, nil
	}

	tx.ReconcileRequired = false
	tx.ReconcileReason = note
	if err := s.store.SaveProgress(ctx, tx); err != nil {
		return nil, fmt.Errorf("resolve reconciliation: %w", err)
	}
	zap.L().Info("reconciliation resolved",
		zap.String("transaction_id", id.String()),
		zap.String("note", note))
	return tx, nil
}
