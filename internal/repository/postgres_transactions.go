package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
)

const txColumns = `id, user_id, source_wallet_id, destination_wallet_id, amount_micros,
	fee_micros, currency, type, status, description, client_key, legs, failure_kind,
	reconcile_required, reconcile_reason, metadata, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	var clientKey *string
	var legs, metadata []byte
	var failureKind string
	err := row.Scan(&t.ID, &t.UserID, &t.SourceWalletID, &t.DestWalletID, &t.AmountMicros,
		&t.FeeMicros, &t.Currency, &t.Type, &t.Status, &t.Description, &clientKey,
		&legs, &failureKind, &t.ReconcileRequired, &t.ReconcileReason, &metadata,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if clientKey != nil {
		t.ClientKey = *clientKey
	}
	t.FailureKind = domain.FailureKind(failureKind)
	if len(legs) > 0 {
		if err := json.Unmarshal(legs, &t.Legs); err != nil {
			return nil, fmt.Errorf("decode legs: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &t, nil
}

// Create inserts the transaction. The partial unique index on
// (user_id, client_key) makes duplicate detection a property of the insert
// itself: on conflict nothing is written and the existing row is returned.
func (s *PostgresStore) Create(ctx context.Context, tx *models.Transaction) (*models.Transaction, bool, error) {
	legs, err := json.Marshal(tx.Legs)
	if err != nil {
		return nil, false, fmt.Errorf("encode legs: %w", err)
	}
	var metadata []byte
	if tx.Metadata != nil {
		if metadata, err = json.Marshal(tx.Metadata); err != nil {
			return nil, false, fmt.Errorf("encode metadata: %w", err)
		}
	}
	var clientKey *string
	if tx.ClientKey != "" {
		clientKey = &tx.ClientKey
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO transactions
		 (id, user_id, source_wallet_id, destination_wallet_id, amount_micros, fee_micros,
		  currency, type, status, description, client_key, legs, failure_kind, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (user_id, client_key) WHERE client_key IS NOT NULL DO NOTHING
		 RETURNING `+txColumns,
		tx.ID, tx.UserID, tx.SourceWalletID, tx.DestWalletID, tx.AmountMicros, tx.FeeMicros,
		tx.Currency, tx.Type, tx.Status, tx.Description, clientKey, legs, string(tx.FailureKind), metadata)
	created, err := scanTransaction(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create transaction: %w", err)
	}

	existing, err := scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE user_id = $1 AND client_key = $2`,
		tx.UserID, tx.ClientKey))
	if err != nil {
		return nil, false, fmt.Errorf("load existing transaction: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	t, err := scanTransaction(s.db.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// UpdateStatus is a compare-and-set on the status column; the WHERE clause
// is what prevents a terminal transaction from regressing.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, prev, next string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE transactions SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2`,
		id, prev, next)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) SaveProgress(ctx context.Context, tx *models.Transaction) error {
	legs, err := json.Marshal(tx.Legs)
	if err != nil {
		return fmt.Errorf("encode legs: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE transactions
		 SET legs = $2, failure_kind = $3, reconcile_required = $4, reconcile_reason = $5,
		     updated_at = NOW()
		 WHERE id = $1`,
		tx.ID, legs, string(tx.FailureKind), tx.ReconcileRequired, tx.ReconcileReason)
	if err != nil {
		return fmt.Errorf("save transaction progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *PostgresStore) ListReconcileRequired(ctx context.Context, limit int32) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+txColumns+` FROM transactions
		 WHERE reconcile_required ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reconcile transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountReconcileRequired(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE reconcile_required`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reconcile transactions: %w", err)
	}
	return count, nil
}
