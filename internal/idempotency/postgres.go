package idempotency

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend stores idempotency records in the idempotency_keys table.
type PostgresBackend struct {
	db *pgxpool.Pool
}

var _ Backend = (*PostgresBackend)(nil)

func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Get(ctx context.Context, key string) (*Record, error) {
	var rec Record
	var status *int
	var contentType *string
	err := b.db.QueryRow(ctx,
		`SELECT idempotency_key, request_hash, response_status, response_body, content_type, in_progress
		 FROM idempotency_keys WHERE idempotency_key = $1`, key).
		Scan(&rec.Key, &rec.RequestHash, &status, &rec.Body, &contentType, &rec.InProgress)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency key: %w", err)
	}
	if status != nil {
		rec.Status = *status
	}
	if contentType != nil {
		rec.ContentType = *contentType
	}
	return &rec, nil
}

func (b *PostgresBackend) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	tag, err := b.db.Exec(ctx,
		`INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		key, requestHash, method, path)
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (b *PostgresBackend) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	var rec Record
	err := b.db.QueryRow(ctx,
		`UPDATE idempotency_keys
		 SET response_status = $3, response_body = $4, content_type = $5,
		     in_progress = FALSE, updated_at = NOW()
		 WHERE idempotency_key = $1 AND request_hash = $2
		 RETURNING idempotency_key, request_hash, response_status, response_body, content_type`,
		key, requestHash, status, body, contentType).
		Scan(&rec.Key, &rec.RequestHash, &rec.Status, &rec.Body, &rec.ContentType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	rec.ServedBy = "backend"
	return &rec, nil
}
