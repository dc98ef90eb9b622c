package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
)

// Put inserts the state after deleting any unconsumed state for the same
// (user, provider). The delete and insert share one transaction so a
// superseded token can never be consumed after the new one exists.
func (s *PostgresStore) Put(ctx context.Context, state *models.OAuthState) error {
	return s.runInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM oauth_states
			 WHERE user_id = $1 AND provider = $2 AND consumed_at IS NULL`,
			state.UserID, string(state.Provider)); err != nil {
			return fmt.Errorf("supersede prior state: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO oauth_states (token, user_id, provider, redirect_uri, created_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			state.Token, state.UserID, string(state.Provider), state.RedirectURI,
			timeParam(state.CreatedAt), timeParam(state.ExpiresAt)); err != nil {
			return fmt.Errorf("insert oauth state: %w", err)
		}
		return nil
	})
}

// Consume atomically claims the token. The single conditional UPDATE is the
// exactly-once guarantee: concurrent callbacks race on the row and only the
// first sees consumed_at IS NULL.
func (s *PostgresStore) Consume(ctx context.Context, token string, now time.Time) (*models.OAuthState, error) {
	var st models.OAuthState
	var provider string
	consumed := timeParam(now)
	err := s.db.QueryRow(ctx,
		`UPDATE oauth_states SET consumed_at = $2
		 WHERE token = $1 AND consumed_at IS NULL
		 RETURNING user_id, provider, redirect_uri, created_at, expires_at`,
		token, consumed).Scan(&st.UserID, &provider, &st.RedirectURI, &st.CreatedAt, &st.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	st.Token = token
	st.Provider = domain.Provider(provider)
	st.ConsumedAt = &consumed
	if st.Expired(now) {
		return nil, ErrStateExpired
	}
	return &st, nil
}

// DeleteExpired garbage-collects states past their expiry, consumed or not.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM oauth_states WHERE expires_at < $1`, timeParam(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired states: %w", err)
	}
	return tag.RowsAffected(), nil
}
