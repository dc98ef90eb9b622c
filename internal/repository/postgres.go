package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore is the production Store implementation backed by pgx.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a store wrapper around a pgx connection pool.
func NewPostgres(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema applies the embedded schema. Convenience for local/dev and
// DB-backed tests; production rollouts run migrations externally.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// runInTx executes fn within a database transaction.
func (s *PostgresStore) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const walletColumns = `id, user_id, provider, wallet_id, access_token, customer_ref,
	payment_method_ref, holder_name, contact_email, active, created_at, updated_at`

func scanWallet(row pgx.Row) (*models.ConnectedWallet, error) {
	var w models.ConnectedWallet
	var provider string
	err := row.Scan(&w.ID, &w.UserID, &provider, &w.WalletID,
		&w.Credentials.AccessToken, &w.Credentials.CustomerRef, &w.Credentials.PaymentMethodRef,
		&w.Metadata.HolderName, &w.Metadata.Email,
		&w.Active, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Provider = domain.Provider(provider)
	return &w, nil
}

// Link upserts the wallet connection for (user, provider). The global
// wallet-id uniqueness and the one-active-per-pair invariant are enforced by
// the indexes; a race on either surfaces as a unique violation which is
// retried once before being mapped to ErrDuplicateWalletID.
func (s *PostgresStore) Link(ctx context.Context, p LinkWalletParams) (*models.ConnectedWallet, error) {
	var out *models.ConnectedWallet
	attempt := func() error {
		return s.runInTx(ctx, func(tx pgx.Tx) error {
			var ownerID uuid.UUID
			var rowID uuid.UUID
			var rowProvider string
			err := tx.QueryRow(ctx,
				`SELECT id, user_id, provider FROM connected_wallets WHERE wallet_id = $1 FOR UPDATE`,
				p.WalletID).Scan(&rowID, &ownerID, &rowProvider)
			switch {
			case err == nil:
				if ownerID != p.UserID {
					return ErrDuplicateWalletID
				}
				if rowProvider != string(p.Provider) {
					// Same user reusing the routing key on a different rail.
					return ErrDuplicateWalletID
				}
				// Reactivate/refresh the user's own row; any other active row
				// for the pair is replaced.
				if _, err := tx.Exec(ctx,
					`UPDATE connected_wallets SET active = FALSE, updated_at = NOW()
					 WHERE user_id = $1 AND provider = $2 AND active AND id <> $3`,
					p.UserID, string(p.Provider), rowID); err != nil {
					return fmt.Errorf("retire prior wallet: %w", err)
				}
				row := tx.QueryRow(ctx,
					`UPDATE connected_wallets
					 SET access_token = $2, customer_ref = $3, payment_method_ref = $4,
					     holder_name = $5, contact_email = $6, active = TRUE, updated_at = NOW()
					 WHERE id = $1
					 RETURNING `+walletColumns,
					rowID, p.Credentials.AccessToken, p.Credentials.CustomerRef, p.Credentials.PaymentMethodRef,
					p.Metadata.HolderName, p.Metadata.Email)
				out, err = scanWallet(row)
				return err
			case errors.Is(err, pgx.ErrNoRows):
				// New routing key: retire the prior active connection and
				// insert a fresh row. The retired row keeps its wallet_id so
				// transactions referencing it stay resolvable.
				if _, err := tx.Exec(ctx,
					`UPDATE connected_wallets SET active = FALSE, updated_at = NOW()
					 WHERE user_id = $1 AND provider = $2 AND active`,
					p.UserID, string(p.Provider)); err != nil {
					return fmt.Errorf("retire prior wallet: %w", err)
				}
				row := tx.QueryRow(ctx,
					`INSERT INTO connected_wallets
					 (id, user_id, provider, wallet_id, access_token, customer_ref,
					  payment_method_ref, holder_name, contact_email, active)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE)
					 RETURNING `+walletColumns,
					uuid.New(), p.UserID, string(p.Provider), p.WalletID,
					p.Credentials.AccessToken, p.Credentials.CustomerRef, p.Credentials.PaymentMethodRef,
					p.Metadata.HolderName, p.Metadata.Email)
				out, err = scanWallet(row)
				return err
			default:
				return fmt.Errorf("lock wallet row: %w", err)
			}
		})
	}

	err := attempt()
	if isUniqueViolation(err) {
		err = attempt()
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicateWalletID
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateWalletID) {
			return nil, ErrDuplicateWalletID
		}
		return nil, fmt.Errorf("link wallet: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindActive(ctx context.Context, userID uuid.UUID, provider domain.Provider) (*models.ConnectedWallet, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM connected_wallets
		 WHERE user_id = $1 AND provider = $2 AND active`,
		userID, string(provider))
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find wallet: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) FindByWalletID(ctx context.Context, walletID string) (*models.ConnectedWallet, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM connected_wallets WHERE wallet_id = $1 AND active`,
		walletID)
	w, err := scanWallet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find wallet by id: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ConnectedWallet, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+walletColumns+` FROM connected_wallets
		 WHERE user_id = $1 AND active ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var out []models.ConnectedWallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Deactivate(ctx context.Context, walletID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE connected_wallets SET active = FALSE, updated_at = NOW()
		 WHERE wallet_id = $1 AND active`,
		walletID)
	if err != nil {
		return fmt.Errorf("deactivate wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// timeParam normalizes times to UTC before they hit the driver.
func timeParam(t time.Time) time.Time {
	return t.UTC()
}
