package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/domain"
)

// User owns zero or more wallet connections. The identity key is immutable;
// profile fields are irrelevant to orchestration.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// WalletCredentials is provider-issued credential material. All fields are
// opaque to the orchestrator and are only handed to the matching gateway.
type WalletCredentials struct {
	AccessToken      string `json:"access_token"`
	CustomerRef      string `json:"customer_ref"`
	PaymentMethodRef string `json:"payment_method_ref"`
}

// WalletMetadata is display-only information about a connected wallet.
type WalletMetadata struct {
	HolderName string `json:"holder_name"`
	Email      string `json:"email"`
}

// ConnectedWallet is one link between a User and a provider account.
// At most one active row exists per (user, provider); the externally-visible
// WalletID is globally unique and used as the routing key for transfers.
type ConnectedWallet struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Provider    domain.Provider   `json:"provider"`
	WalletID    string            `json:"wallet_id"`
	Credentials WalletCredentials `json:"-"`
	Metadata    WalletMetadata    `json:"metadata"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// OAuthState is a single-use correlation token binding an in-flight OAuth
// linking attempt to (user, provider). It defends against forged callbacks
// attaching an attacker's provider account to a victim's user id.
type OAuthState struct {
	Token       string          `json:"-"`
	UserID      uuid.UUID       `json:"user_id"`
	Provider    domain.Provider `json:"provider"`
	RedirectURI string          `json:"redirect_uri"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	ConsumedAt  *time.Time      `json:"consumed_at,omitempty"`
}

// Expired reports whether the state is past its TTL at the given instant.
func (s *OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ProviderRefs carries the provider-assigned identifiers recorded for one leg.
type ProviderRefs struct {
	OrderID         string `json:"order_id,omitempty"`
	AuthorizationID string `json:"authorization_id,omitempty"`
	CaptureID       string `json:"capture_id,omitempty"`
}

// TransferLeg records one directional funds movement within a transfer.
type TransferLeg struct {
	Number   int             `json:"number"`
	Provider domain.Provider `json:"provider"`
	Amount   int64           `json:"amount_micros"`
	Refs     ProviderRefs    `json:"refs"`
}

// Transaction is the immutable-once-finalized audit record of a funds
// movement attempt. Amount and fee are fixed at creation; status transitions
// follow the monotonic state machine and never regress from a terminal state.
type Transaction struct {
	ID                 uuid.UUID          `json:"id"`
	UserID             uuid.UUID          `json:"user_id"`
	SourceWalletID     string             `json:"source_wallet_id"`
	DestWalletID       string             `json:"destination_wallet_id"`
	AmountMicros       int64              `json:"amount_micros"`
	FeeMicros          int64              `json:"fee_micros"`
	Currency           string             `json:"currency"`
	Type               string             `json:"type"`
	Status             string             `json:"status"`
	Description        string             `json:"description,omitempty"`
	ClientKey          string             `json:"client_key,omitempty"`
	Legs               []TransferLeg      `json:"legs,omitempty"`
	FailureKind        domain.FailureKind `json:"failure_kind,omitempty"`
	ReconcileRequired  bool               `json:"reconcile_required"`
	ReconcileReason    string             `json:"reconcile_reason,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NetMicros is the amount credited to the destination after the platform fee.
func (t *Transaction) NetMicros() int64 {
	return t.AmountMicros - t.FeeMicros
}

// Terminal reports whether the transaction reached a final state.
func (t *Transaction) Terminal() bool {
	switch t.Status {
	case domain.TxStatusCompleted, domain.TxStatusFailed, domain.TxStatusCancelled:
		return true
	}
	return false
}
