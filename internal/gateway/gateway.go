// Package gateway abstracts the heterogeneous provider APIs behind one
// three-stage capability contract. Every provider variant implements the full
// contract; providers with a single-shot charge collapse stages internally so
// the orchestrator's control flow stays provider-agnostic.
package gateway

import (
	"context"
	"fmt"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
)

// OrderKind distinguishes the direction of a provider-side intent.
type OrderKind string

const (
	// OrderKindCharge moves funds between two wallets on the same provider.
	OrderKindCharge OrderKind = "charge"
	// OrderKindCollect pulls funds from an external wallet into the platform
	// ewallet on the settlement rail.
	OrderKindCollect OrderKind = "collect"
	// OrderKindPayout pushes funds from the platform ewallet out to a
	// destination wallet.
	OrderKindPayout OrderKind = "payout"
)

// OrderParams establish a provider-side intent to move funds.
type OrderParams struct {
	IdempotencyKey string
	Kind           OrderKind
	AmountMicros   int64
	Currency       string
	// Source is the wallet being debited; its credential material is opaque
	// to the orchestrator and only interpreted by the matching variant.
	Source models.ConnectedWallet
	// DestinationWalletID is the externally-visible routing key credited.
	DestinationWalletID string
	Description         string
}

// AuthorizeParams reserve funds for a created order.
type AuthorizeParams struct {
	IdempotencyKey string
}

// CaptureParams finalize an authorized payment.
type CaptureParams struct {
	IdempotencyKey string
}

// OrderRef identifies a provider-side order.
type OrderRef struct {
	Provider domain.Provider `json:"provider"`
	ID       string          `json:"id"`
}

// AuthorizationRef identifies a reserved payment.
type AuthorizationRef struct {
	Provider domain.Provider `json:"provider"`
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
}

// CaptureResult is the finalized funds movement.
type CaptureResult struct {
	Provider     domain.Provider `json:"provider"`
	CaptureID    string          `json:"capture_id"`
	AmountMicros int64           `json:"amount_micros"`
	Currency     string          `json:"currency"`
}

// Gateway is the capability contract implemented once per provider. All
// failures are normalized to *Error before leaving this layer.
type Gateway interface {
	// CreateOrder establishes a provider-side intent to move funds.
	CreateOrder(ctx context.Context, p OrderParams) (OrderRef, error)
	// AuthorizePayment reserves funds without finalizing.
	AuthorizePayment(ctx context.Context, ref OrderRef, p AuthorizeParams) (AuthorizationRef, error)
	// PaymentCapture finalizes the reserved movement. Idempotent: a second
	// call with the same idempotency key returns the original result.
	PaymentCapture(ctx context.Context, ref AuthorizationRef, p CaptureParams) (CaptureResult, error)
}

// Registry maps the provider enumeration to its gateway variant. Selection is
// a lookup, never runtime type inspection.
type Registry struct {
	gateways map[domain.Provider]Gateway
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{gateways: make(map[domain.Provider]Gateway)}
}

// Register binds a variant to a provider. Later registrations replace earlier
// ones, which tests use to swap in mocks.
func (r *Registry) Register(p domain.Provider, g Gateway) *Registry {
	r.gateways[p] = g
	return r
}

// Lookup returns the variant for a provider.
func (r *Registry) Lookup(p domain.Provider) (Gateway, error) {
	g, ok := r.gateways[p]
	if !ok {
		return nil, fmt.Errorf("%w: no gateway registered for provider %q", domain.ErrValidation, p)
	}
	return g, nil
}
