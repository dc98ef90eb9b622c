package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/domain"
)

// singleShot adapts a provider with a one-call charge API to the three-stage
// contract. CreateOrder and AuthorizePayment are local bookkeeping; the
// remote charge happens at PaymentCapture, carrying the capture idempotency
// key so a retried capture cannot double-charge. Pending intents live only in
// process memory, which holds because all three stages run inside one
// transfer attempt.
type singleShot struct {
	provider  domain.Provider
	transport *Transport
	path      string
	build     func(OrderParams) any

	mu      sync.Mutex
	pending map[string]OrderParams
}

var _ Gateway = (*singleShot)(nil)

type singleShotChargeResponse struct {
	ChargeID     string `json:"charge_id"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
}

func (g *singleShot) CreateOrder(_ context.Context, p OrderParams) (OrderRef, error) {
	if p.AmountMicros <= 0 {
		return OrderRef{}, newError(g.provider, "create_order", KindInvalidParams, "amount must be positive")
	}
	id := uuid.NewString()
	g.mu.Lock()
	g.pending[id] = p
	g.mu.Unlock()
	return OrderRef{Provider: g.provider, ID: id}, nil
}

func (g *singleShot) AuthorizePayment(_ context.Context, ref OrderRef, _ AuthorizeParams) (AuthorizationRef, error) {
	g.mu.Lock()
	_, ok := g.pending[ref.ID]
	g.mu.Unlock()
	if !ok {
		return AuthorizationRef{}, newError(g.provider, "authorize", KindInvalidParams, "unknown order "+ref.ID)
	}
	return AuthorizationRef{Provider: g.provider, ID: ref.ID, OrderID: ref.ID}, nil
}

func (g *singleShot) PaymentCapture(ctx context.Context, ref AuthorizationRef, p CaptureParams) (CaptureResult, error) {
	g.mu.Lock()
	params, ok := g.pending[ref.ID]
	g.mu.Unlock()
	if !ok {
		return CaptureResult{}, newError(g.provider, "capture", KindInvalidParams, "unknown authorization "+ref.ID)
	}

	var resp singleShotChargeResponse
	if err := g.transport.PostJSON(ctx, "capture", g.path, p.IdempotencyKey, g.build(params), &resp); err != nil {
		return CaptureResult{}, err
	}

	g.mu.Lock()
	delete(g.pending, ref.ID)
	g.mu.Unlock()

	return CaptureResult{
		Provider:     g.provider,
		CaptureID:    resp.ChargeID,
		AmountMicros: resp.AmountMicros,
		Currency:     resp.Currency,
	}, nil
}
