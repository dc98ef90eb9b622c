package gateway

import (
	"context"

	"github.com/kwamina/walletbridge/internal/domain"
)

// POSLink is the point-of-sale rail. Like the P2P rail it exposes a native
// order/authorize/capture flow, but it addresses wallets by terminal-issued
// customer and payment-method references rather than tokens.
type POSLink struct {
	transport *Transport
}

var _ Gateway = (*POSLink)(nil)

func NewPOSLink(baseURL, apiToken string) *POSLink {
	return &POSLink{transport: NewTransport(domain.ProviderPOSLink, baseURL, BearerAuth(apiToken))}
}

type posLinkOrderRequest struct {
	CustomerRef      string `json:"customer_ref"`
	PaymentMethodRef string `json:"payment_method_ref"`
	MerchantWallet   string `json:"merchant_wallet"`
	AmountMicros     int64  `json:"amount_micros"`
	Currency         string `json:"currency"`
	Reference        string `json:"reference,omitempty"`
}

type posLinkIDResponse struct {
	ID string `json:"id"`
}

func (g *POSLink) CreateOrder(ctx context.Context, p OrderParams) (OrderRef, error) {
	req := posLinkOrderRequest{
		CustomerRef:      p.Source.Credentials.CustomerRef,
		PaymentMethodRef: p.Source.Credentials.PaymentMethodRef,
		MerchantWallet:   p.DestinationWalletID,
		AmountMicros:     p.AmountMicros,
		Currency:         p.Currency,
		Reference:        p.Description,
	}
	var resp posLinkIDResponse
	if err := g.transport.PostJSON(ctx, "create_order", "/v2/orders", p.IdempotencyKey, req, &resp); err != nil {
		return OrderRef{}, err
	}
	return OrderRef{Provider: domain.ProviderPOSLink, ID: resp.ID}, nil
}

func (g *POSLink) AuthorizePayment(ctx context.Context, ref OrderRef, p AuthorizeParams) (AuthorizationRef, error) {
	var resp posLinkIDResponse
	err := g.transport.PostJSON(ctx, "authorize", "/v2/orders/"+ref.ID+"/authorizations", p.IdempotencyKey, struct{}{}, &resp)
	if err != nil {
		return AuthorizationRef{}, err
	}
	return AuthorizationRef{Provider: domain.ProviderPOSLink, ID: resp.ID, OrderID: ref.ID}, nil
}

type posLinkCaptureResponse struct {
	ID           string `json:"id"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
}

func (g *POSLink) PaymentCapture(ctx context.Context, ref AuthorizationRef, p CaptureParams) (CaptureResult, error) {
	var resp posLinkCaptureResponse
	err := g.transport.PostJSON(ctx, "capture", "/v2/authorizations/"+ref.ID+"/captures", p.IdempotencyKey, struct{}{}, &resp)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{
		Provider:     domain.ProviderPOSLink,
		CaptureID:    resp.ID,
		AmountMicros: resp.AmountMicros,
		Currency:     resp.Currency,
	}, nil
}
