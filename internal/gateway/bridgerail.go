package gateway

import (
	"context"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/signer"
)

// BridgeRail is the settlement-rail variant. Every request is signed with the
// platform credentials; the rail itself distinguishes collect orders (pull
// into the platform ewallet) from payout orders (push out of it).
type BridgeRail struct {
	transport *Transport
	ewalletID string
}

var _ Gateway = (*BridgeRail)(nil)

// NewBridgeRail builds the signed settlement-rail gateway. ewalletID is the
// platform's bridge wallet on the rail.
func NewBridgeRail(baseURL string, creds signer.Credentials, ewalletID string) *BridgeRail {
	return &BridgeRail{
		transport: NewTransport(domain.ProviderBridgeRail, baseURL, SignedAuth(signer.New(creds))),
		ewalletID: ewalletID,
	}
}

type bridgeOrderRequest struct {
	Kind          string `json:"kind"`
	EwalletID     string `json:"ewallet_id"`
	SourceWallet  string `json:"source_wallet,omitempty"`
	DestWallet    string `json:"destination_wallet,omitempty"`
	AmountMicros  int64  `json:"amount_micros"`
	Currency      string `json:"currency"`
	Description   string `json:"description,omitempty"`
	CustomerToken string `json:"customer_token,omitempty"`
}

type bridgeOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (g *BridgeRail) CreateOrder(ctx context.Context, p OrderParams) (OrderRef, error) {
	kind := p.Kind
	if kind == "" {
		kind = OrderKindCollect
	}
	req := bridgeOrderRequest{
		Kind:         string(kind),
		EwalletID:    g.ewalletID,
		AmountMicros: p.AmountMicros,
		Currency:     p.Currency,
		Description:  p.Description,
	}
	switch kind {
	case OrderKindCollect:
		req.SourceWallet = p.Source.WalletID
		req.CustomerToken = p.Source.Credentials.AccessToken
	case OrderKindPayout:
		req.DestWallet = p.DestinationWalletID
	default:
		return OrderRef{}, newError(domain.ProviderBridgeRail, "create_order", KindInvalidParams,
			"unsupported order kind "+string(kind))
	}

	var resp bridgeOrderResponse
	if err := g.transport.PostJSON(ctx, "create_order", "/v1/orders", p.IdempotencyKey, req, &resp); err != nil {
		return OrderRef{}, err
	}
	return OrderRef{Provider: domain.ProviderBridgeRail, ID: resp.OrderID}, nil
}

type bridgeAuthorizeResponse struct {
	AuthorizationID string `json:"authorization_id"`
}

func (g *BridgeRail) AuthorizePayment(ctx context.Context, ref OrderRef, p AuthorizeParams) (AuthorizationRef, error) {
	var resp bridgeAuthorizeResponse
	err := g.transport.PostJSON(ctx, "authorize", "/v1/orders/"+ref.ID+"/authorize", p.IdempotencyKey, struct{}{}, &resp)
	if err != nil {
		return AuthorizationRef{}, err
	}
	return AuthorizationRef{Provider: domain.ProviderBridgeRail, ID: resp.AuthorizationID, OrderID: ref.ID}, nil
}

type bridgeCaptureResponse struct {
	CaptureID    string `json:"capture_id"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
}

func (g *BridgeRail) PaymentCapture(ctx context.Context, ref AuthorizationRef, p CaptureParams) (CaptureResult, error) {
	var resp bridgeCaptureResponse
	err := g.transport.PostJSON(ctx, "capture", "/v1/authorizations/"+ref.ID+"/capture", p.IdempotencyKey, struct{}{}, &resp)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{
		Provider:     domain.ProviderBridgeRail,
		CaptureID:    resp.CaptureID,
		AmountMicros: resp.AmountMicros,
		Currency:     resp.Currency,
	}, nil
}
