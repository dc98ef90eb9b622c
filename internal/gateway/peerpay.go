package gateway

import (
	"context"

	"github.com/kwamina/walletbridge/internal/domain"
)

// PeerPay is the P2P rail. It exposes all three stages natively, so each
// contract method is a distinct remote call.
type PeerPay struct {
	transport *Transport
}

var _ Gateway = (*PeerPay)(nil)

// NewPeerPay builds the P2P gateway. apiToken is the platform's credential;
// per-wallet tokens travel in the payload.
func NewPeerPay(baseURL, apiToken string) *PeerPay {
	return &PeerPay{transport: NewTransport(domain.ProviderPeerPay, baseURL, BearerAuth(apiToken))}
}

type peerPayOrderRequest struct {
	SenderHandle   string `json:"sender_handle"`
	SenderToken    string `json:"sender_token"`
	ReceiverHandle string `json:"receiver_handle"`
	AmountMicros   int64  `json:"amount_micros"`
	Currency       string `json:"currency"`
	Note           string `json:"note,omitempty"`
}

type peerPayOrderResponse struct {
	PaymentID string `json:"payment_id"`
}

func (g *PeerPay) CreateOrder(ctx context.Context, p OrderParams) (OrderRef, error) {
	req := peerPayOrderRequest{
		SenderHandle:   p.Source.WalletID,
		SenderToken:    p.Source.Credentials.AccessToken,
		ReceiverHandle: p.DestinationWalletID,
		AmountMicros:   p.AmountMicros,
		Currency:       p.Currency,
		Note:           p.Description,
	}
	var resp peerPayOrderResponse
	if err := g.transport.PostJSON(ctx, "create_order", "/payments", p.IdempotencyKey, req, &resp); err != nil {
		return OrderRef{}, err
	}
	return OrderRef{Provider: domain.ProviderPeerPay, ID: resp.PaymentID}, nil
}

type peerPayHoldResponse struct {
	HoldID string `json:"hold_id"`
}

func (g *PeerPay) AuthorizePayment(ctx context.Context, ref OrderRef, p AuthorizeParams) (AuthorizationRef, error) {
	var resp peerPayHoldResponse
	err := g.transport.PostJSON(ctx, "authorize", "/payments/"+ref.ID+"/hold", p.IdempotencyKey, struct{}{}, &resp)
	if err != nil {
		return AuthorizationRef{}, err
	}
	return AuthorizationRef{Provider: domain.ProviderPeerPay, ID: resp.HoldID, OrderID: ref.ID}, nil
}

type peerPayCaptureResponse struct {
	TransferID   string `json:"transfer_id"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
}

func (g *PeerPay) PaymentCapture(ctx context.Context, ref AuthorizationRef, p CaptureParams) (CaptureResult, error) {
	var resp peerPayCaptureResponse
	err := g.transport.PostJSON(ctx, "capture", "/holds/"+ref.ID+"/complete", p.IdempotencyKey, struct{}{}, &resp)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{
		Provider:     domain.ProviderPeerPay,
		CaptureID:    resp.TransferID,
		AmountMicros: resp.AmountMicros,
		Currency:     resp.Currency,
	}, nil
}
