package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/repository"
	"github.com/kwamina/walletbridge/internal/signer"
)

var ErrCallbackPayloadMismatch = errors.New("callback payload does not match transaction")

// WebhookService handles signed settlement callbacks from the settlement
// rail. A callback confirming a payout that was flagged for reconciliation
// resolves the flag without operator action.
type WebhookService struct {
	store    repository.TransactionStore
	verifier *signer.Verifier
	recon    *ReconciliationService
	skipSig  bool
}

// NewWebhookService creates the callback handler. skipSignature is for local
// development only.
func NewWebhookService(store repository.TransactionStore, verifier *signer.Verifier, skipSignature bool) *WebhookService {
	return &WebhookService{
		store:    store,
		verifier: verifier,
		recon:    NewReconciliationService(store),
		skipSig:  skipSignature,
	}
}

// SettlementCallbackPayload is the rail's notification body.
type SettlementCallbackPayload struct {
	TransactionID string `json:"transaction_id"`
	CaptureID     string `json:"capture_id"`
	AmountMicros  int64  `json:"amount_micros"`
	Status        string `json:"status"` // settled | returned
}

// SettlementCallbackResponse acknowledges the callback.
type SettlementCallbackResponse struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reconciled    bool      `json:"reconciled"`
	Message       string    `json:"message"`
}

// HandleSettlementCallback verifies the request signature and applies the
// settlement outcome to the referenced transfer.
func (s *WebhookService) HandleSettlementCallback(ctx context.Context, method, path string, payload []byte, sig signer.Signature) (*SettlementCallbackResponse, error) {
	if !s.skipSig {
		if err := s.verifier.Verify(method, path, sig, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
		}
	}

	var cb SettlementCallbackPayload
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, fmt.Errorf("%w: invalid callback payload", domain.ErrValidation)
	}
	cb.Status = strings.ToLower(strings.TrimSpace(cb.Status))

	txID, err := uuid.Parse(cb.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid transaction_id", domain.ErrValidation)
	}

	tx, err := s.store.Get(ctx, txID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, fmt.Errorf("%w: unknown transaction", domain.ErrValidation)
		}
		return nil, fmt.Errorf("load transaction for callback: %w", err)
	}

	if cb.AmountMicros != 0 && cb.AmountMicros != tx.NetMicros() && cb.AmountMicros != tx.AmountMicros {
		return nil, ErrCallbackPayloadMismatch
	}

	if !tx.ReconcileRequired {
		return &SettlementCallbackResponse{
			TransactionID: tx.ID,
			Reconciled:    false,
			Message:       "transaction already consistent",
		}, nil
	}

	switch cb.Status {
	case "settled":
		note := fmt.Sprintf("settled via rail callback, capture %s", cb.CaptureID)
		if _, err := s.recon.Resolve(ctx, tx.ID, note); err != nil {
			return nil, err
		}
		return &SettlementCallbackResponse{
			TransactionID: tx.ID,
			Reconciled:    true,
			Message:       "reconciliation resolved",
		}, nil
	case "returned":
		// Funds came back to the ewallet; the flag stays raised for an
		// operator to refund out of band, but the reason is updated.
		tx.ReconcileReason = fmt.Sprintf("payout returned by rail, capture %s", cb.CaptureID)
		if err := s.store.SaveProgress(ctx, tx); err != nil {
			return nil, fmt.Errorf("record returned payout: %w", err)
		}
		zap.L().Warn("settlement rail returned payout",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("capture_id", cb.CaptureID))
		return &SettlementCallbackResponse{
			TransactionID: tx.ID,
			Reconciled:    false,
			Message:       "payout returned, awaiting operator action",
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported callback status %q", domain.ErrValidation, cb.Status)
	}
}
