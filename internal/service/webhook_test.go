package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/repository"
	"github.com/kwamina/walletbridge/internal/signer"
)

const callbackPath = "/v1/callbacks/settlement"

func flaggedTransaction(t *testing.T, store *repository.MemoryStore) *models.Transaction {
	t.Helper()
	tx := &models.Transaction{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		SourceWalletID:    "src",
		DestWalletID:      "dst",
		AmountMicros:      25_000_000,
		FeeMicros:         750_000,
		Currency:          "USD",
		Type:              domain.TransferTypeBridge,
		Status:            domain.TxStatusFailed,
		ReconcileRequired: true,
		ReconcileReason:   "collect succeeded, payout failed",
	}
	_, _, err := store.Create(context.Background(), tx)
	require.NoError(t, err)
	return tx
}

func TestSettlementCallbackResolvesReconciliation(t *testing.T) {
	store := repository.NewMemory()
	creds := signer.Credentials{AccessKey: "ak", SecretKey: "sk"}
	svc := NewWebhookService(store, signer.NewVerifier(creds, time.Minute), false)
	tx := flaggedTransaction(t, store)

	payload, err := json.Marshal(SettlementCallbackPayload{
		TransactionID: tx.ID.String(),
		CaptureID:     "br-cap-9",
		AmountMicros:  tx.NetMicros(),
		Status:        "settled",
	})
	require.NoError(t, err)

	sig, err := signer.New(creds).Sign("POST", callbackPath, payload)
	require.NoError(t, err)

	resp, err := svc.HandleSettlementCallback(context.Background(), "POST", callbackPath, payload, sig)
	require.NoError(t, err)
	assert.True(t, resp.Reconciled)

	got, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.False(t, got.ReconcileRequired)
	assert.Contains(t, got.ReconcileReason, "br-cap-9")
	// Terminal status is untouched by reconciliation.
	assert.Equal(t, domain.TxStatusFailed, got.Status)
}

func TestSettlementCallbackRejectsBadSignature(t *testing.T) {
	store := repository.NewMemory()
	creds := signer.Credentials{AccessKey: "ak", SecretKey: "sk"}
	svc := NewWebhookService(store, signer.NewVerifier(creds, time.Minute), false)
	tx := flaggedTransaction(t, store)

	payload, _ := json.Marshal(SettlementCallbackPayload{
		TransactionID: tx.ID.String(), Status: "settled",
	})
	sig, err := signer.New(signer.Credentials{AccessKey: "ak", SecretKey: "wrong"}).Sign("POST", callbackPath, payload)
	require.NoError(t, err)

	_, err = svc.HandleSettlementCallback(context.Background(), "POST", callbackPath, payload, sig)
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestSettlementCallbackReturnedKeepsFlag(t *testing.T) {
	store := repository.NewMemory()
	svc := NewWebhookService(store, nil, true)
	tx := flaggedTransaction(t, store)

	payload, _ := json.Marshal(SettlementCallbackPayload{
		TransactionID: tx.ID.String(),
		CaptureID:     "br-cap-2",
		Status:        "returned",
	})

	resp, err := svc.HandleSettlementCallback(context.Background(), "POST", callbackPath, payload, signer.Signature{})
	require.NoError(t, err)
	assert.False(t, resp.Reconciled)

	got, err := store.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.True(t, got.ReconcileRequired)
	assert.Contains(t, got.ReconcileReason, "returned")
}

func TestSettlementCallbackAmountMismatch(t *testing.T) {
	store := repository.NewMemory()
	svc := NewWebhookService(store, nil, true)
	tx := flaggedTransaction(t, store)

	payload, _ := json.Marshal(SettlementCallbackPayload{
		TransactionID: tx.ID.String(),
		AmountMicros:  1,
		Status:        "settled",
	})

	_, err := svc.HandleSettlementCallback(context.Background(), "POST", callbackPath, payload, signer.Signature{})
	assert.ErrorIs(t, err, ErrCallbackPayloadMismatch)
}

func TestReconciliationRunAndResolve(t *testing.T) {
	store := repository.NewMemory()
	recon := NewReconciliationService(store)
	ctx := context.Background()
	tx := flaggedTransaction(t, store)

	require.NoError(t, recon.Run(ctx))

	queued, err := recon.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	resolved, err := recon.Resolve(ctx, tx.ID, "operator confirmed payout")
	require.NoError(t, err)
	assert.False(t, resolved.ReconcileRequired)

	// Resolving twice is a no-op.
	again, err := recon.Resolve(ctx, tx.ID, "second note")
	require.NoError(t, err)
	assert.False(t, again.ReconcileRequired)

	queued, err = recon.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, queued)
}
