package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
)

func linkParams(userID uuid.UUID, provider domain.Provider, walletID string) LinkWalletParams {
	return LinkWalletParams{
		UserID:   userID,
		Provider: provider,
		WalletID: walletID,
		Credentials: models.WalletCredentials{
			AccessToken: "tok-" + walletID,
		},
		Metadata: models.WalletMetadata{HolderName: "Test Holder"},
	}
}

func TestMemoryLinkUpsertsPerUserProvider(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	userID := uuid.New()

	first, err := store.Link(ctx, linkParams(userID, domain.ProviderPeerPay, "pp-wallet-1"))
	require.NoError(t, err)
	require.True(t, first.Active)

	// Relinking the same provider retires the old connection and records a
	// fresh one; at most one stays active.
	second, err := store.Link(ctx, linkParams(userID, domain.ProviderPeerPay, "pp-wallet-2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "pp-wallet-2", second.WalletID)

	wallets, err := store.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, "pp-wallet-2", wallets[0].WalletID)

	// The retired routing key is hidden from resolution but its row survives:
	// nobody else can claim it, and the user can reactivate it later.
	_, err = store.FindByWalletID(ctx, "pp-wallet-1")
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = store.Link(ctx, linkParams(uuid.New(), domain.ProviderPeerPay, "pp-wallet-1"))
	assert.ErrorIs(t, err, ErrDuplicateWalletID)

	back, err := store.Link(ctx, linkParams(userID, domain.ProviderPeerPay, "pp-wallet-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID)
	_, err = store.FindByWalletID(ctx, "pp-wallet-2")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestMemoryLinkRejectsForeignWalletID(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	owner := uuid.New()
	_, err := store.Link(ctx, linkParams(owner, domain.ProviderOpenBank, "ob-wallet-1"))
	require.NoError(t, err)

	intruder := uuid.New()
	_, err = store.Link(ctx, linkParams(intruder, domain.ProviderOpenBank, "ob-wallet-1"))
	assert.ErrorIs(t, err, ErrDuplicateWalletID)

	// Owner's record is unchanged.
	w, err := store.FindByWalletID(ctx, "ob-wallet-1")
	require.NoError(t, err)
	assert.Equal(t, owner, w.UserID)
}

func TestMemoryDeactivateHidesWallet(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	userID := uuid.New()

	_, err := store.Link(ctx, linkParams(userID, domain.ProviderPOSLink, "pos-1"))
	require.NoError(t, err)

	require.NoError(t, store.Deactivate(ctx, "pos-1"))
	_, err = store.FindByWalletID(ctx, "pos-1")
	assert.ErrorIs(t, err, ErrWalletNotFound)
	_, err = store.FindActive(ctx, userID, domain.ProviderPOSLink)
	assert.ErrorIs(t, err, ErrWalletNotFound)

	assert.ErrorIs(t, store.Deactivate(ctx, "pos-1"), ErrWalletNotFound)
}

func TestMemoryConsumeExactlyOnce(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	state := &models.OAuthState{
		Token:       "state-token-1",
		UserID:      uuid.New(),
		Provider:    domain.ProviderPeerPay,
		RedirectURI: "https://app.example/cb",
		CreatedAt:   now,
		ExpiresAt:   now.Add(10 * time.Minute),
	}
	require.NoError(t, store.Put(ctx, state))

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "state-token-1", time.Now()); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	assert.Equal(t, 1, winners)
}

func TestMemoryPutSupersedesPriorState(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	first := &models.OAuthState{
		Token: "token-old", UserID: userID, Provider: domain.ProviderAltWallet,
		CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}
	require.NoError(t, store.Put(ctx, first))

	second := &models.OAuthState{
		Token: "token-new", UserID: userID, Provider: domain.ProviderAltWallet,
		CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}
	require.NoError(t, store.Put(ctx, second))

	_, err := store.Consume(ctx, "token-old", now)
	assert.ErrorIs(t, err, ErrStateNotFound)

	st, err := store.Consume(ctx, "token-new", now)
	require.NoError(t, err)
	assert.Equal(t, userID, st.UserID)
}

func TestMemoryConsumeExpired(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	state := &models.OAuthState{
		Token: "stale", UserID: uuid.New(), Provider: domain.ProviderOpenBank,
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-50 * time.Minute),
	}
	require.NoError(t, store.Put(ctx, state))

	_, err := store.Consume(ctx, "stale", now)
	assert.ErrorIs(t, err, ErrStateExpired)

	// The expired state was still consumed; a second attempt sees NotFound.
	_, err = store.Consume(ctx, "stale", now)
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestMemoryDeleteExpired(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, &models.OAuthState{
		Token: "live", UserID: uuid.New(), Provider: domain.ProviderPeerPay,
		CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}))
	require.NoError(t, store.Put(ctx, &models.OAuthState{
		Token: "dead", UserID: uuid.New(), Provider: domain.ProviderPeerPay,
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute),
	}))

	n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryCreateReturnsExistingForClientKey(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	userID := uuid.New()

	tx := &models.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		SourceWalletID: "src",
		DestWalletID:   "dst",
		AmountMicros:   10_000_000,
		FeeMicros:      750_000,
		Currency:       "USD",
		Type:           domain.TransferTypeInternal,
		Status:         domain.TxStatusPending,
		ClientKey:      "client-key-1",
	}
	first, created, err := store.Create(ctx, tx)
	require.NoError(t, err)
	require.True(t, created)

	replay := *tx
	replay.ID = uuid.New()
	second, created, err := store.Create(ctx, &replay)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestMemoryUpdateStatusCAS(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	tx := &models.Transaction{
		ID: uuid.New(), UserID: uuid.New(), SourceWalletID: "a", DestWalletID: "b",
		AmountMicros: 1, Currency: "USD", Type: domain.TransferTypeInternal,
		Status: domain.TxStatusPending,
	}
	_, _, err := store.Create(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(ctx, tx.ID, domain.TxStatusPending, domain.TxStatusProcessing))
	assert.ErrorIs(t, store.UpdateStatus(ctx, tx.ID, domain.TxStatusPending, domain.TxStatusCancelled), ErrInvalidTransition)

	got, err := store.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatusProcessing, got.Status)
}
