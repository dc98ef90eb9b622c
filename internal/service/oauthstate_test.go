package service

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/repository"
)

func TestIssueAndConsumeState(t *testing.T) {
	store := repository.NewMemory()
	svc := NewOAuthStateService(store, 10*time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	state, err := svc.Issue(ctx, userID, domain.ProviderPeerPay, "https://app.example/cb")
	require.NoError(t, err)
	assert.NotEmpty(t, state.Token)
	assert.Equal(t, userID, state.UserID)

	got, err := svc.Consume(ctx, state.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, domain.ProviderPeerPay, got.Provider)

	// Replay reads as an auth failure.
	_, err = svc.Consume(ctx, state.Token)
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestConsumeExpiredState(t *testing.T) {
	store := repository.NewMemory()
	now := time.Now()
	svc := NewOAuthStateService(store, 10*time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	state, err := svc.Issue(ctx, uuid.New(), domain.ProviderOpenBank, "")
	require.NoError(t, err)

	now = now.Add(11 * time.Minute)
	_, err = svc.Consume(ctx, state.Token)
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestIssueSupersedesPriorToken(t *testing.T) {
	store := repository.NewMemory()
	svc := NewOAuthStateService(store, 10*time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.Issue(ctx, userID, domain.ProviderAltWallet, "")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, userID, domain.ProviderAltWallet, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = svc.Consume(ctx, first.Token)
	assert.ErrorIs(t, err, domain.ErrAuth)
	_, err = svc.Consume(ctx, second.Token)
	assert.NoError(t, err)
}

func TestSweepExpiredStates(t *testing.T) {
	store := repository.NewMemory()
	now := time.Now()
	svc := NewOAuthStateService(store, time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := svc.Issue(ctx, uuid.New(), domain.ProviderPeerPay, "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, uuid.New(), domain.ProviderOpenBank, "")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	swept, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)
}

func TestBeginLinkBuildsAuthorizeURL(t *testing.T) {
	store := repository.NewMemory()
	states := NewOAuthStateService(store, 10*time.Minute)
	wallets := NewWalletService(store, states, map[domain.Provider]string{
		domain.ProviderPeerPay: "https://auth.peerpay.example/authorize?client_id=wb",
	})
	ctx := context.Background()

	res, err := wallets.BeginLink(ctx, uuid.New(), domain.ProviderPeerPay, "https://app.example/cb")
	require.NoError(t, err)

	u, err := url.Parse(res.AuthorizeURL)
	require.NoError(t, err)
	assert.Equal(t, res.State.Token, u.Query().Get("state"))
	assert.Equal(t, "https://app.example/cb", u.Query().Get("redirect_uri"))
	assert.Equal(t, "wb", u.Query().Get("client_id"))

	// Unknown provider for linking is a validation failure.
	_, err = wallets.BeginLink(ctx, uuid.New(), domain.ProviderPOSLink, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCompleteLinkBindsStateIdentity(t *testing.T) {
	store := repository.NewMemory()
	states := NewOAuthStateService(store, 10*time.Minute)
	wallets := NewWalletService(store, states, map[domain.Provider]string{
		domain.ProviderPeerPay: "https://auth.peerpay.example/authorize",
	})
	ctx := context.Background()
	userID := uuid.New()

	res, err := wallets.BeginLink(ctx, userID, domain.ProviderPeerPay, "")
	require.NoError(t, err)

	w, err := wallets.CompleteLink(ctx, CompleteLinkParams{
		StateToken:  res.State.Token,
		WalletID:    "pp-new-wallet",
		Credentials: models.WalletCredentials{AccessToken: "tok"},
		Metadata:    models.WalletMetadata{HolderName: "Holder"},
	})
	require.NoError(t, err)
	// Identity comes from the state, not the callback.
	assert.Equal(t, userID, w.UserID)
	assert.Equal(t, domain.ProviderPeerPay, w.Provider)

	// The token is gone after one use.
	_, err = wallets.CompleteLink(ctx, CompleteLinkParams{
		StateToken: res.State.Token,
		WalletID:   "pp-other-wallet",
	})
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestDeactivateForeignWalletHidden(t *testing.T) {
	store := repository.NewMemory()
	states := NewOAuthStateService(store, 10*time.Minute)
	wallets := NewWalletService(store, states, nil)
	ctx := context.Background()

	owner := uuid.New()
	_, err := store.Link(ctx, repository.LinkWalletParams{
		UserID: owner, Provider: domain.ProviderPeerPay, WalletID: "pp-owned",
	})
	require.NoError(t, err)

	err = wallets.Deactivate(ctx, uuid.New(), "pp-owned")
	assert.ErrorIs(t, err, repository.ErrWalletNotFound)

	require.NoError(t, wallets.Deactivate(ctx, owner, "pp-owned"))
}
