package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/repository"
)

// WalletService manages the registry of connected wallets and the OAuth-style
// linking flow that populates it.
type WalletService struct {
	store  repository.WalletStore
	states *OAuthStateService
	// authorizeURLs maps each provider to its consent page.
	authorizeURLs map[domain.Provider]string
}

func NewWalletService(store repository.WalletStore, states *OAuthStateService, authorizeURLs map[domain.Provider]string) *WalletService {
	return &WalletService{store: store, states: states, authorizeURLs: authorizeURLs}
}

// BeginLinkResult is returned to the client starting a link flow.
type BeginLinkResult struct {
	AuthorizeURL string             `json:"authorize_url"`
	State        *models.OAuthState `json:"-"`
}

// BeginLink issues a state token and builds the provider consent URL the
// client must redirect the user to.
func (s *WalletService) BeginLink(ctx context.Context, userID uuid.UUID, provider domain.Provider, redirectURI string) (*BeginLinkResult, error) {
	base, ok := s.authorizeURLs[provider]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q does not support linking", domain.ErrValidation, provider)
	}

	state, err := s.states.Issue(ctx, userID, provider, redirectURI)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse authorize url for %s: %w", provider, err)
	}
	q := u.Query()
	q.Set("state", state.Token)
	if redirectURI != "" {
		q.Set("redirect_uri", redirectURI)
	}
	u.RawQuery = q.Encode()

	return &BeginLinkResult{AuthorizeURL: u.String(), State: state}, nil
}

// CompleteLinkParams carries the callback payload from the provider.
type CompleteLinkParams struct {
	StateToken  string
	WalletID    string
	Credentials models.WalletCredentials
	Metadata    models.WalletMetadata
}

// CompleteLink redeems the state token and records the wallet. The user and
// provider come from the consumed state, never from the callback payload.
func (s *WalletService) CompleteLink(ctx context.Context, p CompleteLinkParams) (*models.ConnectedWallet, error) {
	if p.WalletID == "" {
		return nil, fmt.Errorf("%w: wallet_id is required", domain.ErrValidation)
	}

	state, err := s.states.Consume(ctx, p.StateToken)
	if err != nil {
		return nil, err
	}

	wallet, err := s.store.Link(ctx, repository.LinkWalletParams{
		UserID:      state.UserID,
		Provider:    state.Provider,
		WalletID:    p.WalletID,
		Credentials: p.Credentials,
		Metadata:    p.Metadata,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateWalletID) {
			return nil, fmt.Errorf("%w: wallet id %q is already linked", domain.ErrValidation, p.WalletID)
		}
		return nil, fmt.Errorf("link wallet: %w", err)
	}
	return wallet, nil
}

// RegisterParams carries an out-of-band wallet registration, used when the
// credential material was obtained outside the OAuth flow.
type RegisterParams struct {
	Provider    domain.Provider
	WalletID    string
	Credentials models.WalletCredentials
	Metadata    models.WalletMetadata
}

// Register records a wallet without an OAuth handshake.
func (s *WalletService) Register(ctx context.Context, userID uuid.UUID, p RegisterParams) (*models.ConnectedWallet, error) {
	if p.WalletID == "" {
		return nil, fmt.Errorf("%w: wallet_id is required", domain.ErrValidation)
	}

	wallet, err := s.store.Link(ctx, repository.LinkWalletParams{
		UserID:      userID,
		Provider:    p.Provider,
		WalletID:    p.WalletID,
		Credentials: p.Credentials,
		Metadata:    p.Metadata,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateWalletID) {
			return nil, fmt.Errorf("%w: wallet id %q is already linked", domain.ErrValidation, p.WalletID)
		}
		return nil, fmt.Errorf("register wallet: %w", err)
	}
	return wallet, nil
}

// List returns the user's active wallets.
func (s *WalletService) List(ctx context.Context, userID uuid.UUID) ([]models.ConnectedWallet, error) {
	return s.store.ListByUser(ctx, userID)
}

// Deactivate retires one of the caller's wallets. A wallet belonging to a
// different user reads as not found.
func (s *WalletService) Deactivate(ctx context.Context, userID uuid.UUID, walletID string) error {
	wallet, err := s.store.FindByWalletID(ctx, walletID)
	if err != nil {
		return err
	}
	if wallet.UserID != userID {
		return repository.ErrWalletNotFound
	}
	return s.store.Deactivate(ctx, walletID)
}
