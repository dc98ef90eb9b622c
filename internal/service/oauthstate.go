package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/repository"
)

const defaultStateTTL = 10 * time.Minute

// OAuthStateService issues and redeems the single-use state tokens that bind
// a provider's OAuth callback to the user who started the link.
type OAuthStateService struct {
	store repository.OAuthStateStore
	ttl   time.Duration
	now   func() time.Time
}

// NewOAuthStateService creates the state service. A non-positive ttl falls
// back to the default.
func NewOAuthStateService(store repository.OAuthStateStore, ttl time.Duration) *OAuthStateService {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &OAuthStateService{store: store, ttl: ttl, now: time.Now}
}

// WithClock overrides the wall clock for tests.
func (s *OAuthStateService) WithClock(now func() time.Time) *OAuthStateService {
	s.now = now
	return s
}

// Issue creates a fresh state token for the user/provider pair. Any earlier
// unconsumed token for the same pair is superseded.
func (s *OAuthStateService) Issue(ctx context.Context, userID uuid.UUID, provider domain.Provider, redirectURI string) (*models.OAuthState, error) {
	token, err := newStateToken()
	if err != nil {
		return nil, fmt.Errorf("generate state token: %w", err)
	}
	now := s.now()
	state := &models.OAuthState{
		Token:       token,
		UserID:      userID,
		Provider:    provider,
		RedirectURI: redirectURI,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("store oauth state: %w", err)
	}
	return state, nil
}

// Consume redeems a state token exactly once. Unknown, replayed and expired
// tokens are indistinguishable to the caller.
func (s *OAuthStateService) Consume(ctx context.Context, token string) (*models.OAuthState, error) {
	state, err := s.store.Consume(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrStateNotFound) || errors.Is(err, repository.ErrStateExpired) {
			return nil, fmt.Errorf("%w: invalid or expired state token", domain.ErrAuth)
		}
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}
	return state, nil
}

// SweepExpired removes expired states and reports how many were dropped.
func (s *OAuthStateService) SweepExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpired(ctx, s.now())
}

func newStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
