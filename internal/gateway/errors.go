package gateway

import (
	"fmt"

	"github.com/kwamina/walletbridge/internal/domain"
)

// Kind classifies a gateway failure. The orchestrator only ever branches on
// the kind, never on provider-specific codes.
type Kind string

const (
	// KindInvalidParams means the request was malformed or referenced an
	// unknown wallet. Not retryable.
	KindInvalidParams Kind = "invalid_params"
	// KindAuth means the stored credential was rejected by the provider.
	KindAuth Kind = "auth"
	// KindDeclined means the provider refused the movement (insufficient
	// funds, blocked wallet, limits). Not retryable.
	KindDeclined Kind = "declined"
	// KindUnavailable means a timeout, network fault or provider outage.
	// Retryable.
	KindUnavailable Kind = "unavailable"
)

// Error is the normalized failure shape for every provider variant.
type Error struct {
	Kind     Kind
	Provider domain.Provider
	Op       string
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("gateway %s: %s %s", e.Provider, e.Op, e.Kind)
	}
	return fmt.Sprintf("gateway %s: %s %s: %s", e.Provider, e.Op, e.Kind, e.Detail)
}

// Unwrap maps the kind onto the shared failure taxonomy so callers can use
// errors.Is against the domain sentinels.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindDeclined:
		return domain.ErrProviderDeclined
	case KindUnavailable:
		return domain.ErrProviderUnavailable
	case KindAuth:
		return domain.ErrAuth
	default:
		return domain.ErrValidation
	}
}

func newError(p domain.Provider, op string, kind Kind, detail string) *Error {
	return &Error{Kind: kind, Provider: p, Op: op, Detail: detail}
}
