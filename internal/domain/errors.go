package domain

import "errors"

// Core error taxonomy. Everything surfaced to callers from the orchestration
// layer is one of these kinds; provider-specific error shapes never leak out.
var (
	// ErrValidation covers bad input rejected before any external call.
	ErrValidation = errors.New("validation error")
	// ErrAuth covers expired/invalid OAuth state or invalid stored provider
	// credentials. The caller must re-link the wallet.
	ErrAuth = errors.New("authentication error")
	// ErrProviderDeclined is a non-retryable refusal from a provider.
	ErrProviderDeclined = errors.New("provider declined")
	// ErrProviderUnavailable is a retryable provider failure (timeout, 5xx,
	// rate limit).
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrDuplicateRequest marks a transfer request whose client idempotency
	// key is already bound to a different payload.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrReconciliationRequired marks a cross-provider transaction whose
	// collect leg succeeded but whose payout leg failed irrecoverably.
	ErrReconciliationRequired = errors.New("reconciliation required")
)

// FailureKind is the normalized error kind recorded on a failed Transaction.
type FailureKind string

const (
	FailureNone        FailureKind = ""
	FailureValidation  FailureKind = "validation"
	FailureAuth        FailureKind = "auth"
	FailureDeclined    FailureKind = "declined"
	FailureUnavailable FailureKind = "unavailable"
	FailureInternal    FailureKind = "internal"
)

// FailureKindOf maps a taxonomy error to the kind recorded on the Transaction.
func FailureKindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrValidation):
		return FailureValidation
	case errors.Is(err, ErrAuth):
		return FailureAuth
	case errors.Is(err, ErrProviderDeclined):
		return FailureDeclined
	case errors.Is(err, ErrProviderUnavailable):
		return FailureUnavailable
	default:
		return FailureInternal
	}
}
