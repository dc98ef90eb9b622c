package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeMode selects how the platform fee is computed.
type FeeMode string

const (
	// FeeModeFlat charges a fixed amount per transfer.
	FeeModeFlat FeeMode = "flat"
	// FeeModePercent charges a percentage of the transfer amount.
	FeeModePercent FeeMode = "percent"
)

// FeePolicy is the single configuration point for the platform fee.
// The fee is always deducted from the destination: the source is debited the
// full amount and the destination is credited amount minus fee.
type FeePolicy struct {
	Mode       FeeMode
	FlatMicros int64
	Percent    decimal.Decimal // e.g. 1.5 means 1.5%
}

// NewFlatFeePolicy charges a fixed number of micros per transfer.
func NewFlatFeePolicy(micros int64) FeePolicy {
	return FeePolicy{Mode: FeeModeFlat, FlatMicros: micros}
}

// NewPercentFeePolicy charges percent of the transfer amount, rounded down.
func NewPercentFeePolicy(percent decimal.Decimal) FeePolicy {
	return FeePolicy{Mode: FeeModePercent, Percent: percent}
}

// Validate rejects policies that could produce negative or confiscatory fees.
func (p FeePolicy) Validate() error {
	switch p.Mode {
	case FeeModeFlat:
		if p.FlatMicros < 0 {
			return fmt.Errorf("%w: flat fee must not be negative", ErrValidation)
		}
	case FeeModePercent:
		if p.Percent.IsNegative() || p.Percent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percent fee must be in [0, 100)", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown fee mode %q", ErrValidation, p.Mode)
	}
	return nil
}

// FeeFor computes the fee in micros for a transfer amount. Computed exactly
// once when a Transaction is created and never recomputed mid-flight.
func (p FeePolicy) FeeFor(amountMicros int64) int64 {
	switch p.Mode {
	case FeeModePercent:
		rate := p.Percent.Div(decimal.NewFromInt(100))
		return Money{Amount: amountMicros}.Multiply(rate).Amount
	default:
		return p.FlatMicros
	}
}
