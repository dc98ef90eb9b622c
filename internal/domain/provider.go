package domain

import (
	"fmt"
	"strings"
)

// Provider identifies an external payment/wallet rail.
type Provider string

const (
	// ProviderOpenBank is the ACH / open-banking transfer network.
	ProviderOpenBank Provider = "openbank"
	// ProviderPeerPay is the P2P / card network.
	ProviderPeerPay Provider = "peerpay"
	// ProviderBridgeRail is the settlement intermediary used to bridge
	// transfers between otherwise incompatible providers.
	ProviderBridgeRail Provider = "bridgerail"
	// ProviderPOSLink is the point-of-sale processor.
	ProviderPOSLink Provider = "poslink"
	// ProviderAltWallet is the alternate wallet provider.
	ProviderAltWallet Provider = "altwallet"
)

// Providers lists every supported rail.
var Providers = []Provider{
	ProviderOpenBank,
	ProviderPeerPay,
	ProviderBridgeRail,
	ProviderPOSLink,
	ProviderAltWallet,
}

// ParseProvider validates a raw provider string.
func ParseProvider(raw string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unknown provider %q", ErrValidation, raw)
}

func (p Provider) String() string {
	return string(p)
}
