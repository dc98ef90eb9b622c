package gateway

import "github.com/kwamina/walletbridge/internal/domain"

type altWalletChargeRequest struct {
	WalletToken  string `json:"wallet_token"`
	TargetWallet string `json:"target_wallet"`
	AmountMicros int64  `json:"amount_micros"`
	Currency     string `json:"currency"`
	Label        string `json:"label,omitempty"`
}

// NewAltWallet builds the alternative-wallet gateway, another single-call
// charge API behind the collapsed-stage adapter.
func NewAltWallet(baseURL, apiToken string) Gateway {
	return &singleShot{
		provider:  domain.ProviderAltWallet,
		transport: NewTransport(domain.ProviderAltWallet, baseURL, BearerAuth(apiToken)),
		path:      "/wallet/charges",
		pending:   make(map[string]OrderParams),
		build: func(p OrderParams) any {
			return altWalletChargeRequest{
				WalletToken:  p.Source.Credentials.AccessToken,
				TargetWallet: p.DestinationWalletID,
				AmountMicros: p.AmountMicros,
				Currency:     p.Currency,
				Label:        p.Description,
			}
		},
	}
}
