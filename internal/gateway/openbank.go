package gateway

import "github.com/kwamina/walletbridge/internal/domain"

type openBankTransferRequest struct {
	AccountToken       string `json:"account_token"`
	DestinationAccount string `json:"destination_account"`
	AmountMicros       int64  `json:"amount_micros"`
	Currency           string `json:"currency"`
	Memo               string `json:"memo,omitempty"`
}

// NewOpenBank builds the open-banking gateway. The rail has a single
// bank-transfer call, so the collapsed-stage adapter fronts it.
func NewOpenBank(baseURL, apiToken string) Gateway {
	return &singleShot{
		provider:  domain.ProviderOpenBank,
		transport: NewTransport(domain.ProviderOpenBank, baseURL, BearerAuth(apiToken)),
		path:      "/v1/bank-transfers",
		pending:   make(map[string]OrderParams),
		build: func(p OrderParams) any {
			return openBankTransferRequest{
				AccountToken:       p.Source.Credentials.AccessToken,
				DestinationAccount: p.DestinationWalletID,
				AmountMicros:       p.AmountMicros,
				Currency:           p.Currency,
				Memo:               p.Description,
			}
		},
	}
}
