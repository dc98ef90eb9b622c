package domain

// Transaction statuses. Transitions are monotonic; see service/transaction_state.go.
const (
	TxStatusPending    = "PENDING"
	TxStatusProcessing = "PROCESSING"
	TxStatusCompleted  = "COMPLETED"
	TxStatusFailed     = "FAILED"
	TxStatusCancelled  = "CANCELLED"
)

// Transfer types.
const (
	// TransferTypeInternal moves funds between two wallets on the same provider.
	TransferTypeInternal = "internal"
	// TransferTypeBridge moves funds across providers via the settlement rail.
	TransferTypeBridge = "bridge"
)

// Leg numbers for cross-provider transfers.
const (
	LegCollect = 1
	LegPayout  = 2
)
