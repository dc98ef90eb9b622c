package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kwamina/walletbridge/internal/domain"
	"github.com/kwamina/walletbridge/internal/gateway"
	"github.com/kwamina/walletbridge/internal/models"
	"github.com/kwamina/walletbridge/internal/observability"
	"github.com/kwamina/walletbridge/internal/repository"
)

var (
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrTransferNotPending  = errors.New("transfer is no longer pending")
	ErrSameWalletTransfer  = errors.New("source and destination wallets are the same")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 200 * time.Millisecond
)

// TransferConfig tunes the orchestrator.
type TransferConfig struct {
	Fees            domain.FeePolicy
	BridgeEwalletID string
	RetryAttempts   int
	RetryBackoff    time.Duration
}

// TransferService orchestrates funds movement across providers. Same-provider
// transfers run one leg on the source rail; cross-provider transfers collect
// into the platform ewallet and pay out over the settlement rail.
type TransferService struct {
	store    repository.Store
	gateways *gateway.Registry
	cfg      TransferConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewTransferService(store repository.Store, gateways *gateway.Registry, cfg TransferConfig) *TransferService {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	return &TransferService{
		store:    store,
		gateways: gateways,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// WithSleep overrides the retry backoff sleeper. Test hook only.
func (s *TransferService) WithSleep(fn func(ctx context.Context, d time.Duration) error) *TransferService {
	s.sleep = fn
	return s
}

// CreateTransferRequest is the client's transfer intent.
type CreateTransferRequest struct {
	UserID         uuid.UUID
	SourceWalletID string
	DestWalletID   string
	AmountMicros   int64
	Currency       string
	Description    string
	ClientKey      string
}

// CreateTransfer validates, records and executes a transfer. The returned
// transaction reflects the final state of this attempt, including FAILED:
// provider refusals are an outcome, not an API error. A replayed client key
// returns the original transaction; if the original was left non-terminal by
// a crash it is driven to completion first.
func (s *TransferService) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*models.Transaction, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	source, err := s.store.FindByWalletID(ctx, req.SourceWalletID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, fmt.Errorf("%w: source wallet %q is not linked", domain.ErrValidation, req.SourceWalletID)
		}
		return nil, fmt.Errorf("resolve source wallet: %w", err)
	}
	if source.UserID != req.UserID {
		return nil, fmt.Errorf("%w: source wallet does not belong to caller", domain.ErrAuth)
	}

	dest, err := s.store.FindByWalletID(ctx, req.DestWalletID)
	if err != nil {
		if errors.Is(err, repository.ErrWalletNotFound) {
			return nil, fmt.Errorf("%w: destination wallet %q is not linked", domain.ErrValidation, req.DestWalletID)
		}
		return nil, fmt.Errorf("resolve destination wallet: %w", err)
	}

	transferType := domain.TransferTypeInternal
	if source.Provider != dest.Provider {
		transferType = domain.TransferTypeBridge
	}

	// The fee is computed exactly once, at creation; a replay never reprices.
	fee := s.cfg.Fees.FeeFor(req.AmountMicros)
	if req.AmountMicros <= fee {
		return nil, fmt.Errorf("%w: amount %d micros does not cover the %d micros fee",
			domain.ErrValidation, req.AmountMicros, fee)
	}

	tx := &models.Transaction{
		ID:             uuid.New(),
		UserID:         req.UserID,
		SourceWalletID: source.WalletID,
		DestWalletID:   dest.WalletID,
		AmountMicros:   req.AmountMicros,
		FeeMicros:      fee,
		Currency:       req.Currency,
		Type:           transferType,
		Status:         domain.TxStatusPending,
		Description:    req.Description,
		ClientKey:      req.ClientKey,
	}

	stored, created, err := s.store.Create(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}
	if !created {
		if !sameTransferPayload(stored, tx) {
			return nil, fmt.Errorf("%w: client key %q was used with a different payload", domain.ErrDuplicateRequest, req.ClientKey)
		}
		if stored.Terminal() {
			zap.L().Info("transfer replayed by client key",
				zap.String("transaction_id", stored.ID.String()),
				zap.String("client_key", req.ClientKey))
			return stored, nil
		}
		// A non-terminal replay means an earlier attempt died mid-flight.
		// The per-stage idempotency keys make re-driving the legs safe.
		zap.L().Info("resuming interrupted transfer",
			zap.String("transaction_id", stored.ID.String()),
			zap.String("status", stored.Status))
		return s.resume(ctx, stored, source, dest)
	}

	return s.execute(ctx, stored, source, dest)
}

func (s *TransferService) validate(req CreateTransferRequest) error {
	if req.AmountMicros <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if req.SourceWalletID == "" || req.DestWalletID == "" {
		return fmt.Errorf("%w: source and destination wallets are required", domain.ErrValidation)
	}
	if req.SourceWalletID == req.DestWalletID {
		return fmt.Errorf("%w: %s", domain.ErrValidation, ErrSameWalletTransfer)
	}
	if !isValidCurrency(req.Currency) {
		return fmt.Errorf("%w: %s %q", domain.ErrValidation, ErrUnsupportedCurrency, req.Currency)
	}
	return nil
}

func sameTransferPayload(existing, incoming *models.Transaction) bool {
	return existing.SourceWalletID == incoming.SourceWalletID &&
		existing.DestWalletID == incoming.DestWalletID &&
		existing.AmountMicros == incoming.AmountMicros &&
		existing.Currency == incoming.Currency
}

// execute runs the provider legs. The transaction is PENDING on entry and
// terminal on exit.
func (s *TransferService) execute(ctx context.Context, tx *models.Transaction, source, dest *models.ConnectedWallet) (*models.Transaction, error) {
	// The first external call is about to happen; a concurrent cancel wins
	// only before this point.
	if err := s.store.UpdateStatus(ctx, tx.ID, domain.TxStatusPending, domain.TxStatusProcessing); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return s.store.Get(ctx, tx.ID)
		}
		return nil, fmt.Errorf("mark transfer processing: %w", err)
	}
	tx.Status = domain.TxStatusProcessing

	switch tx.Type {
	case domain.TransferTypeBridge:
		return s.executeBridge(ctx, tx, source, dest)
	default:
		return s.executeInternal(ctx, tx, source, dest)
	}
}

// resume picks up a transfer a previous attempt left non-terminal. Legs are
// rebuilt from scratch; the deterministic stage keys guarantee the providers
// replay their recorded results instead of moving funds twice.
func (s *TransferService) resume(ctx context.Context, tx *models.Transaction, source, dest *models.ConnectedWallet) (*models.Transaction, error) {
	if tx.Status == domain.TxStatusPending {
		return s.execute(ctx, tx, source, dest)
	}
	tx.Legs = nil
	switch tx.Type {
	case domain.TransferTypeBridge:
		return s.executeBridge(ctx, tx, source, dest)
	default:
		return s.executeInternal(ctx, tx, source, dest)
	}
}

// executeInternal runs a single leg on the source provider's rail. The
// destination receives the net amount; the fee is the platform's margin.
func (s *TransferService) executeInternal(ctx context.Context, tx *models.Transaction, source, dest *models.ConnectedWallet) (*models.Transaction, error) {
	g, err := s.gateways.Lookup(source.Provider)
	if err != nil {
		return s.markFailed(ctx, tx, err)
	}

	leg, err := s.runLeg(ctx, g, tx, domain.LegCollect, gateway.OrderParams{
		Kind:                gateway.OrderKindCharge,
		AmountMicros:        tx.NetMicros(),
		Currency:            tx.Currency,
		Source:              *source,
		DestinationWalletID: dest.WalletID,
		Description:         tx.Description,
	})
	if err != nil {
		return s.markFailed(ctx, tx, err)
	}
	tx.Legs = append(tx.Legs, leg)

	return s.markCompleted(ctx, tx)
}

// executeBridge collects the full amount from the source rail into the
// platform ewallet, then pays out the net amount over the settlement rail.
// The payout leg never starts before the collect leg has terminally
// succeeded.
func (s *TransferService) executeBridge(ctx context.Context, tx *models.Transaction, source, dest *models.ConnectedWallet) (*models.Transaction, error) {
	sourceGw, err := s.gateways.Lookup(source.Provider)
	if err != nil {
		return s.markFailed(ctx, tx, err)
	}
	bridgeGw, err := s.gateways.Lookup(domain.ProviderBridgeRail)
	if err != nil {
		return s.markFailed(ctx, tx, err)
	}

	collect, err := s.runLeg(ctx, sourceGw, tx, domain.LegCollect, gateway.OrderParams{
		Kind:                gateway.OrderKindCollect,
		AmountMicros:        tx.AmountMicros,
		Currency:            tx.Currency,
		Source:              *source,
		DestinationWalletID: s.cfg.BridgeEwalletID,
		Description:         tx.Description,
	})
	if err != nil {
		// Nothing moved; a plain failure, no reconciliation needed.
		return s.markFailed(ctx, tx, err)
	}
	tx.Legs = append(tx.Legs, collect)
	if err := s.store.SaveProgress(ctx, tx); err != nil {
		zap.L().Error("save collect leg progress failed",
			zap.Error(err), zap.String("transaction_id", tx.ID.String()))
	}

	payout, err := s.runLeg(ctx, bridgeGw, tx, domain.LegPayout, gateway.OrderParams{
		Kind:                gateway.OrderKindPayout,
		AmountMicros:        tx.NetMicros(),
		Currency:            tx.Currency,
		DestinationWalletID: dest.WalletID,
		Description:         tx.Description,
	})
	if err != nil {
		// Funds sit in the platform ewallet with no payout. This is the one
		// state that cannot self-heal.
		tx.ReconcileRequired = true
		tx.ReconcileReason = fmt.Sprintf("collect succeeded, payout failed: %v", err)
		observability.IncReconcileFlagged("payout_failed")
		zap.L().Error("bridge payout failed after successful collect",
			zap.Error(err),
			zap.String("transaction_id", tx.ID.String()),
			zap.String("collect_capture_id", collect.Refs.CaptureID))
		return s.markFailed(ctx, tx, err)
	}
	tx.Legs = append(tx.Legs, payout)

	return s.markCompleted(ctx, tx)
}

// runLeg drives one leg through the three provider stages. Each stage carries
// its own idempotency key so a retried stage cannot double-execute.
func (s *TransferService) runLeg(ctx context.Context, g gateway.Gateway, tx *models.Transaction, legNo int, params gateway.OrderParams) (models.TransferLeg, error) {
	leg := models.TransferLeg{
		Number:   legNo,
		Provider: params.Source.Provider,
		Amount:   params.AmountMicros,
	}
	if legNo == domain.LegPayout {
		leg.Provider = domain.ProviderBridgeRail
	}

	stageKey := func(stage string) string {
		return fmt.Sprintf("%s:leg%d:%s", tx.ID, legNo, stage)
	}

	var ref gateway.OrderRef
	err := s.withRetry(ctx, func() error {
		var err error
		params.IdempotencyKey = stageKey("create_order")
		ref, err = g.CreateOrder(ctx, params)
		return err
	})
	if err != nil {
		return leg, err
	}
	leg.Refs.OrderID = ref.ID

	var auth gateway.AuthorizationRef
	err = s.withRetry(ctx, func() error {
		var err error
		auth, err = g.AuthorizePayment(ctx, ref, gateway.AuthorizeParams{IdempotencyKey: stageKey("authorize")})
		return err
	})
	if err != nil {
		return leg, err
	}
	leg.Refs.AuthorizationID = auth.ID

	var captured gateway.CaptureResult
	err = s.withRetry(ctx, func() error {
		var err error
		captured, err = g.PaymentCapture(ctx, auth, gateway.CaptureParams{IdempotencyKey: stageKey("capture")})
		return err
	})
	if err != nil {
		return leg, err
	}
	leg.Refs.CaptureID = captured.CaptureID

	if captured.AmountMicros != params.AmountMicros {
		// The movement happened but not for the expected amount; flag rather
		// than fail so an operator settles the difference.
		tx.ReconcileRequired = true
		tx.ReconcileReason = fmt.Sprintf("leg %d captured %d micros, expected %d",
			legNo, captured.AmountMicros, params.AmountMicros)
		observability.IncReconcileFlagged("amount_divergence")
		zap.L().Warn("captured amount diverges from order",
			zap.String("transaction_id", tx.ID.String()),
			zap.Int("leg", legNo),
			zap.Int64("captured_micros", captured.AmountMicros),
			zap.Int64("expected_micros", params.AmountMicros))
	}
	return leg, nil
}

// withRetry retries fn on retryable provider faults with linear backoff.
// Declines and validation failures surface immediately.
func (s *TransferService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			return err
		}
		if attempt == s.cfg.RetryAttempts {
			break
		}
		if sleepErr := s.sleep(ctx, s.cfg.RetryBackoff*time.Duration(attempt)); sleepErr != nil {
			return sleepErr
		}
	}
	return err
}

func (s *TransferService) markCompleted(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if err := s.store.UpdateStatus(ctx, tx.ID, domain.TxStatusProcessing, domain.TxStatusCompleted); err != nil {
		return nil, fmt.Errorf("mark transfer completed: %w", err)
	}
	tx.Status = domain.TxStatusCompleted
	if err := s.store.SaveProgress(ctx, tx); err != nil {
		return nil, fmt.Errorf("save transfer progress: %w", err)
	}
	observability.IncTransferOutcome(tx.Type, tx.Status)
	zap.L().Info("transfer completed",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("type", tx.Type),
		zap.String("amount", domain.NewMoney(tx.AmountMicros, tx.Currency).String()),
		zap.Int64("fee_micros", tx.FeeMicros))
	return tx, nil
}

// markFailed records the failure classification and finalizes the
// transaction. The cause is returned to the caller on the transaction, not
// as an error: the transfer ran to a terminal outcome.
func (s *TransferService) markFailed(ctx context.Context, tx *models.Transaction, cause error) (*models.Transaction, error) {
	tx.FailureKind = domain.FailureKindOf(cause)
	if err := s.store.UpdateStatus(ctx, tx.ID, tx.Status, domain.TxStatusFailed); err != nil {
		return nil, fmt.Errorf("mark transfer failed: %w", err)
	}
	tx.Status = domain.TxStatusFailed
	if err := s.store.SaveProgress(ctx, tx); err != nil {
		return nil, fmt.Errorf("save transfer progress: %w", err)
	}
	observability.IncTransferOutcome(tx.Type, tx.Status)
	zap.L().Warn("transfer failed",
		zap.Error(cause),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("failure_kind", string(tx.FailureKind)),
		zap.Bool("reconcile_required", tx.ReconcileRequired))
	return tx, nil
}

// Get returns one of the caller's transfers. Foreign transfers read as not
// found.
func (s *TransferService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTransferNotFound
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	if tx.UserID != userID {
		return nil, ErrTransferNotFound
	}
	return tx, nil
}

// Cancel aborts a transfer that has not yet touched a provider.
func (s *TransferService) Cancel(ctx context.Context, userID, id uuid.UUID) (*models.Transaction, error) {
	tx, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(tx.Status, domain.TxStatusCancelled) {
		return nil, fmt.Errorf("%w: %s (status %s)", domain.ErrValidation, ErrTransferNotPending, tx.Status)
	}
	if err := s.store.UpdateStatus(ctx, id, domain.TxStatusPending, domain.TxStatusCancelled); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: %s (status %s)", domain.ErrValidation, ErrTransferNotPending, tx.Status)
		}
		return nil, fmt.Errorf("cancel transfer: %w", err)
	}
	tx.Status = domain.TxStatusCancelled
	observability.IncTransferOutcome(tx.Type, tx.Status)
	return tx, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
