package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/kwamina/walletbridge/internal/domain"
)

// Mock is a scriptable in-memory gateway for tests. Each stage can be told to
// fail for the next N calls, and captures are idempotent by key the way a
// real provider's are.
type Mock struct {
	Provider domain.Provider

	mu       sync.Mutex
	seq      int
	failures map[string][]error
	calls    map[string]int
	orders   map[string]OrderParams
	captures map[string]CaptureResult // keyed by idempotency key
}

var _ Gateway = (*Mock)(nil)

// NewMock creates a mock gateway answering for the given provider.
func NewMock(provider domain.Provider) *Mock {
	return &Mock{
		Provider: provider,
		failures: make(map[string][]error),
		calls:    make(map[string]int),
		orders:   make(map[string]OrderParams),
		captures: make(map[string]CaptureResult),
	}
}

// FailNext queues errs to be returned by the named stage, one per call, before
// the stage starts succeeding again. Stage is one of "create_order",
// "authorize", "capture".
func (m *Mock) FailNext(stage string, errs ...error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[stage] = append(m.failures[stage], errs...)
	return m
}

// Unavailable is a convenience for scripting a retryable outage.
func (m *Mock) Unavailable(stage string, times int) *Mock {
	for i := 0; i < times; i++ {
		m.FailNext(stage, newError(m.Provider, stage, KindUnavailable, "scripted outage"))
	}
	return m
}

// Decline is a convenience for scripting a terminal refusal.
func (m *Mock) Decline(stage string) *Mock {
	return m.FailNext(stage, newError(m.Provider, stage, KindDeclined, "scripted decline"))
}

// Calls reports how many times a stage ran, scripted failures included.
func (m *Mock) Calls(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

func (m *Mock) nextFailure(stage string) error {
	m.calls[stage]++
	queue := m.failures[stage]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.failures[stage] = queue[1:]
	return err
}

func (m *Mock) CreateOrder(_ context.Context, p OrderParams) (OrderRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextFailure("create_order"); err != nil {
		return OrderRef{}, err
	}
	m.seq++
	id := fmt.Sprintf("%s-ord-%d", m.Provider, m.seq)
	m.orders[id] = p
	return OrderRef{Provider: m.Provider, ID: id}, nil
}

func (m *Mock) AuthorizePayment(_ context.Context, ref OrderRef, _ AuthorizeParams) (AuthorizationRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.nextFailure("authorize"); err != nil {
		return AuthorizationRef{}, err
	}
	if _, ok := m.orders[ref.ID]; !ok {
		return AuthorizationRef{}, newError(m.Provider, "authorize", KindInvalidParams, "unknown order "+ref.ID)
	}
	return AuthorizationRef{Provider: m.Provider, ID: "auth-" + ref.ID, OrderID: ref.ID}, nil
}

func (m *Mock) PaymentCapture(_ context.Context, ref AuthorizationRef, p CaptureParams) (CaptureResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A replayed idempotency key returns the original result without running
	// the stage again.
	if res, ok := m.captures[p.IdempotencyKey]; ok && p.IdempotencyKey != "" {
		return res, nil
	}

	if err := m.nextFailure("capture"); err != nil {
		return CaptureResult{}, err
	}
	params, ok := m.orders[ref.OrderID]
	if !ok {
		return CaptureResult{}, newError(m.Provider, "capture", KindInvalidParams, "unknown order "+ref.OrderID)
	}
	m.seq++
	res := CaptureResult{
		Provider:     m.Provider,
		CaptureID:    fmt.Sprintf("%s-cap-%d", m.Provider, m.seq),
		AmountMicros: params.AmountMicros,
		Currency:     params.Currency,
	}
	if p.IdempotencyKey != "" {
		m.captures[p.IdempotencyKey] = res
	}
	return res, nil
}
