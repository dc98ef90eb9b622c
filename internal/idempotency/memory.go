package idempotency

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend for unit tests.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]*Record
}

var _ Backend = (*MemoryBackend)(nil)

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*Record)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (b *MemoryBackend) Reserve(_ context.Context, key, requestHash, _, _ string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.records[key]; ok {
		return false, nil
	}
	b.records[key] = &Record{Key: key, RequestHash: requestHash, InProgress: true}
	return true, nil
}

func (b *MemoryBackend) Finalize(_ context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[key]
	if !ok || rec.RequestHash != requestHash {
		return nil, ErrNotFound
	}
	rec.Status = status
	rec.Body = append([]byte(nil), body...)
	rec.ContentType = contentType
	rec.InProgress = false
	c := *rec
	c.ServedBy = "backend"
	return &c, nil
}
