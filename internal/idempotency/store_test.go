package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	return NewStore(nil, NewMemoryBackend(), time.Hour)
}

func TestReserveAndFinalize(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	reserved, err := store.Reserve(ctx, "key-1", "hash-1", "POST", "/v1/transfers")
	require.NoError(t, err)
	require.True(t, reserved)

	// A second reservation of the same key loses.
	reserved, err = store.Reserve(ctx, "key-1", "hash-1", "POST", "/v1/transfers")
	require.NoError(t, err)
	assert.False(t, reserved)

	// Before finalization the key reads as in progress.
	_, err = store.Lookup(ctx, "key-1", "hash-1")
	assert.ErrorIs(t, err, ErrInProgress)

	rec, err := store.Finalize(ctx, "key-1", "hash-1", 201, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	rec, err = store.Lookup(ctx, "key-1", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.Equal(t, []byte(`{"ok":true}`), rec.Body)
	assert.Equal(t, "backend", rec.ServedBy)
}

func TestLookupHashMismatch(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.Reserve(ctx, "key-2", "hash-a", "POST", "/v1/transfers")
	require.NoError(t, err)
	_, err = store.Finalize(ctx, "key-2", "hash-a", 200, nil, "application/json")
	require.NoError(t, err)

	_, err = store.Lookup(ctx, "key-2", "hash-b")
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestLookupUnknownKey(t *testing.T) {
	store := newTestStore()
	_, err := store.Lookup(context.Background(), "missing", "hash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWaitForCompletion(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	_, err := store.Reserve(ctx, "key-3", "hash-3", "POST", "/v1/transfers")
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = store.Finalize(ctx, "key-3", "hash-3", 200, []byte("done"), "text/plain")
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rec, err := store.WaitForCompletion(waitCtx, "key-3", "hash-3")
	require.NoError(t, err)
	assert.Equal(t, []byte("done"), rec.Body)
}

func TestFinalizeUnreservedKey(t *testing.T) {
	store := newTestStore()
	_, err := store.Finalize(context.Background(), "never-reserved", "hash", 200, nil, "application/json")
	assert.ErrorIs(t, err, ErrNotFound)
}
