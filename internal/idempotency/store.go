// Package idempotency backs the Idempotency-Key HTTP middleware with a
// durable record of served responses. Postgres is the source of truth; Redis
// is a read-through cache for finalized records.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
)

const redisKeyPrefix = "idempotency"

// Record is one reserved or finalized idempotent request.
type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	ContentType string
	InProgress  bool
	ServedBy    string
}

// Backend is the durable store behind the cache.
type Backend interface {
	// Get returns the record for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)
	// Reserve claims key for the caller. Returns false when the key already
	// exists.
	Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error)
	// Finalize stores the response on a reserved key and marks it complete.
	Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error)
}

// Store combines the durable backend with an optional Redis cache.
type Store struct {
	redis   redis.Cmdable
	backend Backend
	ttl     time.Duration
}

func NewStore(redisClient redis.Cmdable, backend Backend, ttl time.Duration) *Store {
	return &Store{redis: redisClient, backend: backend, ttl: ttl}
}

type cacheEnvelope struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// Lookup returns the finalized record for key, validating the request hash.
// ErrInProgress means a concurrent request holds the key.
func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, redisKey(key)).Result()
		if err == nil {
			var env cacheEnvelope
			if json.Unmarshal([]byte(val), &env) == nil {
				if env.Hash != requestHash {
					return nil, ErrHashMismatch
				}
				return &Record{
					Key:         env.Key,
					RequestHash: env.Hash,
					Status:      env.Status,
					Body:        env.Body,
					ContentType: env.ContentType,
					ServedBy:    "redis",
				}, nil
			}
		} else if err != redis.Nil {
			zap.L().Warn("redis idempotency lookup failed", zap.Error(err))
		}
	}

	rec, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.RequestHash != requestHash {
		return nil, ErrHashMismatch
	}
	if rec.InProgress {
		return nil, ErrInProgress
	}
	rec.ServedBy = "backend"
	s.cache(ctx, *rec)
	return rec, nil
}

// Reserve claims key for this request.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	return s.backend.Reserve(ctx, key, requestHash, method, path)
}

// Finalize stores the served response and caches it.
func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	rec, err := s.backend.Finalize(ctx, key, requestHash, status, body, contentType)
	if err != nil {
		return nil, err
	}
	s.cache(ctx, *rec)
	return rec, nil
}

// WaitForCompletion polls until a concurrent holder of key finalizes it.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, ErrInProgress) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				continue
			}
		}
		return nil, err
	}
}

func (s *Store) cache(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	env := cacheEnvelope{
		Key:         rec.Key,
		Hash:        rec.RequestHash,
		Status:      rec.Status,
		Body:        rec.Body,
		ContentType: rec.ContentType,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		zap.L().Warn("marshal idempotency cache", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, redisKey(rec.Key), payload, s.ttl).Err(); err != nil {
		zap.L().Warn("redis idempotency cache set failed", zap.Error(err))
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, key)
}
