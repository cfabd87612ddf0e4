package repository

import (
	"context"
	"sync/atomic"
	"time"

	"masterhand/internal/domain"

	"github.com/rs/zerolog"
)

const recheckInterval = time.Minute

// FailoverKeyStore uses the primary store until it errors, then serves from the
// fallback and retries the primary once a minute.
type FailoverKeyStore struct {
	primary   domain.KeyStore
	fallback  domain.KeyStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverKeyStore(primary, fallback domain.KeyStore, logger *zerolog.Logger) *FailoverKeyStore {
	return &FailoverKeyStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverKeyStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recheckInterval
}

func (r *FailoverKeyStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary key store failed, falling back to memory")
	}
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverKeyStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary key store recovered")
	}
}

func (r *FailoverKeyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.Acquire(ctx, key, ttl)
		if err == nil {
			r.markUp()
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.Acquire(ctx, key, ttl)
}

// Release clears the key in both stores; a guard may have been taken by either.
func (r *FailoverKeyStore) Release(ctx context.Context, key string) error {
	if r.usePrimary() {
		if err := r.primary.Release(ctx, key); err != nil {
			r.markDown(err)
		} else {
			r.markUp()
		}
	}
	return r.fallback.Release(ctx, key)
}

func (r *FailoverKeyStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
