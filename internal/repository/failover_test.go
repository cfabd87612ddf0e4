package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockKeyStore struct {
	mock.Mock
}

func (m *mockKeyStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockKeyStore) Release(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockKeyStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverKeyStore(t *testing.T) {
	primary := new(mockKeyStore)
	fallback := NewMemoryKeyStore()
	logger := zerolog.New(io.Discard)
	store := NewFailoverKeyStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Acquire", ctx, "cancel:1", time.Minute).Return(true, nil).Once()

		ok, err := store.Acquire(ctx, "cancel:1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailureUsesFallback", func(t *testing.T) {
		primary.On("Acquire", ctx, "cancel:2", time.Minute).Return(false, errors.New("connection refused")).Once()

		ok, err := store.Acquire(ctx, "cancel:2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, store.isDown.Load())

		// primary is not consulted while down
		ok, err = store.Acquire(ctx, "cancel:2", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
		primary.AssertExpectations(t)
	})

	t.Run("RecoversAfterInterval", func(t *testing.T) {
		store.lastCheck.Store(time.Now().Add(-2 * recheckInterval).UnixNano())
		primary.On("CheckRateLimit", ctx, "c", 5, time.Second).Return(true, nil).Once()

		allowed, err := store.CheckRateLimit(ctx, "c", 5, time.Second)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, store.isDown.Load())
	})

	t.Run("ReleaseClearsBoth", func(t *testing.T) {
		primary.On("Release", ctx, "cancel:2").Return(nil).Once()
		require.NoError(t, store.Release(ctx, "cancel:2"))

		ok, _ := fallback.Acquire(ctx, "cancel:2", time.Minute)
		assert.True(t, ok)
		primary.AssertExpectations(t)
	})
}
