package main

import (
	"context"
	"testing"
	"time"

	"masterhand/internal/config"
	"masterhand/internal/models"
	"masterhand/internal/notify"
	"masterhand/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, defaultConfigPath, resolveConfigPath(""))

	t.Setenv("CONFIG_PATH", "/etc/masterhand.yaml")
	assert.Equal(t, "/etc/masterhand.yaml", resolveConfigPath(""))
	assert.Equal(t, "local.yaml", resolveConfigPath("local.yaml"))
}

func TestInitKeyStore(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()

	t.Run("NoAddressUsesMemory", func(t *testing.T) {
		keys, client := initKeyStore(ctx, config.RedisConfig{}, &logger)
		assert.Nil(t, client)
		assert.IsType(t, &repository.MemoryKeyStore{}, keys)
	})

	t.Run("RedisWithFailover", func(t *testing.T) {
		mr := miniredis.RunT(t)
		keys, client := initKeyStore(ctx, config.RedisConfig{Address: mr.Addr()}, &logger)
		require.NotNil(t, client)
		defer repository.Close(client)
		assert.IsType(t, &repository.FailoverKeyStore{}, keys)

		ok, err := keys.Acquire(ctx, "cancel:1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, mr.Exists(keyPrefix+":cancel:1"))
	})
}

func TestInitPayments(t *testing.T) {
	logger := zerolog.Nop()
	registry, signer := initPayments(config.GatewayConfig{BaseURL: "http://gw", HMACSecret: "s"}, &logger)

	assert.ElementsMatch(t, []string{models.MethodCard, models.MethodWallet, models.MethodCash}, registry.Methods())
	assert.True(t, signer.Enabled())
}

func TestInitDelivererWithoutToken(t *testing.T) {
	logger := zerolog.Nop()
	assert.IsType(t, &notify.LogNotifier{}, initDeliverer(config.TelegramConfig{}, &logger))
}
