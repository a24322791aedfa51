package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/shadowing-api/internal/config"
	"github.com/jwalitptl/shadowing-api/internal/repository/memory"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
)

func TestOpenStoreMemory(t *testing.T) {
	store, closeFn, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: "memory"}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)
	assert.NoError(t, store.Ping(context.Background()))
	assert.NoError(t, closeFn())
}

func TestOpenBrokerWithoutURL(t *testing.T) {
	broker, closeFn, err := OpenBroker(context.Background(), config.RedisConfig{}, 3, logger.Nop())
	require.NoError(t, err)
	assert.Nil(t, broker, "an unset URL yields a nil interface, not a typed nil")
	assert.NoError(t, closeFn())
}

func TestOpenBrokerRejectsBadURL(t *testing.T) {
	_, _, err := OpenBroker(context.Background(), config.RedisConfig{URL: "not a url"}, 1, logger.Nop())
	assert.Error(t, err)
}

func TestConnectRetries(t *testing.T) {
	calls := 0
	err := connect(context.Background(), logger.Nop(), "test", 3, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = connect(context.Background(), logger.Nop(), "test", 2, func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.ErrorContains(t, err, "down")
	assert.Equal(t, 2, calls)
}
