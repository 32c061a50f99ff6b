// internal/signaling/backend/backend_test.go
package backend

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/gamehub/internal/config"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/jason-s-yu/gamehub/internal/signaling/redisstore"
	"github.com/jason-s-yu/gamehub/internal/signaling/wsstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	logger := logrus.New()
	ctx := context.Background()

	s, closeFn, err := Open(ctx, &config.Config{SignalBackend: config.BackendMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &signaling.MemoryStore{}, s)
	assert.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	s, closeFn, err = Open(ctx, &config.Config{SignalBackend: config.BackendRedis, RedisAddr: mr.Addr()}, logger)
	require.NoError(t, err)
	assert.IsType(t, &redisstore.Store{}, s)
	assert.NoError(t, closeFn())

	s, _, err = Open(ctx, &config.Config{SignalBackend: config.BackendRelay, RelayURL: "http://localhost:9"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &wsstore.Client{}, s)

	_, _, err = Open(ctx, &config.Config{SignalBackend: "etcd"}, logger)
	assert.Error(t, err)
}
