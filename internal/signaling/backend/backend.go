// internal/signaling/backend/backend.go
package backend

import (
	"context"
	"fmt"

	"github.com/jason-s-yu/gamehub/internal/config"
	"github.com/jason-s-yu/gamehub/internal/signaling"
	"github.com/jason-s-yu/gamehub/internal/signaling/pgstore"
	"github.com/jason-s-yu/gamehub/internal/signaling/redisstore"
	"github.com/jason-s-yu/gamehub/internal/signaling/wsstore"
	"github.com/sirupsen/logrus"
)

// Open returns the configured store and a function releasing its resources.
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (signaling.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.SignalBackend {
	case config.BackendMemory:
		return signaling.NewMemoryStore(), noop, nil
	case config.BackendRedis:
		s, err := redisstore.Connect(ctx, redisstore.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
			TTL:  cfg.SignalTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendPostgres:
		s, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendRelay:
		c, err := wsstore.New(cfg.RelayURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown signaling backend %q", cfg.SignalBackend)
}
