// cmd/relay/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/gamehub/internal/auth"
	"github.com/jason-s-yu/gamehub/internal/config"
	"github.com/jason-s-yu/gamehub/internal/relay"
	"github.com/jason-s-yu/gamehub/internal/signaling/backend"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	// the relay cannot store documents in itself
	if cfg.SignalBackend == config.BackendRelay {
		cfg.SignalBackend = config.BackendMemory
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("open %s store: %v", cfg.SignalBackend, err)
	}
	defer closeStore()

	ttl, err := auth.ParseTokenExpireTime(cfg.TokenExpireTime)
	if err != nil {
		logger.Fatalf("TOKEN_EXPIRE_TIME: %v", err)
	}
	var issuer *auth.Issuer
	if cfg.HostPrivateKeyPath != "" && cfg.HostPublicKeyPath != "" {
		issuer, err = auth.NewIssuerFromPath(cfg.HostPrivateKeyPath, cfg.HostPublicKeyPath, ttl)
	} else {
		issuer, err = auth.NewIssuer(ttl)
	}
	if err != nil {
		logger.Fatalf("host token keys: %v", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           relay.NewServer(store, issuer, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
	}()

	logger.WithField("backend", cfg.SignalBackend).Infof("Running on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
}
