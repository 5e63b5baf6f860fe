// Package app wires the messaging core together and owns the process
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chabrush/internal/sweeper"
	"chabrush/pkg/api"
	"chabrush/pkg/auth"
	"chabrush/pkg/config"
	"chabrush/pkg/delivery"
	"chabrush/pkg/groups"
	"chabrush/pkg/identity"
	"chabrush/pkg/logger"
	"chabrush/pkg/security"
	"chabrush/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg *config.Config
	hub *delivery.Hub
	dir identity.Directory
	srv *http.Server
}

// New provisions the encryption key, opens the store and builds the shared
// collaborators. It does not listen; call Run to start and block.
func New(cfg *config.Config) (*App, error) {
	if cfg.Security.KeyHex != "" {
		if err := security.SetKeyHex(cfg.Security.KeyHex); err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
	} else if err := security.LoadOrCreateKeyFile(cfg.Security.KeyFile); err != nil {
		return nil, fmt.Errorf("provision encryption key: %w", err)
	}
	if !security.Enabled() {
		return nil, errors.New("encryption key not configured")
	}

	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.Storage.DBPath, err)
	}
	store.SetMaxMessageRunes(cfg.Limits.MaxMessageRunes)
	store.SetGroupMembership(groups.IsMember)

	return &App{
		cfg: cfg,
		hub: delivery.NewHub(cfg.Delivery.RoomBuffer),
		dir: identity.NewStoreDirectory(),
	}, nil
}

// Run starts the sweeper and the HTTP server and blocks until ctx is
// canceled or the server fails.
func (a *App) Run(ctx context.Context, addr string) error {
	cancelSweep, err := sweeper.Start(ctx, a.cfg.Calls.SweepCron,
		time.Duration(a.cfg.Calls.RingTimeoutSec)*time.Second, a.hub)
	if err != nil {
		return err
	}
	defer cancelSweep()

	rl := auth.RateLimit{RPS: a.cfg.Security.RateLimit.RPS, Burst: a.cfg.Security.RateLimit.Burst}
	a.srv = &http.Server{
		Addr:         addr,
		Handler:      api.Handler(a.hub, a.dir, rl),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket feed holds the connection open
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shutCtx)
		if err := store.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		_ = store.Close()
		return err
	}
}
