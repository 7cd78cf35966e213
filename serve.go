package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/shazow/wifibridge/internal/api"
	"github.com/shazow/wifibridge/internal/bridge"
	wifilog "github.com/shazow/wifibridge/internal/log"
)

var errRemoteClosed = errors.New("remote event stream closed")

// runServe runs the bridge and its API until ctx is done or either fails.
func runServe(ctx context.Context, stderr io.Writer, cfg *Config) error {
	level, err := wifilog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log-level: %w", err)
	}
	logger, ring := wifilog.New(stderr, wifilog.Options{
		Level:   level,
		JSON:    cfg.LogJSON,
		NoColor: os.Getenv("NO_COLOR") != "",
	})

	remote, err := newRemote(cfg, logger.With("component", cfg.Backend))
	if err != nil {
		return fmt.Errorf("failed to start %s backend: %w", cfg.Backend, err)
	}
	defer func() {
		if err := remote.Close(); err != nil {
			logger.Warn("failed to close backend", "error", err)
		}
	}()

	b := bridge.New(cfg.bridgeConfig(remote, logger.With("component", "bridge")))
	srv := api.NewServer(api.Config{
		Bridge: b,
		Logger: logger.With("component", "api"),
		Logs:   ring,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := b.Run(ctx)
		switch {
		case err == nil:
			return errRemoteClosed
		case errors.Is(err, context.Canceled):
			return nil
		}
		return err
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Listen)
	})

	err = g.Wait()
	logger.Info("shutting down", "error", err)
	return err
}
