//go:build !linux

package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/shazow/wifibridge/wifi"
	"github.com/shazow/wifibridge/wifi/mock"
)

// newRemote only offers the mock on systems without connman or
// NetworkManager.
func newRemote(cfg *Config, logger *slog.Logger) (wifi.Remote, error) {
	if cfg.Backend == "mock" {
		return mock.New()
	}
	return nil, fmt.Errorf("backend %s on %s: %w", cfg.Backend, runtime.GOOS, wifi.ErrNotSupported)
}
