//go:build linux

package main

import (
	"fmt"
	"log/slog"

	"github.com/shazow/wifibridge/wifi"
	"github.com/shazow/wifibridge/wifi/connman"
	"github.com/shazow/wifibridge/wifi/mock"
	"github.com/shazow/wifibridge/wifi/networkmanager"
)

func newRemote(cfg *Config, logger *slog.Logger) (wifi.Remote, error) {
	switch cfg.Backend {
	case "connman":
		b, err := connman.New(connman.Config{Logger: logger, AgentPath: cfg.AgentPath})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "networkmanager":
		b, err := networkmanager.New(networkmanager.Config{Logger: logger})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "mock":
		return mock.New()
	}
	return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
}
