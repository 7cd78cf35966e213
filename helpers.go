package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shazow/wifibridge/internal/bridge"
)

const maxBars = 5

// signalBars renders a 0-5 bar count like "▮▮▮▯▯".
func signalBars(bars int) string {
	bars = max(0, min(bars, maxBars))
	return strings.Repeat("▮", bars) + strings.Repeat("▯", maxBars-bars)
}

// formatNetwork summarizes a network on one line, e.g.
// "▮▮▮▯▯ 73%, wpa-personal, profile 1, ipConfigured".
func formatNetwork(n bridge.NetworkInfo) string {
	parts := []string{fmt.Sprintf("%s %d%%", signalBars(n.SignalBars), n.SignalLevel)}
	if len(n.AvailableSecurityTypes) > 0 {
		parts = append(parts, strings.Join(n.AvailableSecurityTypes, "/"))
	}
	if n.ProfileID != 0 {
		parts = append(parts, fmt.Sprintf("profile %d", n.ProfileID))
	}
	if n.ConnectState != "" {
		parts = append(parts, string(n.ConnectState))
	}
	return strings.Join(parts, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
