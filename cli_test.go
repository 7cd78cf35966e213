package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shazow/wifibridge/internal/api"
	"github.com/shazow/wifibridge/internal/bridge"
	"github.com/shazow/wifibridge/wifi"
	"github.com/shazow/wifibridge/wifi/mock"
)

func testNetworks() []wifi.Network {
	return []wifi.Network{
		{Path: "/cafe", Name: "Cafe", Type: wifi.TechnologyWifi, Security: []string{"none"}, Strength: 91, State: wifi.StateIdle},
		{Path: "/home", Name: "Home", Type: wifi.TechnologyWifi, Security: []string{"psk"}, Strength: 73, State: wifi.StateIdle, Favorite: true},
		{Path: "/office", Name: "Office", Type: wifi.TechnologyWifi, Security: []string{"wep"}, Strength: 40, State: wifi.StateIdle},
		{Path: "/eth", Name: "Wired", Type: "ethernet", State: wifi.StateOnline},
	}
}

// newTestClient serves a bridge over m and returns a client for it.
func newTestClient(t *testing.T, m *mock.MockBackend) *api.Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bridge.New(&bridge.Config{Remote: m, Logger: logger, ConnectTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- b.Run(ctx) }()

	srv := httptest.NewServer(api.NewServer(api.Config{Bridge: b, Logger: logger}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
		m.Close()
	})
	return api.NewClient(srv.URL)
}

func assertLines(t *testing.T, output string, expectedLines []string) {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != len(expectedLines) {
		t.Fatalf("output has wrong number of lines. got=%d, want=%d\n---\n%s\n---", len(lines), len(expectedLines), output)
	}
	for i, expectedLine := range expectedLines {
		if lines[i] != expectedLine {
			t.Errorf("output line %d wrong. got=%q, want=%q", i, lines[i], expectedLine)
		}
	}
}

func TestRunScan(t *testing.T) {
	c := newTestClient(t, mock.NewBackend(testNetworks()...))
	var buf bytes.Buffer

	if err := runScan(context.Background(), &buf, false, c); err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}

	assertLines(t, buf.String(), []string{
		"Home\t▮▮▮▯▯ 73%, wpa-personal, profile 1",
		"Cafe\t▮▮▮▮▯ 91%, none",
		"Office\t▮▮▯▯▯ 40%, wep",
	})
}

func TestRunScanDisabled(t *testing.T) {
	m := mock.NewBackend(testNetworks()...)
	m.WirelessEnabled = false
	c := newTestClient(t, m)

	err := runScan(context.Background(), io.Discard, false, c)
	if err == nil {
		t.Fatal("runScan() with wifi disabled should have failed")
	}
	if bridge.ErrorCode(err) != bridge.NotPermitted {
		t.Errorf("runScan() gave wrong error. got=%v", err)
	}
}

func TestRunConnectAndStatus(t *testing.T) {
	m := mock.NewBackend(testNetworks()...)
	m.Simulate = true
	m.ActionSleep = time.Millisecond
	c := newTestClient(t, m)
	ctx := context.Background()

	params, err := connectParams("Home", connectOptions{Passphrase: "secret123", KeyIndex: -1})
	if err != nil {
		t.Fatalf("connectParams() failed: %v", err)
	}

	var buf bytes.Buffer
	if err := runConnect(ctx, &buf, params, c); err != nil {
		t.Fatalf("runConnect() failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "Connected to Home (profile 1) in ") {
		t.Errorf("runConnect() output wrong. got=%q", buf.String())
	}

	// The connect reply arrives once associated; wait for IP configuration.
	deadline := time.Now().Add(5 * time.Second)
	for {
		buf.Reset()
		if err := runStatus(ctx, &buf, false, c); err != nil {
			t.Fatalf("runStatus() failed: %v", err)
		}
		if strings.Contains(buf.String(), "State: ipConfigured") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("network never reached ipConfigured:\n%s", buf.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	assertLines(t, buf.String(), []string{
		"Status: serviceEnabled",
		"Network: Home",
		"Profile: 1",
		"State: ipConfigured",
		"Signal: ▮▮▮▯▯ 73%",
		"Address: 192.168.1.42/255.255.255.0 on wlan0",
		"Gateway: 192.168.1.1",
		"DNS: 192.168.1.1",
	})

	buf.Reset()
	if err := runProfiles(ctx, &buf, false, c); err != nil {
		t.Fatalf("runProfiles() failed: %v", err)
	}
	assertLines(t, buf.String(), []string{"1\tHome\t[wpa-personal]"})

	buf.Reset()
	if err := runForget(ctx, &buf, 1, c); err != nil {
		t.Fatalf("runForget() failed: %v", err)
	}
	err = runProfile(ctx, io.Discard, false, 1, c)
	if bridge.ErrorCode(err) != bridge.InvalidProfile {
		t.Errorf("runProfile() after forget gave wrong error. got=%v", err)
	}
}

func TestRunStatusIdle(t *testing.T) {
	c := newTestClient(t, mock.NewBackend())
	var buf bytes.Buffer

	if err := runStatus(context.Background(), &buf, false, c); err != nil {
		t.Fatalf("runStatus() failed: %v", err)
	}
	assertLines(t, buf.String(), []string{"Status: serviceEnabled", "Network: none"})
}

func TestRunInfoAndProperties(t *testing.T) {
	c := newTestClient(t, mock.NewBackend())
	ctx := context.Background()
	var buf bytes.Buffer

	if err := runInfo(ctx, &buf, false, c); err != nil {
		t.Fatalf("runInfo() failed: %v", err)
	}
	assertLines(t, buf.String(), []string{
		"MAC address: ff:ff:ff:ff:ff:ff",
		"Wake on WLAN: disabled",
		"WMM: disabled",
		"Roaming: disabled",
		"Power save: enabled",
	})

	buf.Reset()
	if err := runProperties(ctx, &buf, false, c); err != nil {
		t.Fatalf("runProperties() failed: %v", err)
	}
	assertLines(t, buf.String(), []string{"OfflineMode\tfalse", "State\tidle"})
}

func TestRunSetState(t *testing.T) {
	c := newTestClient(t, mock.NewBackend())
	ctx := context.Background()

	err := runSetState(ctx, io.Discard, "enabled", c)
	if bridge.ErrorCode(err) != bridge.AlreadyEnabled {
		t.Errorf("runSetState(enabled) gave wrong error. got=%v", err)
	}

	var buf bytes.Buffer
	if err := runSetState(ctx, &buf, "disabled", c); err != nil {
		t.Fatalf("runSetState(disabled) failed: %v", err)
	}
	if buf.String() != "WiFi disabled\n" {
		t.Errorf("runSetState() output wrong. got=%q", buf.String())
	}
}

func TestConnectParams(t *testing.T) {
	keyIndex := 2
	tests := []struct {
		name    string
		ssid    string
		opts    connectOptions
		want    bridge.ConnectRequest
		wantErr bool
	}{
		{
			name: "open",
			ssid: "Cafe",
			opts: connectOptions{KeyIndex: -1},
			want: bridge.ConnectRequest{SSID: "Cafe"},
		},
		{
			name: "passphrase implies wpa",
			ssid: "Home",
			opts: connectOptions{Passphrase: "secret123", KeyIndex: -1, Hidden: true},
			want: bridge.ConnectRequest{SSID: "Home", Hidden: true, Security: &bridge.SecurityRequest{
				SecurityType:   "wpa-personal",
				SimpleSecurity: &bridge.SimpleSecurity{PassKey: "secret123"},
			}},
		},
		{
			name: "wep with key index",
			ssid: "Office",
			opts: connectOptions{Security: "wep", Passphrase: "abcde", KeyIndex: 2, Hex: true},
			want: bridge.ConnectRequest{SSID: "Office", Security: &bridge.SecurityRequest{
				SecurityType:   "wep",
				SimpleSecurity: &bridge.SimpleSecurity{PassKey: "abcde", KeyIndex: &keyIndex, IsInHex: true},
			}},
		},
		{
			name: "profile",
			opts: connectOptions{ProfileID: 3, KeyIndex: -1},
			want: bridge.ConnectRequest{ProfileID: 3},
		},
		{
			name:    "profile and ssid",
			ssid:    "Home",
			opts:    connectOptions{ProfileID: 3, KeyIndex: -1},
			wantErr: true,
		},
		{
			name:    "nothing",
			opts:    connectOptions{KeyIndex: -1},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := connectParams(tt.ssid, tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("connectParams() should have failed, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("connectParams() failed: %v", err)
			}
			assertConnectRequest(t, tt.want, got.ConnectRequest)
		})
	}
}

func assertConnectRequest(t *testing.T, want, got bridge.ConnectRequest) {
	t.Helper()
	if got.SSID != want.SSID || got.ProfileID != want.ProfileID || got.Hidden != want.Hidden {
		t.Fatalf("wrong request. got=%+v, want=%+v", got, want)
	}
	if (got.Security == nil) != (want.Security == nil) {
		t.Fatalf("wrong security. got=%+v, want=%+v", got.Security, want.Security)
	}
	if want.Security == nil {
		return
	}
	if got.Security.SecurityType != want.Security.SecurityType {
		t.Errorf("wrong security type. got=%q, want=%q", got.Security.SecurityType, want.Security.SecurityType)
	}
	gs, ws := got.Security.SimpleSecurity, want.Security.SimpleSecurity
	if gs.PassKey != ws.PassKey || gs.IsInHex != ws.IsInHex {
		t.Errorf("wrong simple security. got=%+v, want=%+v", gs, ws)
	}
	if (gs.KeyIndex == nil) != (ws.KeyIndex == nil) || (ws.KeyIndex != nil && *gs.KeyIndex != *ws.KeyIndex) {
		t.Errorf("wrong key index. got=%v, want=%v", gs.KeyIndex, ws.KeyIndex)
	}
}

func TestProfileArg(t *testing.T) {
	if id, err := profileArg("forget", []string{"4"}); err != nil || id != 4 {
		t.Errorf("profileArg(4) = %d, %v", id, err)
	}
	for _, args := range [][]string{nil, {"zero"}, {"0"}} {
		if _, err := profileArg("forget", args); err == nil {
			t.Errorf("profileArg(%v) should have failed", args)
		}
	}
}

func TestSignalBars(t *testing.T) {
	for bars, want := range map[int]string{-1: "▯▯▯▯▯", 0: "▯▯▯▯▯", 3: "▮▮▮▯▯", 5: "▮▮▮▮▮", 9: "▮▮▮▮▮"} {
		if got := signalBars(bars); got != want {
			t.Errorf("signalBars(%d) = %q, want %q", bars, got, want)
		}
	}
}
