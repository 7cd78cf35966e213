package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifibridge/internal/bridge"
	wifilog "github.com/shazow/wifibridge/internal/log"
	"github.com/shazow/wifibridge/wifi"
	"github.com/shazow/wifibridge/wifi/mock"
)

const waitTimeout = 5 * time.Second

func network(path, name string, strength uint8, security ...string) wifi.Network {
	return wifi.Network{
		Path:     path,
		Name:     name,
		Type:     wifi.TechnologyWifi,
		Security: security,
		Strength: strength,
		State:    wifi.StateIdle,
	}
}

// newTestServer serves a running bridge over m until the test ends.
func newTestServer(t *testing.T, m *mock.MockBackend) (*Client, *httptest.Server) {
	t.Helper()
	logger, ring := wifilog.New(io.Discard, wifilog.Options{Level: slog.LevelDebug, NoColor: true})
	b := bridge.New(&bridge.Config{
		Remote:         m,
		Logger:         logger,
		ConnectTimeout: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- b.Run(ctx) }()

	srv := httptest.NewServer(NewServer(Config{Bridge: b, Logger: logger, Logs: ring}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-stopped
		m.Close()
	})
	return NewClient(srv.URL), srv
}

func pskConnect(ssid, passKey string) ConnectParams {
	return ConnectParams{ConnectRequest: bridge.ConnectRequest{
		SSID: ssid,
		Security: &bridge.SecurityRequest{
			SecurityType:   "wpa-personal",
			SimpleSecurity: &bridge.SimpleSecurity{PassKey: passKey},
		},
	}}
}

func TestConnectWithSubscription(t *testing.T) {
	m := mock.NewBackend(network("/home", "Home", 73, "psk"))
	m.Simulate = true
	m.ActionSleep = time.Millisecond
	c, _ := newTestServer(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pushes := make(chan bridge.Status, 32)
	subErr := make(chan error, 1)
	go func() {
		subErr <- c.Subscribe(ctx, func(st bridge.Status) error {
			pushes <- st
			return nil
		})
	}()

	select {
	case first := <-pushes:
		assert.True(t, first.ReturnValue)
		assert.True(t, first.Subscribed)
		assert.Equal(t, bridge.ServiceEnabled, first.Status)
		assert.Nil(t, first.NetworkInfo)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for first frame")
	}

	var reply ConnectReply
	require.NoError(t, c.Call(ctx, "connect", pskConnect("Home", "secret123"), &reply))
	assert.Equal(t, ConnectReply{ReturnValue: true, ProfileID: 1, SSID: "Home"}, reply)

	deadline := time.After(waitTimeout)
	for online := false; !online; {
		select {
		case st := <-pushes:
			online = st.IPInfo != nil
			if online {
				assert.Equal(t, "Home", st.NetworkInfo.SSID)
				assert.Equal(t, wifi.IPConfigured, st.NetworkInfo.ConnectState)
				assert.Equal(t, "192.168.1.42", st.IPInfo.IP)
			}
		case <-deadline:
			t.Fatal("timed out waiting for online push")
		}
	}

	var status bridge.Status
	require.NoError(t, c.Call(ctx, "getstatus", nil, &status))
	assert.False(t, status.Subscribed)
	require.NotNil(t, status.NetworkInfo)
	assert.Equal(t, 1, status.NetworkInfo.ProfileID)

	var profile ProfileReply
	require.NoError(t, c.Call(ctx, "getprofile", ProfileParams{ProfileID: 1}, &profile))
	assert.Equal(t, bridge.ProfileInfo{ProfileID: 1, SSID: "Home", Security: []string{"wpa-personal"}}, profile.WifiProfile)

	cancel()
	select {
	case err := <-subErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitTimeout):
		t.Fatal("subscription did not end")
	}
}

func TestCallErrors(t *testing.T) {
	m := mock.NewBackend(network("/home", "Home", 73, "psk"))
	c, _ := newTestServer(t, m)
	ctx := context.Background()

	tests := []struct {
		name   string
		method string
		params any
		code   bridge.Code
	}{
		{"invalid state", "setstate", StateParams{State: "sideways"}, bridge.InvalidStateValue},
		{"already enabled", "setstate", StateParams{State: "enabled"}, bridge.AlreadyEnabled},
		{"both selectors", "connect", ConnectParams{ConnectRequest: bridge.ConnectRequest{ProfileID: 1, SSID: "Home"}}, bridge.InvalidRequest},
		{"no selector", "connect", ConnectParams{}, bridge.MissingParameter},
		{"unknown network", "connect", ConnectParams{ConnectRequest: bridge.ConnectRequest{SSID: "Nowhere"}}, bridge.NetworkNotFound},
		{"unknown profile", "getprofile", ProfileParams{ProfileID: 7}, bridge.InvalidProfile},
		{"delete unknown profile", "deleteprofile", ProfileParams{ProfileID: 7}, bridge.InvalidProfile},
		{"subscribe over post", "getstatus", StatusParams{Subscribe: true}, bridge.InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Call(ctx, tt.method, tt.params, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, bridge.ErrorCode(err))
		})
	}
}

func TestMalformedRequest(t *testing.T) {
	_, srv := newTestServer(t, mock.NewBackend())

	resp, err := http.Post(srv.URL+"/api/v1/setstate", "application/json", strings.NewReader("{state"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var reply ErrorReply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reply))
	assert.False(t, reply.ReturnValue)
	assert.Equal(t, int(bridge.InvalidRequest), reply.ErrorCode)
	assert.Contains(t, reply.ErrorText, "malformed request")

	notFound, err := http.Post(srv.URL+"/api/v1/reboot", "application/json", nil)
	require.NoError(t, err)
	notFound.Body.Close()
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
}

func TestFindNetworksAndManager(t *testing.T) {
	m := mock.NewBackend(
		network("/home", "Home", 73, "psk"),
		network("/cafe", "Cafe", 40, "none"),
	)
	c, _ := newTestServer(t, m)
	ctx := context.Background()

	var found FindNetworksReply
	require.NoError(t, c.Call(ctx, "findnetworks", nil, &found))
	assert.True(t, found.ReturnValue)
	require.Len(t, found.FoundNetworks, 2)
	ssids := []string{found.FoundNetworks[0].NetworkInfo.SSID, found.FoundNetworks[1].NetworkInfo.SSID}
	assert.ElementsMatch(t, []string{"Home", "Cafe"}, ssids)
	assert.Contains(t, m.CallLog(), "scan")

	var available AvailableReply
	require.NoError(t, c.Call(ctx, "manager/checkavailable", nil, &available))
	assert.True(t, available.Available)

	var props PropertiesReply
	require.NoError(t, c.Call(ctx, "manager/getproperties", nil, &props))
	assert.Equal(t, "idle", props.Properties["State"])

	var info InfoReply
	require.NoError(t, c.Call(ctx, "getinfo", nil, &info))
	assert.Equal(t, bridge.DefaultInfo, info.WifiInfo)

	var list ProfileListReply
	require.NoError(t, c.Call(ctx, "getprofilelist", nil, &list))
	assert.Empty(t, list.ProfileList)
}

func TestSetStateDisables(t *testing.T) {
	m := mock.NewBackend()
	c, _ := newTestServer(t, m)
	ctx := context.Background()

	require.NoError(t, c.Call(ctx, "setstate", StateParams{State: "disabled"}, nil))

	require.Eventually(t, func() bool {
		var st bridge.Status
		return c.Call(ctx, "getstatus", nil, &st) == nil && st.Status == bridge.ServiceDisabled
	}, waitTimeout, 10*time.Millisecond)
}

func TestSubscribeUnavailable(t *testing.T) {
	m := mock.NewBackend()
	m.Unavailable = true
	c, _ := newTestServer(t, m)

	err := c.Subscribe(context.Background(), func(bridge.Status) error {
		t.Fatal("no status expected")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, bridge.RemoteUnavailable, bridge.ErrorCode(err))
}

func TestMetricsAndLogs(t *testing.T) {
	c, srv := newTestServer(t, mock.NewBackend())
	require.NoError(t, c.Call(context.Background(), "manager/checkavailable", nil, nil))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `wifibridge_api_requests_total{method="manager/checkavailable"}`)

	resp, err = http.Get(srv.URL + "/debug/logs")
	require.NoError(t, err)
	defer resp.Body.Close()
	var entries []wifilog.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.NotEmpty(t, entries)
	assert.Equal(t, "bridge started", entries[0].Message)
}
