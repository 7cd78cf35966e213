package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifibridge/wifi"
	"github.com/shazow/wifibridge/wifi/mock"
)

const waitTimeout = 5 * time.Second

// startBridge runs a bridge over m until the test ends.
func startBridge(t *testing.T, m *mock.MockBackend, timeout time.Duration) *Bridge {
	t.Helper()
	b := New(&Config{
		Remote:         m,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ConnectTimeout: timeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- b.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-stopped
		m.Close()
	})
	return b
}

func waitResult(t *testing.T, reply <-chan ConnectResult) ConnectResult {
	t.Helper()
	select {
	case res := <-reply:
		return res
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for connect result")
	}
	return ConnectResult{}
}

// waitStatus reads pushes until match accepts one.
func waitStatus(t *testing.T, sub *Subscription, match func(Status) bool) Status {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case st, ok := <-sub.C:
			require.True(t, ok, "subscription closed")
			if match(st) {
				return st
			}
		case <-deadline:
			t.Fatal("timed out waiting for status push")
		}
	}
}

func TestRunSimulatedConnect(t *testing.T) {
	m := mock.NewBackend(testNetwork("/home", "Home", wifi.StateIdle, 73, "psk"))
	m.Simulate = true
	m.ActionSleep = time.Millisecond
	b := startBridge(t, m, time.Minute)
	ctx := context.Background()

	st, sub, err := b.GetStatus(ctx, true)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, st.Subscribed)
	assert.Equal(t, ServiceEnabled, st.Status)
	assert.Nil(t, st.NetworkInfo)

	reply, err := b.Connect(ctx, pskRequest("Home", "secret123"))
	require.NoError(t, err)

	res := waitResult(t, reply)
	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.ProfileID)

	online := waitStatus(t, sub, func(st Status) bool {
		return st.IPInfo != nil
	})
	assert.Equal(t, wifi.IPConfigured, online.NetworkInfo.ConnectState)
	assert.Equal(t, "192.168.1.42", online.IPInfo.IP)
	assert.Equal(t, "192.168.1.1", online.IPInfo.DNS1)

	profiles, err := b.GetProfileList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ProfileInfo{{ProfileID: 1, SSID: "Home", Security: []string{"wpa-personal"}}}, profiles)

	sub.Cancel()
	waitClosed(t, sub)
}

func TestRunSimulatedWrongPassphrase(t *testing.T) {
	m := mock.NewBackend(testNetwork("/home", "Home", wifi.StateIdle, 73, "psk"))
	m.Simulate = true
	m.ActionSleep = time.Millisecond
	b := startBridge(t, m, time.Minute)

	// Without credentials the agent answers an empty passphrase and the
	// remote gives up.
	reply, err := b.Connect(context.Background(), ConnectRequest{SSID: "Home"})
	require.NoError(t, err)

	res := waitResult(t, reply)
	assert.False(t, res.Success)
	assert.Equal(t, RemoteError, ErrorCode(res.Err))
	assert.Contains(t, res.Err.Error(), "invalid-key")
}

func TestRunConnectTimeout(t *testing.T) {
	m := mock.NewBackend(testNetwork("/home", "Home", wifi.StateIdle, 73))
	b := startBridge(t, m, 20*time.Millisecond)

	reply, err := b.Connect(context.Background(), ConnectRequest{SSID: "Home"})
	require.NoError(t, err)

	res := waitResult(t, reply)
	assert.Equal(t, Timeout, ErrorCode(res.Err))
}

func TestRunSetState(t *testing.T) {
	m := mock.NewBackend()
	b := startBridge(t, m, 0)
	ctx := context.Background()

	_, sub, err := b.GetStatus(ctx, true)
	require.NoError(t, err)

	require.NoError(t, b.SetState(ctx, StateDisabled))
	waitStatus(t, sub, func(st Status) bool { return st.Status == ServiceDisabled })

	err = b.SetState(ctx, StateDisabled)
	assert.Equal(t, AlreadyDisabled, ErrorCode(err))

	_, err = b.FindNetworks(ctx)
	assert.Equal(t, NotPermitted, ErrorCode(err))

	require.NoError(t, b.SetState(ctx, StateEnabled))
	waitStatus(t, sub, func(st Status) bool { return st.Status == ServiceEnabled })
}

func TestRunProfiles(t *testing.T) {
	fav := testNetwork("/fav", "Fav", wifi.StateIdle, 50, "wep")
	fav.Favorite = true
	m := mock.NewBackend(fav)
	b := startBridge(t, m, 0)
	ctx := context.Background()

	_, err := b.GetProfile(ctx, 1)
	assert.Equal(t, InvalidProfile, ErrorCode(err))

	_, err = b.FindNetworks(ctx)
	require.NoError(t, err)

	p, err := b.GetProfile(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, ProfileInfo{ProfileID: 1, SSID: "Fav", Security: []string{"wep"}}, p)

	require.NoError(t, b.DeleteProfile(ctx, 1))
	assert.Equal(t, InvalidProfile, ErrorCode(b.DeleteProfile(ctx, 1)))

	list, err := b.GetProfileList(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	info, err := b.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultInfo, info)

	props, err := b.Properties(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", props["State"])

	available, err := b.Available(ctx)
	require.NoError(t, err)
	assert.True(t, available)
}

func TestRunStopped(t *testing.T) {
	m := mock.NewBackend(testNetwork("/home", "Home", wifi.StateIdle, 73))
	b := New(&Config{Remote: m, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- b.Run(ctx) }()
	defer m.Close()

	_, sub, err := b.GetStatus(ctx, true)
	require.NoError(t, err)
	reply, err := b.Connect(ctx, ConnectRequest{SSID: "Home"})
	require.NoError(t, err)

	cancel()
	assert.True(t, errors.Is(<-stopped, context.Canceled))

	res := waitResult(t, reply)
	assert.Equal(t, RemoteUnavailable, ErrorCode(res.Err))
	waitClosed(t, sub)

	_, err = b.FindNetworks(context.Background())
	assert.Equal(t, RemoteUnavailable, ErrorCode(err))
}

func waitClosed(t *testing.T, sub *Subscription) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-sub.C:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription was not closed")
		}
	}
}
