package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazow/wifibridge/wifi"
)

func TestRegistry(t *testing.T) {
	var r Registry

	a := r.Create("/a")
	b := r.Create("/b")
	assert.Equal(t, 1, a.ID)
	assert.Equal(t, 2, b.ID)

	assert.Same(t, b, r.FindByID(2))
	assert.Same(t, a, r.FindByPath("/a"))
	assert.Nil(t, r.FindByID(3))
	assert.Nil(t, r.FindByPath("/c"))

	r.RemoveByID(1)
	r.RemoveByID(42) // no-op
	assert.Nil(t, r.FindByID(1))

	c := r.Create("/a")
	assert.Equal(t, 3, c.ID, "ids are never reused")

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, 2, list[0].ID)
	assert.Equal(t, 3, list[1].ID)

	// List returns copies.
	list[0].Name = "changed"
	assert.Empty(t, r.FindByID(2).Name)
}

func TestPending(t *testing.T) {
	var p Pending[ConnectResult]
	assert.False(t, p.Valid())
	assert.False(t, p.Resolve(nil))

	reply := make(chan ConnectResult, 1)
	p.Start(reply, ConnectResult{SSID: "Home"})
	assert.True(t, p.Valid())
	gen := p.Generation()
	assert.Equal(t, "Home", p.Draft().SSID)

	assert.Panics(t, func() { p.Start(make(chan ConnectResult, 1), ConnectResult{}) })

	ok := p.Resolve(func(r *ConnectResult) { r.Success = true })
	assert.True(t, ok)
	assert.False(t, p.Valid())

	got := <-reply
	assert.True(t, got.Success)
	assert.Equal(t, "Home", got.SSID)

	p.Start(make(chan ConnectResult, 1), ConnectResult{})
	assert.NotEqual(t, gen, p.Generation())
	p.Reset()
	assert.False(t, p.Valid())
}

func TestSettingsPopulate(t *testing.T) {
	keyIndex := 1

	tests := []struct {
		name    string
		req     ConnectRequest
		want    ConnectionSettings
		wantErr Code
	}{
		{
			name: "open network",
			req:  ConnectRequest{SSID: "Cafe"},
			want: ConnectionSettings{Name: "Cafe"},
		},
		{
			name: "hidden wpa personal",
			req: ConnectRequest{SSID: "Home", Hidden: true, Security: &SecurityRequest{
				SecurityType:   "wpa-personal",
				SimpleSecurity: &SimpleSecurity{PassKey: "secret123"},
			}},
			want: ConnectionSettings{Name: "Home", Hidden: true, Security: wifi.SecurityPSK, Passphrase: "secret123"},
		},
		{
			name: "wapi psk",
			req: ConnectRequest{SSID: "Home", Security: &SecurityRequest{
				SecurityType:   "wapi-psk",
				SimpleSecurity: &SimpleSecurity{PassKey: "secret123"},
			}},
			want: ConnectionSettings{Name: "Home", Security: wifi.SecurityPSK, Passphrase: "secret123"},
		},
		{
			name: "wep with key index",
			req: ConnectRequest{SSID: "Old", Security: &SecurityRequest{
				SecurityType:   "wep",
				SimpleSecurity: &SimpleSecurity{PassKey: "abcde", KeyIndex: &keyIndex},
			}},
			want: ConnectionSettings{Name: "Old", Security: wifi.SecurityWEP, Passphrase: "abcde", KeyIndex: 1},
		},
		{
			name: "wep without key index",
			req: ConnectRequest{SSID: "Old", Security: &SecurityRequest{
				SecurityType:   "wep",
				SimpleSecurity: &SimpleSecurity{PassKey: "abcde"},
			}},
			wantErr: MissingParameter,
		},
		{
			name: "psk without passkey",
			req: ConnectRequest{SSID: "Home", Security: &SecurityRequest{
				SecurityType: "wpa-personal",
			}},
			wantErr: MissingParameter,
		},
		{
			name:    "enterprise",
			req:     ConnectRequest{SSID: "Corp", Security: &SecurityRequest{SecurityType: "enterprise"}},
			wantErr: UnsupportedSecurity,
		},
		{
			name:    "wapi cert",
			req:     ConnectRequest{SSID: "Corp", Security: &SecurityRequest{SecurityType: "wapi-cert"}},
			wantErr: UnsupportedSecurity,
		},
		{
			name:    "missing ssid",
			req:     ConnectRequest{},
			wantErr: MissingParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ConnectionSettings{Name: "stale", Passphrase: "stale", KeyIndex: 3}
			err := s.Populate(tt.req)
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, ErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, Timeout, ErrorCode(newError(Timeout, "late")))
	assert.Equal(t, RemoteError, ErrorCode(wifi.ErrNotFound))
	assert.Equal(t, "InvalidProfile: profile 3 does not exist", newError(InvalidProfile, "profile %d does not exist", 3).Error())
	assert.Equal(t, "Code(99)", Code(99).String())
}
