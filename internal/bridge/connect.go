package bridge

import (
	"context"
	"time"

	"github.com/shazow/wifibridge/wifi"
)

// SimpleSecurity carries the credentials of a WEP or WPA personal network.
type SimpleSecurity struct {
	PassKey  string `json:"passKey"`
	KeyIndex *int   `json:"keyIndex,omitempty"`
	IsInHex  bool   `json:"isInHex,omitempty"`
}

type SecurityRequest struct {
	SecurityType   string          `json:"securityType"`
	SimpleSecurity *SimpleSecurity `json:"simpleSecurity,omitempty"`
}

// ConnectRequest selects a network either by ProfileID or by SSID, never both.
type ConnectRequest struct {
	ProfileID int              `json:"profileId,omitempty"`
	SSID      string           `json:"ssid,omitempty"`
	Hidden    bool             `json:"hidden,omitempty"`
	Security  *SecurityRequest `json:"security,omitempty"`
}

// ConnectResult is delivered once per accepted connect request.
type ConnectResult struct {
	ProfileID int
	SSID      string
	Success   bool
	Err       error
}

// Connect validates req and starts associating with the selected network.
// Validation failures are returned immediately. Otherwise the returned channel
// receives exactly one result once the attempt resolves.
func (b *Bridge) Connect(ctx context.Context, req ConnectRequest) (<-chan ConnectResult, error) {
	var (
		reply <-chan ConnectResult
		err   error
	)
	if doErr := b.do(ctx, func() { reply, err = b.connect(req) }); doErr != nil {
		return nil, doErr
	}
	return reply, err
}

func (b *Bridge) connect(req ConnectRequest) (<-chan ConnectResult, error) {
	if !b.remote.Available() {
		return nil, errUnavailable
	}
	switch {
	case req.ProfileID != 0 && req.SSID != "":
		return nil, newError(InvalidRequest, "profileId and ssid are mutually exclusive")
	case req.ProfileID != 0 && req.Security != nil:
		return nil, newError(InvalidRequest, "security cannot be combined with profileId")
	case req.ProfileID == 0 && req.SSID == "":
		return nil, newError(MissingParameter, "either profileId or ssid is required")
	}
	if !b.refreshPowered() {
		return nil, newError(NotPermitted, "wifi is disabled")
	}

	networks, err := b.remote.Networks()
	if err != nil {
		return nil, newError(RemoteError, "failed to list networks: %v", err)
	}

	var network wifi.Network
	if req.ProfileID != 0 {
		p := b.profiles.FindByID(req.ProfileID)
		if p == nil {
			return nil, newError(InvalidProfile, "profile %d does not exist", req.ProfileID)
		}
		n, ok := wifi.FindByPath(networks, p.Path)
		if !ok {
			return nil, newError(NetworkNotFound, "network for profile %d is not in range", p.ID)
		}
		network = n
		b.settings.Reset()
		b.settings.Name = n.Name
	} else {
		n, ok := wifi.FindByName(networks, req.SSID)
		if !ok && req.Hidden {
			// The remote asks the agent for the name of a hidden network.
			if n, ok = wifi.FindHidden(networks); ok {
				n.Name = req.SSID
			}
		}
		if !ok {
			return nil, newError(NetworkNotFound, "network %q not found", req.SSID)
		}
		if !n.State.Connectable() {
			return nil, newError(NotPermitted, "network %q is already %s", n.Name, n.State)
		}
		if err := b.settings.Populate(req); err != nil {
			return nil, err
		}
		network = n
	}

	connectRequests.Inc()
	b.stopConnectTimer()
	b.pending.Resolve(func(r *ConnectResult) {
		r.Err = newError(Superseded, "replaced by a connect request for %q", network.Name)
	})

	if b.current != nil {
		b.clearCurrent()
	}
	b.current = &currentNetwork{
		path:     network.Path,
		name:     network.Name,
		strength: network.Strength,
		lastRaw:  network.State,
		state:    wifi.Translate(network.State, wifi.StateUnknown),
	}
	if err := b.remote.Watch(network.Path); err != nil {
		b.log.Warn("failed to watch network", "path", network.Path, "error", err)
	}

	reply := make(chan ConnectResult, 1)
	draft := ConnectResult{SSID: network.Name}
	if p := b.profiles.FindByPath(network.Path); p != nil {
		draft.ProfileID = p.ID
	}
	b.pending.Start(reply, draft)

	b.log.Info("connecting", "name", network.Name, "path", network.Path, "security", b.settings.Security)
	if err := b.remote.Connect(network.Path); err != nil {
		b.fail(newError(RemoteError, "%v", err))
		return reply, nil
	}
	b.startConnectTimer()
	return reply, nil
}

// succeed resolves the pending connect as successful.
func (b *Bridge) succeed(profileID int) {
	b.stopConnectTimer()
	if b.pending.Resolve(func(r *ConnectResult) {
		r.Success = true
		r.ProfileID = profileID
	}) {
		connectSucceeded.Inc()
	}
}

// fail resolves the pending connect with err.
func (b *Bridge) fail(err *Error) {
	b.stopConnectTimer()
	if b.pending.Resolve(func(r *ConnectResult) { r.Err = err }) {
		connectFailed.Inc()
		b.log.Info("connect failed", "code", err.Code, "error", err.Text)
	}
}

func (b *Bridge) startConnectTimer() {
	if b.connectTimeout <= 0 {
		return
	}
	gen := b.pending.Generation()
	timeout := b.connectTimeout
	b.connectTimer = time.AfterFunc(timeout, func() {
		b.post(func() {
			if !b.pending.Valid() || b.pending.Generation() != gen {
				return
			}
			b.fail(newError(Timeout, "no connection after %s", timeout))
		})
	})
}

func (b *Bridge) stopConnectTimer() {
	if b.connectTimer != nil {
		b.connectTimer.Stop()
		b.connectTimer = nil
	}
}
