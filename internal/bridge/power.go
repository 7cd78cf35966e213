package bridge

import (
	"context"

	"github.com/shazow/wifibridge/wifi"
)

const (
	StateEnabled  = "enabled"
	StateDisabled = "disabled"
)

// SetState powers WiFi on ("enabled") or off ("disabled"). The change itself
// is observed later as a power event.
func (b *Bridge) SetState(ctx context.Context, state string) error {
	var err error
	if doErr := b.do(ctx, func() { err = b.setState(state) }); doErr != nil {
		return doErr
	}
	return err
}

func (b *Bridge) setState(state string) error {
	if !b.remote.Available() {
		return errUnavailable
	}
	var want bool
	switch state {
	case StateEnabled:
		want = true
	case StateDisabled:
	case "":
		return newError(InvalidStateValue, "state is required")
	default:
		return newError(InvalidStateValue, "invalid state %q", state)
	}

	powered := b.refreshPowered()
	if powered == want {
		if want {
			return newError(AlreadyEnabled, "wifi is already enabled")
		}
		return newError(AlreadyDisabled, "wifi is already disabled")
	}

	b.log.Info("setting wifi power", "powered", want)
	if err := b.remote.SetPowered(want); err != nil {
		return newError(RemoteError, "failed to set wifi power: %v", err)
	}
	return nil
}

func (b *Bridge) handlePowered(powered bool) {
	b.log.Info("wifi power changed", "powered", powered)
	b.powered = powered
	if powered {
		b.notify()
		return
	}

	b.fail(newError(NotPermitted, "wifi was disabled"))
	if b.current == nil {
		b.notify()
		return
	}
	if b.current.state.Connected() {
		b.current.state = wifi.NotAssociated
		b.notify()
		b.clearCurrent()
		return
	}
	b.clearCurrent()
	b.notify()
}

func (b *Bridge) handleAvailability(available bool) {
	if available {
		b.log.Info("network service appeared")
		b.refreshPowered()
		b.notify()
		return
	}

	b.log.Warn("network service disappeared")
	b.powered = false
	b.fail(errUnavailable)
	if b.current != nil {
		b.clearCurrent()
	}
	b.notify()
}
