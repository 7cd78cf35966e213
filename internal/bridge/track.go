package bridge

import "github.com/shazow/wifibridge/wifi"

func (b *Bridge) handleStateChanged(ev wifi.StateChanged) {
	cur := b.current
	if cur == nil || cur.path != ev.Path {
		b.log.Debug("ignoring state of untracked network", "path", ev.Path, "state", ev.State)
		return
	}
	stateChanges.Inc()

	previous := cur.state
	cur.state = wifi.Translate(ev.State, cur.lastRaw)
	b.log.Debug("network state changed",
		"name", cur.name,
		"raw", ev.State,
		"previous_raw", cur.lastRaw,
		"state", cur.state,
	)
	cur.lastRaw = ev.State

	switch cur.state {
	case wifi.Associated, wifi.IPConfigured:
		p := b.rememberCurrent()
		if b.pending.Valid() {
			b.log.Info("connected", "name", cur.name, "profile", p.ID)
			b.succeed(p.ID)
		}
	case wifi.AssociationFailed:
		b.fail(newError(RemoteError, "association failed"))
	case wifi.IPFailed:
		b.fail(newError(RemoteError, "ip configuration failed"))
	}

	b.notify()

	terminal := ev.State == wifi.StateIdle || ev.State == wifi.StateDisconnect
	if terminal && previous.Connected() && !b.pending.Valid() {
		b.clearCurrent()
	}
}

// rememberCurrent returns the profile of the current network, creating it on
// first association.
func (b *Bridge) rememberCurrent() *Profile {
	cur := b.current
	p := b.profiles.FindByPath(cur.path)
	if p == nil {
		p = b.profiles.Create(cur.path)
		b.log.Info("profile created", "profile", p.ID, "name", cur.name)
	}
	p.Name = cur.name
	if n, ok := b.lookup(cur.path); ok {
		if n.Name != "" {
			p.Name = n.Name
		}
		p.Security = wifi.CallerSecurityList(n.Security)
	}
	return p
}

func (b *Bridge) handleStrengthChanged(ev wifi.StrengthChanged) {
	cur := b.current
	if cur == nil || cur.path != ev.Path {
		return
	}
	before := wifi.Bars(cur.strength)
	cur.strength = ev.Strength
	if wifi.Bars(ev.Strength) != before {
		b.notify()
	}
}
