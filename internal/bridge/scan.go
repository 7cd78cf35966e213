package bridge

import (
	"context"

	"github.com/shazow/wifibridge/wifi"
)

// ProfileInfo describes a remembered network.
type ProfileInfo struct {
	ProfileID int      `json:"profileId"`
	SSID      string   `json:"ssid"`
	Security  []string `json:"securityType,omitempty"`
}

// FindNetworks triggers a scan and returns the WiFi networks already known to
// the remote. The scan is not awaited, so results may predate it.
func (b *Bridge) FindNetworks(ctx context.Context) ([]NetworkInfo, error) {
	var (
		found []NetworkInfo
		err   error
	)
	if doErr := b.do(ctx, func() { found, err = b.findNetworks() }); doErr != nil {
		return nil, doErr
	}
	return found, err
}

func (b *Bridge) findNetworks() ([]NetworkInfo, error) {
	if !b.remote.Available() {
		return nil, errUnavailable
	}
	if !b.refreshPowered() {
		return nil, newError(NotPermitted, "wifi is disabled")
	}

	if err := b.remote.Scan(); err != nil {
		b.log.Warn("scan request failed", "error", err)
	}

	all, err := b.remote.Networks()
	if err != nil {
		return nil, newError(RemoteError, "failed to list networks: %v", err)
	}
	networks := make([]wifi.Network, 0, len(all))
	for _, n := range all {
		if n.Type == wifi.TechnologyWifi {
			networks = append(networks, n)
		}
	}

	var current string
	if b.current != nil {
		current = b.current.path
	}
	wifi.SortNetworks(networks, current)

	found := make([]NetworkInfo, 0, len(networks))
	for _, n := range networks {
		info := NetworkInfo{
			SSID:                   n.Name,
			AvailableSecurityTypes: wifi.CallerSecurityList(n.Security),
			SignalBars:             n.Bars(),
			SignalLevel:            int(n.Strength),
			ConnectState:           b.scanState(n),
		}
		p := b.profiles.FindByPath(n.Path)
		if p == nil && n.Favorite {
			p = b.profiles.Create(n.Path)
			b.log.Debug("profile created for favorite network", "profile", p.ID, "name", n.Name)
		}
		if p != nil {
			p.Name = n.Name
			p.Security = info.AvailableSecurityTypes
			info.ProfileID = p.ID
		}
		found = append(found, info)
	}
	return found, nil
}

// scanState reports a connect state only for networks in failure, association
// or online.
func (b *Bridge) scanState(n wifi.Network) wifi.ConnectState {
	switch n.State {
	case wifi.StateFailure:
		if b.current != nil && b.current.path == n.Path {
			return wifi.Translate(n.State, b.current.lastRaw)
		}
		return wifi.AssociationFailed
	case wifi.StateAssociation, wifi.StateOnline:
		return wifi.Translate(n.State, wifi.StateUnknown)
	}
	return ""
}

// GetProfile returns the profile with the given id.
func (b *Bridge) GetProfile(ctx context.Context, id int) (ProfileInfo, error) {
	var (
		info ProfileInfo
		err  error
	)
	doErr := b.do(ctx, func() {
		if !b.remote.Available() {
			err = errUnavailable
			return
		}
		p := b.profiles.FindByID(id)
		if p == nil {
			err = newError(InvalidProfile, "profile %d does not exist", id)
			return
		}
		info = b.profileInfo(p)
	})
	if doErr != nil {
		return ProfileInfo{}, doErr
	}
	return info, err
}

// GetProfileList returns every profile in creation order.
func (b *Bridge) GetProfileList(ctx context.Context) ([]ProfileInfo, error) {
	var (
		list []ProfileInfo
		err  error
	)
	doErr := b.do(ctx, func() {
		if !b.remote.Available() {
			err = errUnavailable
			return
		}
		profiles := b.profiles.List()
		list = make([]ProfileInfo, 0, len(profiles))
		for i := range profiles {
			list = append(list, b.profileInfo(&profiles[i]))
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return list, err
}

// DeleteProfile forgets a profile. The remote network itself is untouched.
func (b *Bridge) DeleteProfile(ctx context.Context, id int) error {
	var err error
	doErr := b.do(ctx, func() {
		if !b.remote.Available() {
			err = errUnavailable
			return
		}
		if b.profiles.FindByID(id) == nil {
			err = newError(InvalidProfile, "profile %d does not exist", id)
			return
		}
		b.profiles.RemoveByID(id)
		b.log.Info("profile deleted", "profile", id)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (b *Bridge) profileInfo(p *Profile) ProfileInfo {
	info := ProfileInfo{ProfileID: p.ID, SSID: p.Name, Security: p.Security}
	if n, ok := b.lookup(p.Path); ok {
		info.SSID = n.Name
		info.Security = wifi.CallerSecurityList(n.Security)
	}
	return info
}

// GetInfo returns the configured capability descriptor.
func (b *Bridge) GetInfo(ctx context.Context) (Info, error) {
	var (
		info Info
		err  error
	)
	doErr := b.do(ctx, func() {
		if !b.remote.Available() {
			err = errUnavailable
			return
		}
		info = b.info
	})
	if doErr != nil {
		return Info{}, doErr
	}
	return info, err
}

// Properties returns the global properties of the remote service.
func (b *Bridge) Properties(ctx context.Context) (map[string]any, error) {
	var (
		props map[string]any
		err   error
	)
	doErr := b.do(ctx, func() {
		if !b.remote.Available() {
			err = errUnavailable
			return
		}
		props, err = b.remote.Properties()
		if err != nil {
			err = newError(RemoteError, "failed to read properties: %v", err)
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return props, err
}

// Available reports whether the remote service is reachable.
func (b *Bridge) Available(ctx context.Context) (bool, error) {
	var available bool
	if err := b.do(ctx, func() { available = b.remote.Available() }); err != nil {
		return false, err
	}
	return available, nil
}
