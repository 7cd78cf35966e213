//go:build linux

// Package networkmanager implements wifi.Remote on top of NetworkManager.
//
// NetworkManager has no per-network lifecycle like connman services, so
// networks are identified by SSID and their raw states are synthesized from
// the state of the active connection created for them.
package networkmanager

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/shazow/wifibridge/wifi"
)

const connectionTimeout = 30 * time.Second

type Config struct {
	Logger *slog.Logger
}

// Backend implements wifi.Remote using D-Bus to communicate with NetworkManager.
type Backend struct {
	NM       gonetworkmanager.NetworkManager
	Settings gonetworkmanager.Settings

	log    *slog.Logger
	events chan wifi.Event
	done   chan struct{}
	once   sync.Once

	mu             sync.Mutex
	wirelessDevice gonetworkmanager.DeviceWireless
	accessPoints   map[string]gonetworkmanager.AccessPoint
	states         map[string]wifi.RawState
	watched        map[string]bool
}

// New creates a new networkmanager.Backend.
func New(cfg Config) (*Backend, error) {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("failed to create network manager client: %w", wifi.ErrNotAvailable)
	}

	settings, err := gonetworkmanager.NewSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", wifi.ErrOperationFailed)
	}

	b := newBackend(cfg)
	b.NM = nm
	b.Settings = settings
	return b, nil
}

func newBackend(cfg Config) *Backend {
	b := &Backend{
		log:          cfg.Logger,
		events:       make(chan wifi.Event),
		done:         make(chan struct{}),
		accessPoints: make(map[string]gonetworkmanager.AccessPoint),
		states:       make(map[string]wifi.RawState),
		watched:      make(map[string]bool),
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	return b
}

func (b *Backend) Events() <-chan wifi.Event {
	return b.events
}

// Available is always true: the backend only exists once NetworkManager
// answered.
func (b *Backend) Available() bool {
	return true
}

func (b *Backend) Powered() (bool, error) {
	return b.NM.GetPropertyWirelessEnabled()
}

// SetPowered enables or disables the wireless radio.
func (b *Backend) SetPowered(enabled bool) error {
	if err := b.NM.SetPropertyWirelessEnabled(enabled); err != nil {
		return err
	}
	// Not all versions of NetworkManager support subscribing to signals, so we
	// assume the change was successful and report it ourselves.
	// See: https://github.com/Wifx/gonetworkmanager/pull/14
	go b.emit(wifi.PoweredChanged{Powered: enabled})
	return nil
}

func (b *Backend) Scan() error {
	dev, err := b.getWirelessDevice()
	if err != nil {
		return err
	}
	return dev.RequestScan()
}

// accessPoint is what we read of a gonetworkmanager.AccessPoint.
type accessPoint struct {
	SSID     string
	Strength uint8
	Flags    uint32
	WPAFlags uint32
	RSNFlags uint32
}

// security maps access point flags to connman style security tags.
func (ap accessPoint) security() []string {
	switch {
	case ap.WPAFlags > 0 || ap.RSNFlags > 0:
		return []string{"psk"}
	case ap.Flags&uint32(gonetworkmanager.Nm80211APFlagsPrivacy) != 0:
		return []string{"wep"}
	}
	return []string{"none"}
}

func (b *Backend) Networks() ([]wifi.Network, error) {
	enabled, err := b.Powered()
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, nil
	}

	dev, err := b.getWirelessDevice()
	if err != nil {
		return nil, err
	}
	aps, err := dev.GetAccessPoints()
	if err != nil {
		return nil, err
	}

	known, err := b.knownSSIDs()
	if err != nil {
		return nil, err
	}
	active := b.activeWireless()

	strongest := make(map[string]gonetworkmanager.AccessPoint)
	var infos []accessPoint
	for _, ap := range aps {
		ssid, err := ap.GetPropertySSID()
		if err != nil || ssid == "" {
			continue
		}
		info := accessPoint{SSID: ssid}
		info.Strength, _ = ap.GetPropertyStrength()
		flags, _ := ap.GetPropertyFlags()
		wpaFlags, _ := ap.GetPropertyWPAFlags()
		rsnFlags, _ := ap.GetPropertyRSNFlags()
		info.Flags = uint32(flags)
		info.WPAFlags = uint32(wpaFlags)
		info.RSNFlags = uint32(rsnFlags)
		infos = append(infos, info)

		if existing, ok := strongest[ssid]; ok {
			exStrength, _ := existing.GetPropertyStrength()
			if info.Strength <= exStrength {
				continue
			}
		}
		strongest[ssid] = ap
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessPoints = strongest
	return buildNetworks(infos, known, active, b.states), nil
}

// buildNetworks merges access points into one network per SSID, keeping the
// strongest signal. A synthesized state only overrides the live active
// connection while an activation is in progress.
func buildNetworks(aps []accessPoint, known map[string]string, active activeWifi, states map[string]wifi.RawState) []wifi.Network {
	bySSID := make(map[string]*wifi.Network)
	var order []string
	for _, ap := range aps {
		if n, ok := bySSID[ap.SSID]; ok {
			if ap.Strength > n.Strength {
				n.Strength = ap.Strength
				n.Security = ap.security()
			}
			continue
		}
		id, isKnown := known[ap.SSID]
		n := &wifi.Network{
			Path:     ap.SSID,
			Name:     ap.SSID,
			Type:     wifi.TechnologyWifi,
			Security: ap.security(),
			Strength: ap.Strength,
			Favorite: isKnown,
			State:    wifi.StateIdle,
		}
		if isKnown && active.ID != "" && id == active.ID {
			n.State = wifi.StateOnline
			n.IPv4 = active.IPv4
		}
		if s, ok := states[ap.SSID]; ok && s.InProgress() {
			n.State = s
		}
		bySSID[ap.SSID] = n
		order = append(order, ap.SSID)
	}
	sort.Strings(order)

	networks := make([]wifi.Network, 0, len(order))
	for _, ssid := range order {
		networks = append(networks, *bySSID[ssid])
	}
	return networks
}

// knownSSIDs maps the SSID of each saved wireless connection to its id.
func (b *Backend) knownSSIDs() (map[string]string, error) {
	conns, err := b.Settings.ListConnections()
	if err != nil {
		return nil, err
	}
	known := make(map[string]string, len(conns))
	for _, c := range conns {
		s, err := c.GetSettings()
		if err != nil {
			continue
		}
		if ssid, id, ok := connectionSSID(s); ok {
			known[ssid] = id
		}
	}
	return known, nil
}

func (b *Backend) findConnection(ssid string) gonetworkmanager.Connection {
	conns, err := b.Settings.ListConnections()
	if err != nil {
		return nil
	}
	for _, c := range conns {
		s, err := c.GetSettings()
		if err != nil {
			continue
		}
		if got, _, ok := connectionSSID(s); ok && got == ssid {
			return c
		}
	}
	return nil
}

// connectionSSID extracts the SSID and id of a saved wireless connection.
func connectionSSID(s map[string]map[string]interface{}) (ssid, id string, ok bool) {
	if t, _ := s["connection"]["type"].(string); t != "802-11-wireless" {
		return "", "", false
	}
	ssidBytes, _ := s["802-11-wireless"]["ssid"].([]byte)
	if len(ssidBytes) == 0 {
		return "", "", false
	}
	id, _ = s["connection"]["id"].(string)
	return string(ssidBytes), id, true
}

// activeWifi is the activated wireless connection, if any.
type activeWifi struct {
	ID   string
	IPv4 wifi.IPv4
}

func (b *Backend) activeWireless() activeWifi {
	activeConnections, err := b.NM.GetPropertyActiveConnections()
	if err != nil {
		return activeWifi{}
	}
	for _, activeConn := range activeConnections {
		typ, err := activeConn.GetPropertyType()
		if err != nil || typ != "802-11-wireless" {
			continue
		}
		state, err := activeConn.GetPropertyState()
		if err != nil || state != gonetworkmanager.NmActiveConnectionStateActivated {
			continue
		}
		id, err := activeConn.GetPropertyID()
		if err != nil {
			continue
		}
		return activeWifi{ID: id, IPv4: readIPv4(activeConn)}
	}
	return activeWifi{}
}

// readIPv4 reads the first address, the gateway and the nameservers of an
// active connection. Missing parts are left empty.
func readIPv4(activeConn gonetworkmanager.ActiveConnection) wifi.IPv4 {
	var ip wifi.IPv4
	cfg, err := activeConn.GetPropertyIP4Config()
	if err != nil || cfg == nil {
		return ip
	}
	if addrs, err := cfg.GetPropertyAddressData(); err == nil && len(addrs) > 0 {
		ip.Address = addrs[0].Address
		ip.Netmask = net.IP(net.CIDRMask(int(addrs[0].Prefix), 32)).String()
	}
	ip.Gateway, _ = cfg.GetPropertyGateway()
	if nameservers, err := cfg.GetPropertyNameserverData(); err == nil {
		for _, ns := range nameservers {
			ip.Nameservers = append(ip.Nameservers, ns.Address)
		}
	}
	return ip
}

// Connect starts activating the network in the background. Progress is
// reported as state events for the SSID.
func (b *Backend) Connect(ssid string) error {
	if enabled, err := b.Powered(); err == nil && !enabled {
		return wifi.ErrWirelessDisabled
	}
	b.mu.Lock()
	ap, ok := b.accessPoints[ssid]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("access point not found for %s: %w", ssid, wifi.ErrNotFound)
	}
	dev, err := b.getWirelessDevice()
	if err != nil {
		return err
	}
	go b.activate(ssid, dev, ap)
	return nil
}

func (b *Backend) activate(ssid string, dev gonetworkmanager.DeviceWireless, ap gonetworkmanager.AccessPoint) {
	b.setState(ssid, wifi.StateAssociation)

	activeConn, err := b.startActivation(ssid, dev, ap)
	if err != nil {
		b.log.Info("activation failed", "ssid", ssid, "error", err)
		b.setState(ssid, wifi.StateFailure)
		b.emit(wifi.ConnectFailed{Path: ssid, Message: err.Error()})
		return
	}

	stateChanges := make(chan gonetworkmanager.StateChange, 1)
	exit := make(chan struct{})
	defer close(exit)
	if err := activeConn.SubscribeState(stateChanges, exit); err != nil {
		b.emit(wifi.ConnectFailed{Path: ssid, Message: err.Error()})
		return
	}

	// The subscription stays open after activation to see the connection drop.
	timeout := time.NewTimer(connectionTimeout)
	defer timeout.Stop()
	activated := false
	markActivated := func() {
		if activated {
			return
		}
		activated = true
		timeout.Stop()
		b.activated(ssid)
	}

	initialState, err := activeConn.GetPropertyState()
	if err == nil && initialState == gonetworkmanager.NmActiveConnectionStateActivated {
		markActivated()
	}

	for {
		select {
		case change, ok := <-stateChanges:
			if !ok {
				return
			}
			switch change.State {
			case gonetworkmanager.NmActiveConnectionStateActivated:
				markActivated()
			case gonetworkmanager.NmActiveConnectionStateDeactivated:
				if activated {
					b.setState(ssid, wifi.StateDisconnect)
				} else {
					b.setState(ssid, wifi.StateFailure)
				}
				b.setState(ssid, wifi.StateIdle)
				return
			}
		case <-timeout.C:
			b.emit(wifi.ConnectFailed{Path: ssid, Message: "connection timed out"})
			return
		case <-b.done:
			return
		}
	}
}

func (b *Backend) activated(ssid string) {
	b.setState(ssid, wifi.StateConfiguration)
	b.setState(ssid, wifi.StateOnline)
}

func (b *Backend) startActivation(ssid string, dev gonetworkmanager.DeviceWireless, ap gonetworkmanager.AccessPoint) (gonetworkmanager.ActiveConnection, error) {
	if conn := b.findConnection(ssid); conn != nil {
		return b.NM.ActivateWirelessConnection(conn, dev, ap)
	}

	flags, _ := ap.GetPropertyFlags()
	wpaFlags, _ := ap.GetPropertyWPAFlags()
	rsnFlags, _ := ap.GetPropertyRSNFlags()
	security := accessPoint{Flags: uint32(flags), WPAFlags: uint32(wpaFlags), RSNFlags: uint32(rsnFlags)}.security()[0]

	var password string
	if security != "none" {
		reply := make(chan wifi.InputReply, 1)
		ev := wifi.InputRequested{Path: ssid, Fields: []string{wifi.FieldPassphrase}, Reply: reply}
		if !b.emit(ev) {
			return nil, wifi.ErrNotAvailable
		}
		var r wifi.InputReply
		select {
		case r = <-reply:
		case <-b.done:
			return nil, wifi.ErrNotAvailable
		}
		if r.Err != nil {
			return nil, r.Err
		}
		password = r.Values[wifi.FieldPassphrase]
	}

	deviceInterface, _ := dev.GetPropertyInterface()
	return b.NM.AddAndActivateWirelessConnection(newConnection(ssid, deviceInterface, security, password), dev, ap)
}

// newConnection builds the settings of a new saved connection.
func newConnection(ssid, deviceInterface, security, password string) map[string]map[string]interface{} {
	connection := map[string]map[string]interface{}{
		"connection": {
			"id":             ssid,
			"uuid":           uuid.New().String(),
			"type":           "802-11-wireless",
			"interface-name": deviceInterface,
			"autoconnect":    true,
		},
		"802-11-wireless": {
			"mode": "infrastructure",
			"ssid": []byte(ssid),
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "auto"},
	}

	switch security {
	case "wep":
		connection["802-11-wireless"]["security"] = "802-11-wireless-security"
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "none",
			"wep-key0": password,
		}
	case "psk":
		connection["802-11-wireless"]["security"] = "802-11-wireless-security"
		connection["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      password,
		}
	}
	return connection
}

// setState reports a synthesized state when watched. Only in-progress states
// are kept; settled ones are read from the live active connection.
func (b *Backend) setState(ssid string, state wifi.RawState) {
	b.mu.Lock()
	if state.InProgress() {
		b.states[ssid] = state
	} else {
		delete(b.states, ssid)
	}
	watched := b.watched[ssid]
	b.mu.Unlock()
	if watched {
		b.emit(wifi.StateChanged{Path: ssid, State: state})
	}
}

func (b *Backend) Watch(ssid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watched[ssid] = true
	return nil
}

func (b *Backend) Unwatch(ssid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watched, ssid)
	return nil
}

// Properties reads the global NetworkManager properties the bridge reports.
// Every property is attempted; failures are returned together.
func (b *Backend) Properties() (map[string]any, error) {
	var result *multierror.Error
	props := make(map[string]any, 2)

	if enabled, err := b.NM.GetPropertyWirelessEnabled(); err != nil {
		result = multierror.Append(result, fmt.Errorf("WirelessEnabled: %w", err))
	} else {
		props["WirelessEnabled"] = enabled
	}
	if active, err := b.NM.GetPropertyActiveConnections(); err != nil {
		result = multierror.Append(result, fmt.Errorf("ActiveConnections: %w", err))
	} else {
		props["ActiveConnections"] = len(active)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return props, nil
}

func (b *Backend) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// emit delivers an event, giving up when the backend is closed.
func (b *Backend) emit(ev wifi.Event) bool {
	select {
	case b.events <- ev:
		return true
	case <-b.done:
		return false
	}
}

// getWirelessDevice returns the first wireless device, cached after the
// first lookup.
func (b *Backend) getWirelessDevice() (gonetworkmanager.DeviceWireless, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wirelessDevice != nil {
		return b.wirelessDevice, nil
	}

	devices, err := b.NM.GetDevices()
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		if dev, ok := device.(gonetworkmanager.DeviceWireless); ok {
			b.wirelessDevice = dev
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no wireless device found: %w", wifi.ErrNotFound)
}
