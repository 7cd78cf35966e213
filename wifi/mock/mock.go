package mock

import (
	"fmt"
	"sync"
	"time"

	"github.com/shazow/wifibridge/wifi"
)

var DefaultActionSleep = 500 * time.Millisecond

// MockBackend is a scriptable implementation of wifi.Remote.
//
// Signals are only delivered for networks that are watched, mirroring the
// per-object subscriptions of a real remote. Every emit blocks until the
// consumer has received the event.
type MockBackend struct {
	mu sync.Mutex

	NetworkList      []wifi.Network
	WirelessEnabled  bool
	TechnologyExists bool
	Unavailable      bool
	ManagerProps     map[string]any

	ScanError       error
	ConnectError    error
	SetPoweredError error
	NetworksError   error
	WatchError      error

	// Calls records Scan, Connect, Watch and Unwatch in order, e.g. "watch /a".
	Calls []string
	// Simulate makes Connect walk the network through association,
	// configuration and online on its own, asking for input when secured.
	Simulate bool
	// ActionSleep is the delay between simulated steps.
	ActionSleep time.Duration

	watched map[string]bool
	events  chan wifi.Event
	done    chan struct{}
	once    sync.Once
}

// NewBackend creates an empty mock with WiFi powered.
func NewBackend(networks ...wifi.Network) *MockBackend {
	return &MockBackend{
		NetworkList:      networks,
		WirelessEnabled:  true,
		TechnologyExists: true,
		ManagerProps:     map[string]any{"State": "idle", "OfflineMode": false},
		watched:          make(map[string]bool),
		events:           make(chan wifi.Event),
		done:             make(chan struct{}),
	}
}

// New creates a mock.Backend with a list of fun wifi networks that simulates
// associations.
func New() (wifi.Remote, error) {
	networks := []wifi.Network{
		{Name: "HideYoKidsHideYoWiFi", Security: []string{"psk"}, Strength: 74, Favorite: true},
		{Name: "GET off my LAN", Security: []string{"psk"}, Strength: 35, Favorite: true},
		{Name: "NeverGonnaGiveYouIP", Security: []string{"wep"}, Strength: 52},
		{Name: "Unencrypted_Honeypot", Security: []string{"none"}, Strength: 91},
		{Name: "Dunder MiffLAN", Security: []string{"psk"}, Strength: 60},
		{Name: "Police Surveillance 2", Security: []string{"psk"}, Strength: 48},
		{Name: "I Believe Wi Can Fi", Security: []string{"wep"}, Strength: 21},
		{Name: "Password is password", Security: []string{"psk"}, Strength: 87, Favorite: true},
		{Name: "TacoBoutAGoodSignal", Security: []string{"psk"}, Strength: 99},
		{Name: "Pretty Fly for a WiFi", Security: []string{"ieee8021x"}, Strength: 66},
	}
	for i := range networks {
		networks[i].Path = fmt.Sprintf("/net/connman/service/wifi_mock_%02d_managed", i)
		networks[i].Type = wifi.TechnologyWifi
		networks[i].State = wifi.StateIdle
	}

	m := NewBackend(networks...)
	m.Simulate = true
	m.ActionSleep = DefaultActionSleep
	return m, nil
}

func (m *MockBackend) Events() <-chan wifi.Event {
	return m.events
}

func (m *MockBackend) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unavailable
}

func (m *MockBackend) Powered() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return false, wifi.ErrNotAvailable
	}
	return m.TechnologyExists && m.WirelessEnabled, nil
}

func (m *MockBackend) SetPowered(powered bool) error {
	m.mu.Lock()
	if m.SetPoweredError != nil {
		m.mu.Unlock()
		return m.SetPoweredError
	}
	if !m.TechnologyExists {
		m.mu.Unlock()
		return fmt.Errorf("wifi technology: %w", wifi.ErrNotFound)
	}
	changed := m.WirelessEnabled != powered
	m.WirelessEnabled = powered
	m.mu.Unlock()

	if changed {
		// A real remote acknowledges the property change with a signal later.
		go m.emit(wifi.PoweredChanged{Powered: powered})
	}
	return nil
}

func (m *MockBackend) Scan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "scan")
	if m.ScanError != nil {
		return m.ScanError
	}
	if !m.WirelessEnabled {
		return wifi.ErrWirelessDisabled
	}
	return nil
}

func (m *MockBackend) Networks() ([]wifi.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NetworksError != nil {
		return nil, m.NetworksError
	}
	if !m.WirelessEnabled {
		return nil, nil
	}
	out := make([]wifi.Network, len(m.NetworkList))
	copy(out, m.NetworkList)
	return out, nil
}

func (m *MockBackend) Connect(path string) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, "connect "+path)
	if m.ConnectError != nil {
		m.mu.Unlock()
		return m.ConnectError
	}
	if !m.WirelessEnabled {
		m.mu.Unlock()
		return fmt.Errorf("connect %s: %w", path, wifi.ErrWirelessDisabled)
	}
	n, ok := wifi.FindByPath(m.NetworkList, path)
	simulate := m.Simulate
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("network %s: %w", path, wifi.ErrNotFound)
	}
	if simulate {
		go m.simulate(n)
	}
	return nil
}

func (m *MockBackend) Watch(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "watch "+path)
	if m.WatchError != nil {
		return m.WatchError
	}
	m.watched[path] = true
	return nil
}

func (m *MockBackend) Unwatch(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "unwatch "+path)
	delete(m.watched, path)
	return nil
}

// Watched reports whether a network is currently watched.
func (m *MockBackend) Watched(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watched[path]
}

func (m *MockBackend) Properties() (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return nil, wifi.ErrNotAvailable
	}
	props := make(map[string]any, len(m.ManagerProps))
	for k, v := range m.ManagerProps {
		props[k] = v
	}
	return props, nil
}

func (m *MockBackend) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

// CallLog returns a copy of the recorded calls.
func (m *MockBackend) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// emit delivers an event, giving up when the backend is closed.
func (m *MockBackend) emit(ev wifi.Event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *MockBackend) update(path string, fn func(n *wifi.Network)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.NetworkList {
		if m.NetworkList[i].Path == path {
			fn(&m.NetworkList[i])
		}
	}
	return m.watched[path]
}

// SetState changes the raw state of a network and signals it when watched.
func (m *MockBackend) SetState(path string, state wifi.RawState) {
	if m.update(path, func(n *wifi.Network) { n.State = state }) {
		m.emit(wifi.StateChanged{Path: path, State: state})
	}
}

// SetStrength changes the strength of a network and signals it when watched.
func (m *MockBackend) SetStrength(path string, strength uint8) {
	if m.update(path, func(n *wifi.Network) { n.Strength = strength }) {
		m.emit(wifi.StrengthChanged{Path: path, Strength: strength})
	}
}

// SetIPv4 changes the IPv4 configuration of a network.
func (m *MockBackend) SetIPv4(path string, ip wifi.IPv4) {
	m.update(path, func(n *wifi.Network) { n.IPv4 = ip })
}

// SetWireless changes the power state and signals it.
func (m *MockBackend) SetWireless(powered bool) {
	m.mu.Lock()
	m.WirelessEnabled = powered
	m.mu.Unlock()
	m.emit(wifi.PoweredChanged{Powered: powered})
}

// SetAvailable makes the remote service appear or vanish.
func (m *MockBackend) SetAvailable(available bool) {
	m.mu.Lock()
	m.Unavailable = !available
	m.mu.Unlock()
	m.emit(wifi.AvailabilityChanged{Available: available})
}

// RemoveTechnology drops the WiFi technology.
func (m *MockBackend) RemoveTechnology() {
	m.mu.Lock()
	m.TechnologyExists = false
	m.mu.Unlock()
	m.emit(wifi.TechnologyRemoved{Type: wifi.TechnologyWifi})
}

// AddTechnology restores the WiFi technology.
func (m *MockBackend) AddTechnology(powered bool) {
	m.mu.Lock()
	m.TechnologyExists = true
	m.WirelessEnabled = powered
	m.mu.Unlock()
	m.emit(wifi.TechnologyAdded{Type: wifi.TechnologyWifi, Powered: powered})
}

// RequestInput asks the consumer for credentials like the remote agent
// protocol does, and waits for the answer.
func (m *MockBackend) RequestInput(path string, fields ...string) wifi.InputReply {
	reply := make(chan wifi.InputReply, 1)
	if !m.emit(wifi.InputRequested{Path: path, Fields: fields, Reply: reply}) {
		return wifi.InputReply{Err: wifi.ErrNotAvailable}
	}
	select {
	case r := <-reply:
		return r
	case <-m.done:
		return wifi.InputReply{Err: wifi.ErrNotAvailable}
	}
}

// ReportError reports an association error for a network.
func (m *MockBackend) ReportError(path, message string) {
	m.emit(wifi.ErrorReported{Path: path, Message: message})
}

// FailConnect reports a failed connect call for a network.
func (m *MockBackend) FailConnect(path, message string) {
	m.emit(wifi.ConnectFailed{Path: path, Message: message})
}

func (m *MockBackend) sleep() bool {
	select {
	case <-time.After(m.ActionSleep):
		return true
	case <-m.done:
		return false
	}
}

func (m *MockBackend) simulate(n wifi.Network) {
	if !m.sleep() {
		return
	}
	m.SetState(n.Path, wifi.StateAssociation)

	secured := false
	for _, s := range n.Security {
		if s != "none" {
			secured = true
		}
	}
	if secured {
		r := m.RequestInput(n.Path, wifi.FieldPassphrase)
		if r.Err != nil || r.Values[wifi.FieldPassphrase] == "" {
			m.ReportError(n.Path, "invalid-key")
			m.SetState(n.Path, wifi.StateFailure)
			return
		}
	}

	for _, step := range []wifi.RawState{wifi.StateConfiguration, wifi.StateReady, wifi.StateOnline} {
		if !m.sleep() {
			return
		}
		if step == wifi.StateConfiguration {
			m.SetIPv4(n.Path, wifi.IPv4{
				Method:      "dhcp",
				Address:     "192.168.1.42",
				Netmask:     "255.255.255.0",
				Gateway:     "192.168.1.1",
				Nameservers: []string{"192.168.1.1", "1.1.1.1"},
			})
		}
		m.SetState(n.Path, step)
	}

	m.update(n.Path, func(n *wifi.Network) { n.Favorite = true })
}
