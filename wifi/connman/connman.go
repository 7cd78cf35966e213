// Package connman implements wifi.Remote against connman over the system
// D-Bus.
package connman

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/tevino/abool"

	"github.com/shazow/wifibridge/wifi"
)

// connman constants
const (
	connmanDest     = "net.connman"
	managerPath     = "/"
	managerIface    = "net.connman.Manager"
	technologyIface = "net.connman.Technology"
	serviceIface    = "net.connman.Service"

	dbusDest  = "org.freedesktop.DBus"
	dbusPath  = "/org/freedesktop/DBus"
	dbusIface = "org.freedesktop.DBus"

	propertyChanged = "PropertyChanged"

	signalBuffer = 32
)

// DefaultAgentPath is where the credential agent is exported.
const DefaultAgentPath = "/net/connman/wifibridge/agent"

type Config struct {
	Logger    *slog.Logger
	AgentPath string
}

// Backend implements wifi.Remote using connman.
type Backend struct {
	conn      *dbus.Conn
	log       *slog.Logger
	agentPath dbus.ObjectPath

	available *abool.AtomicBool
	events    chan wifi.Event
	signals   chan *dbus.Signal
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	props   map[string]any
	watched map[dbus.ObjectPath]bool
}

// New connects to the system bus, exports the agent and starts following
// connman. connman does not need to be running yet.
func New(cfg Config) (*Backend, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithSignalHandler(newSignalHandler()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	b := newBackend(cfg)
	b.conn = conn

	if err := conn.Export(&agent{b: b}, b.agentPath, agentIface); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to export agent: %w", err)
	}
	if err := b.addMatches(); err != nil {
		conn.Close()
		return nil, err
	}
	conn.Signal(b.signals)

	var hasOwner bool
	err = conn.Object(dbusDest, dbusPath).Call(dbusIface+".NameHasOwner", 0, connmanDest).Store(&hasOwner)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to look up %s: %w", connmanDest, err)
	}
	if hasOwner {
		b.appeared()
	} else {
		b.log.Warn("connman is not running, waiting for it")
	}

	go b.loop()
	return b, nil
}

// newSignalHandler keeps signals in bus order when the channel is full.
// Translating a state depends on the one before it.
func newSignalHandler() dbus.SignalHandler {
	return dbus.NewSequentialSignalHandler()
}

func newBackend(cfg Config) *Backend {
	b := &Backend{
		log:       cfg.Logger,
		agentPath: dbus.ObjectPath(cfg.AgentPath),
		available: abool.New(),
		events:    make(chan wifi.Event),
		signals:   make(chan *dbus.Signal, signalBuffer),
		done:      make(chan struct{}),
		props:     make(map[string]any),
		watched:   make(map[dbus.ObjectPath]bool),
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.agentPath == "" {
		b.agentPath = DefaultAgentPath
	}
	return b
}

// managerSignals are the Manager members that are translated. ServicesChanged
// fires on every scan and is left out.
var managerSignals = []string{"TechnologyAdded", "TechnologyRemoved", propertyChanged}

func (b *Backend) managerMatches() [][]dbus.MatchOption {
	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(dbusDest),
			dbus.WithMatchInterface(dbusIface),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchArg(0, connmanDest),
		},
		{
			dbus.WithMatchSender(connmanDest),
			dbus.WithMatchInterface(technologyIface),
			dbus.WithMatchMember(propertyChanged),
		},
	}
	for _, member := range managerSignals {
		matches = append(matches, []dbus.MatchOption{
			dbus.WithMatchSender(connmanDest),
			dbus.WithMatchInterface(managerIface),
			dbus.WithMatchMember(member),
		})
	}
	return matches
}

func (b *Backend) addMatches() error {
	for _, opts := range b.managerMatches() {
		if err := b.conn.AddMatchSignal(opts...); err != nil {
			return fmt.Errorf("failed to add signal match: %w", err)
		}
	}
	return nil
}

func serviceMatch(p dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(connmanDest),
		dbus.WithMatchInterface(serviceIface),
		dbus.WithMatchMember(propertyChanged),
		dbus.WithMatchObjectPath(p),
	}
}

func (b *Backend) manager() dbus.BusObject {
	return b.conn.Object(connmanDest, managerPath)
}

func (b *Backend) Events() <-chan wifi.Event {
	return b.events
}

func (b *Backend) Available() bool {
	return b.available.IsSet()
}

func (b *Backend) Powered() (bool, error) {
	t, err := b.wifiTechnology()
	if err != nil {
		return false, err
	}
	return t.Powered, nil
}

func (b *Backend) SetPowered(powered bool) error {
	t, err := b.wifiTechnology()
	if err != nil {
		return err
	}
	obj := b.conn.Object(connmanDest, t.Path)
	err = obj.Call(technologyIface+".SetProperty", 0, "Powered", dbus.MakeVariant(powered)).Store()
	if err != nil {
		return fmt.Errorf("failed to set Powered=%t: %w", powered, err)
	}
	return nil
}

// Scan asks connman to scan. connman replies only once the scan is over, so
// the reply is not awaited.
func (b *Backend) Scan() error {
	t, err := b.wifiTechnology()
	if err != nil {
		return err
	}
	ch := make(chan *dbus.Call, 1)
	b.conn.Object(connmanDest, t.Path).Go(technologyIface+".Scan", 0, ch)
	go func() {
		select {
		case call := <-ch:
			if call.Err != nil {
				b.log.Debug("scan failed", "error", call.Err)
			}
		case <-b.done:
		}
	}()
	return nil
}

func (b *Backend) Networks() ([]wifi.Network, error) {
	if !b.Available() {
		return nil, wifi.ErrNotAvailable
	}
	var services []pathProps
	if err := b.manager().Call(managerIface+".GetServices", 0).Store(&services); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	networks := make([]wifi.Network, 0, len(services))
	for _, s := range services {
		networks = append(networks, parseNetwork(s.Path, s.Props))
	}
	return networks, nil
}

// Connect issues Service.Connect without waiting for it. connman holds the
// reply until association is over and may call the agent meanwhile, so a
// failure comes back later as a wifi.ConnectFailed event.
func (b *Backend) Connect(p string) error {
	if !b.Available() {
		return wifi.ErrNotAvailable
	}
	ch := make(chan *dbus.Call, 1)
	b.conn.Object(connmanDest, dbus.ObjectPath(p)).Go(serviceIface+".Connect", 0, ch)
	go func() {
		select {
		case call := <-ch:
			if call.Err == nil {
				return
			}
			b.log.Info("connect call failed", "path", p, "error", call.Err)
			b.emit(wifi.ConnectFailed{Path: p, Message: call.Err.Error()})
		case <-b.done:
		}
	}()
	return nil
}

func (b *Backend) Watch(p string) error {
	op := dbus.ObjectPath(p)
	if err := b.conn.AddMatchSignal(serviceMatch(op)...); err != nil {
		return fmt.Errorf("failed to watch %s: %w", p, err)
	}
	b.mu.Lock()
	b.watched[op] = true
	b.mu.Unlock()
	return nil
}

func (b *Backend) Unwatch(p string) error {
	op := dbus.ObjectPath(p)
	b.mu.Lock()
	delete(b.watched, op)
	b.mu.Unlock()
	if err := b.conn.RemoveMatchSignal(serviceMatch(op)...); err != nil {
		return fmt.Errorf("failed to unwatch %s: %w", p, err)
	}
	return nil
}

// Properties returns the cached manager properties.
func (b *Backend) Properties() (map[string]any, error) {
	if !b.Available() {
		return nil, wifi.ErrNotAvailable
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	props := make(map[string]any, len(b.props))
	for k, v := range b.props {
		props[k] = v
	}
	return props, nil
}

func (b *Backend) Close() error {
	var errs *multierror.Error
	b.closeOnce.Do(func() {
		close(b.done)
		b.conn.RemoveSignal(b.signals)
		for _, opts := range b.managerMatches() {
			if err := b.conn.RemoveMatchSignal(opts...); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		if b.Available() {
			if err := b.manager().Call(managerIface+".UnregisterAgent", 0, b.agentPath).Store(); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("failed to unregister agent: %w", err))
			}
		}
		if err := b.conn.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	})
	return errs.ErrorOrNil()
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

func (b *Backend) loop() {
	for {
		select {
		case <-b.done:
			return
		case sig, ok := <-b.signals:
			if !ok {
				return
			}
			if sig.Name == dbusIface+".NameOwnerChanged" {
				b.handleOwnerChanged(sig)
				continue
			}
			if ev := b.translate(sig); ev != nil {
				b.emit(ev)
			}
		}
	}
}

func (b *Backend) handleOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	owner, _ := sig.Body[2].(string)
	if name != connmanDest {
		return
	}
	available := owner != ""
	if available == b.Available() {
		return
	}
	if available {
		b.log.Info("connman appeared")
		b.appeared()
	} else {
		b.log.Warn("connman vanished")
		b.available.UnSet()
	}
	b.emit(wifi.AvailabilityChanged{Available: available})
}

// appeared registers the agent and loads the manager properties.
func (b *Backend) appeared() {
	b.available.Set()
	if err := b.manager().Call(managerIface+".RegisterAgent", 0, b.agentPath).Store(); err != nil {
		b.log.Warn("failed to register agent", "error", err)
	}
	var props map[string]dbus.Variant
	if err := b.manager().Call(managerIface+".GetProperties", 0).Store(&props); err != nil {
		b.log.Warn("failed to read manager properties", "error", err)
		return
	}
	b.mu.Lock()
	b.props = make(map[string]any, len(props))
	for k, v := range props {
		b.props[k] = v.Value()
	}
	b.mu.Unlock()
}

// translate turns a connman signal into an event, or nil when the signal is
// not interesting.
func (b *Backend) translate(sig *dbus.Signal) wifi.Event {
	switch sig.Name {
	case managerIface + ".TechnologyAdded":
		if len(sig.Body) < 2 {
			return nil
		}
		props, _ := sig.Body[1].(map[string]dbus.Variant)
		t := parseTechnology(pathOf(sig.Body[0]), props)
		return wifi.TechnologyAdded{Type: t.Type, Powered: t.Powered}

	case managerIface + ".TechnologyRemoved":
		if len(sig.Body) < 1 {
			return nil
		}
		return wifi.TechnologyRemoved{Type: path.Base(string(pathOf(sig.Body[0])))}

	case managerIface + "." + propertyChanged:
		name, value, ok := propertyOf(sig)
		if !ok {
			return nil
		}
		b.mu.Lock()
		b.props[name] = value.Value()
		b.mu.Unlock()
		return nil

	case technologyIface + "." + propertyChanged:
		if path.Base(string(sig.Path)) != wifi.TechnologyWifi {
			return nil
		}
		name, value, ok := propertyOf(sig)
		if !ok || name != "Powered" {
			return nil
		}
		powered, ok := value.Value().(bool)
		if !ok {
			return nil
		}
		return wifi.PoweredChanged{Powered: powered}

	case serviceIface + "." + propertyChanged:
		b.mu.Lock()
		watched := b.watched[sig.Path]
		b.mu.Unlock()
		if !watched {
			return nil
		}
		name, value, ok := propertyOf(sig)
		if !ok {
			return nil
		}
		switch name {
		case "State":
			s, _ := value.Value().(string)
			return wifi.StateChanged{Path: string(sig.Path), State: wifi.ParseRawState(s)}
		case "Strength":
			s, _ := value.Value().(uint8)
			return wifi.StrengthChanged{Path: string(sig.Path), Strength: s}
		}
	}
	return nil
}

type technology struct {
	Path    dbus.ObjectPath
	Type    string
	Powered bool
}

func (b *Backend) wifiTechnology() (technology, error) {
	if !b.Available() {
		return technology{}, wifi.ErrNotAvailable
	}
	var techs []pathProps
	if err := b.manager().Call(managerIface+".GetTechnologies", 0).Store(&techs); err != nil {
		return technology{}, fmt.Errorf("failed to list technologies: %w", err)
	}
	for _, t := range techs {
		tech := parseTechnology(t.Path, t.Props)
		if tech.Type == wifi.TechnologyWifi {
			return tech, nil
		}
	}
	return technology{}, fmt.Errorf("wifi technology: %w", wifi.ErrNotFound)
}

// pathProps is one entry of the a(oa{sv}) lists connman returns.
type pathProps struct {
	Path  dbus.ObjectPath
	Props map[string]dbus.Variant
}

func parseTechnology(p dbus.ObjectPath, props map[string]dbus.Variant) technology {
	t := technology{Path: p}
	t.Type, _ = value[string](props, "Type")
	t.Powered, _ = value[bool](props, "Powered")
	return t
}

func parseNetwork(p dbus.ObjectPath, props map[string]dbus.Variant) wifi.Network {
	n := wifi.Network{Path: string(p)}
	n.Name, _ = value[string](props, "Name")
	n.Type, _ = value[string](props, "Type")
	n.Security, _ = value[[]string](props, "Security")
	n.Strength, _ = value[uint8](props, "Strength")
	n.Favorite, _ = value[bool](props, "Favorite")
	state, _ := value[string](props, "State")
	n.State = wifi.ParseRawState(state)
	n.Hidden = n.Type == wifi.TechnologyWifi && n.Name == ""

	if ipv4, ok := value[map[string]dbus.Variant](props, "IPv4"); ok {
		n.IPv4.Method, _ = value[string](ipv4, "Method")
		n.IPv4.Address, _ = value[string](ipv4, "Address")
		n.IPv4.Netmask, _ = value[string](ipv4, "Netmask")
		n.IPv4.Gateway, _ = value[string](ipv4, "Gateway")
	}
	n.IPv4.Nameservers, _ = value[[]string](props, "Nameservers")
	return n
}

func value[T any](props map[string]dbus.Variant, key string) (T, bool) {
	var zero T
	v, ok := props[key]
	if !ok {
		return zero, false
	}
	t, ok := v.Value().(T)
	return t, ok
}

func pathOf(v any) dbus.ObjectPath {
	p, _ := v.(dbus.ObjectPath)
	return p
}

func propertyOf(sig *dbus.Signal) (string, dbus.Variant, bool) {
	if len(sig.Body) < 2 {
		return "", dbus.Variant{}, false
	}
	name, ok := sig.Body[0].(string)
	if !ok {
		return "", dbus.Variant{}, false
	}
	v, ok := sig.Body[1].(dbus.Variant)
	return name, v, ok
}

// inputFields lists the requested fields in a stable order.
func inputFields(fields map[string]dbus.Variant) []string {
	out := make([]string, 0, len(fields))
	for name := range fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
