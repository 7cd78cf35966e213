// Package bridge tracks the WiFi connection of a remote network service and
// serves local requests about it.
//
// All state is owned by the goroutine running Bridge.Run. Remote signals and
// local requests are handled there one at a time, so nothing in this package
// takes a lock. Public methods post work to that goroutine and wait for it.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/shazow/wifibridge/wifi"
)

const (
	DefaultInterface        = "wlan0"
	DefaultConnectTimeout   = 90 * time.Second
	DefaultSubscriberBuffer = 16
)

// Info is the static capability descriptor returned by getinfo.
type Info struct {
	MacAddress string `json:"macAddress"`
	WakeOnWlan string `json:"wakeOnWlan"`
	WMM        string `json:"wmm"`
	Roaming    string `json:"roaming"`
	PowerSave  string `json:"powerSave"`
}

// DefaultInfo is reported when nothing better is configured.
var DefaultInfo = Info{
	MacAddress: "ff:ff:ff:ff:ff:ff",
	WakeOnWlan: "disabled",
	WMM:        "disabled",
	Roaming:    "disabled",
	PowerSave:  "enabled",
}

type Config struct {
	Remote wifi.Remote
	Logger *slog.Logger

	// Interface is reported in the ipInfo block.
	Interface string
	Info      Info
	// ConnectTimeout bounds how long a connect request may stay pending.
	// Zero disables the timeout.
	ConnectTimeout time.Duration
	// SubscriberBuffer is the number of pushes queued per subscriber before
	// further pushes to it are dropped.
	SubscriberBuffer int
}

// currentNetwork is the network being associated with, referenced by its
// identity. Name and strength are the last values seen for it.
type currentNetwork struct {
	path     string
	name     string
	strength uint8
	lastRaw  wifi.RawState
	state    wifi.ConnectState
}

type Bridge struct {
	remote           wifi.Remote
	log              *slog.Logger
	iface            string
	info             Info
	connectTimeout   time.Duration
	subscriberBuffer int

	requests chan func()
	done     chan struct{}

	profiles     Registry
	settings     ConnectionSettings
	pending      Pending[ConnectResult]
	connectTimer *time.Timer
	current      *currentNetwork
	powered      bool

	subscribers    map[uint64]chan Status
	nextSubscriber uint64
}

// New creates a Bridge. It does nothing until Run is called.
func New(cfg *Config) *Bridge {
	b := &Bridge{
		remote:           cfg.Remote,
		log:              cfg.Logger,
		iface:            cfg.Interface,
		info:             cfg.Info,
		connectTimeout:   cfg.ConnectTimeout,
		subscriberBuffer: cfg.SubscriberBuffer,
		requests:         make(chan func()),
		done:             make(chan struct{}),
		subscribers:      make(map[uint64]chan Status),
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.iface == "" {
		b.iface = DefaultInterface
	}
	if b.info == (Info{}) {
		b.info = DefaultInfo
	}
	if b.subscriberBuffer <= 0 {
		b.subscriberBuffer = DefaultSubscriberBuffer
	}
	return b
}

// Run dispatches remote events and local requests until ctx is done or the
// remote event stream ends.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)
	defer b.shutdown()

	b.refreshPowered()
	b.log.Info("bridge started", "available", b.remote.Available(), "powered", b.powered)

	events := b.remote.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-b.requests:
			fn()
		case ev, ok := <-events:
			if !ok {
				b.log.Warn("remote event stream closed")
				return nil
			}
			b.handleEvent(ev)
		}
	}
}

// do runs fn on the dispatch goroutine and waits for it to return.
func (b *Bridge) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case b.requests <- func() { fn(); close(finished) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return errStopped
	}
	<-finished
	return nil
}

// post queues fn on the dispatch goroutine without waiting for it to run.
func (b *Bridge) post(fn func()) {
	go func() {
		select {
		case b.requests <- fn:
		case <-b.done:
		}
	}()
}

func (b *Bridge) shutdown() {
	b.stopConnectTimer()
	b.pending.Resolve(func(r *ConnectResult) {
		r.Err = errStopped
	})
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	subscriberCount.Store(0)
	if b.current != nil {
		b.clearCurrent()
	}
}

func (b *Bridge) handleEvent(ev wifi.Event) {
	switch ev := ev.(type) {
	case wifi.StateChanged:
		b.handleStateChanged(ev)
	case wifi.StrengthChanged:
		b.handleStrengthChanged(ev)
	case wifi.PoweredChanged:
		b.handlePowered(ev.Powered)
	case wifi.TechnologyAdded:
		if ev.Type == wifi.TechnologyWifi {
			b.log.Info("wifi technology added", "powered", ev.Powered)
			b.handlePowered(ev.Powered)
		}
	case wifi.TechnologyRemoved:
		if ev.Type == wifi.TechnologyWifi {
			b.log.Info("wifi technology removed")
			b.handlePowered(false)
		}
	case wifi.AvailabilityChanged:
		b.handleAvailability(ev.Available)
	case wifi.InputRequested:
		ev.Reply <- b.answerInput(ev.Path, ev.Fields)
	case wifi.ErrorReported:
		b.handleReportedError(ev)
	case wifi.ConnectFailed:
		b.handleConnectFailed(ev)
	default:
		b.log.Debug("ignoring unknown event", "event", ev)
	}
}

// refreshPowered asks the remote for the power state and caches it.
func (b *Bridge) refreshPowered() bool {
	powered, err := b.remote.Powered()
	if err != nil {
		b.log.Debug("failed to read wifi power state", "error", err)
		powered = false
	}
	b.powered = powered
	return powered
}

// lookup finds a network in the latest remote snapshot.
func (b *Bridge) lookup(path string) (wifi.Network, bool) {
	networks, err := b.remote.Networks()
	if err != nil {
		b.log.Warn("failed to list networks", "error", err)
		return wifi.Network{}, false
	}
	return wifi.FindByPath(networks, path)
}

// clearCurrent stops tracking the current network.
func (b *Bridge) clearCurrent() {
	if err := b.remote.Unwatch(b.current.path); err != nil {
		b.log.Debug("failed to unwatch network", "path", b.current.path, "error", err)
	}
	b.log.Info("stopped tracking network", "path", b.current.path, "name", b.current.name)
	b.current = nil
}
