package bridge

import (
	"context"
	"sync"

	"github.com/shazow/wifibridge/wifi"
)

const (
	ServiceEnabled  = "serviceEnabled"
	ServiceDisabled = "serviceDisabled"
)

// NetworkInfo describes one network to a caller.
type NetworkInfo struct {
	SSID                   string            `json:"ssid"`
	ProfileID              int               `json:"profileId,omitempty"`
	AvailableSecurityTypes []string          `json:"availableSecurityTypes,omitempty"`
	SignalBars             int               `json:"signalBars"`
	SignalLevel            int               `json:"signalLevel"`
	ConnectState           wifi.ConnectState `json:"connectState,omitempty"`
}

// IPInfo is the IP configuration of a connected network.
type IPInfo struct {
	Interface string `json:"interface"`
	IP        string `json:"ip"`
	Subnet    string `json:"subnet"`
	Gateway   string `json:"gateway"`
	DNS1      string `json:"dns1,omitempty"`
}

// Status is both the getstatus reply and the payload pushed to subscribers.
type Status struct {
	ReturnValue bool         `json:"returnValue"`
	Status      string       `json:"status"`
	WakeOnWlan  string       `json:"wakeOnWlan"`
	Subscribed  bool         `json:"subscribed,omitempty"`
	NetworkInfo *NetworkInfo `json:"networkInfo,omitempty"`
	IPInfo      *IPInfo      `json:"ipInfo,omitempty"`
}

// Subscription receives every status push until cancelled. C is closed when
// the subscription ends.
type Subscription struct {
	C <-chan Status

	id   uint64
	b    *Bridge
	once sync.Once
}

// Cancel ends the subscription.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.b.post(func() { s.b.unsubscribe(s.id) })
	})
}

// GetStatus returns the current status. With subscribe set, the caller also
// receives every later push through the returned Subscription.
func (b *Bridge) GetStatus(ctx context.Context, subscribe bool) (Status, *Subscription, error) {
	var (
		st  Status
		sub *Subscription
		err error
	)
	doErr := b.do(ctx, func() {
		if !b.remote.Available() {
			err = errUnavailable
			return
		}
		b.refreshPowered()
		st = b.status()
		if subscribe {
			sub = b.subscribe()
			st.Subscribed = true
		}
	})
	if doErr != nil {
		return Status{}, nil, doErr
	}
	return st, sub, err
}

// status builds a snapshot of the connection state. Subscribers only ever get
// copies of it.
func (b *Bridge) status() Status {
	st := Status{
		ReturnValue: true,
		Status:      ServiceDisabled,
		WakeOnWlan:  "disabled",
	}
	if b.powered {
		st.Status = ServiceEnabled
	}

	cur := b.current
	if cur == nil {
		return st
	}

	var ip wifi.IPv4
	if n, ok := b.lookup(cur.path); ok {
		if n.Name != "" {
			cur.name = n.Name
		}
		cur.strength = n.Strength
		ip = n.IPv4
	}

	info := &NetworkInfo{
		SSID:         cur.name,
		SignalBars:   wifi.Bars(cur.strength),
		SignalLevel:  int(cur.strength),
		ConnectState: cur.state,
	}
	if p := b.profiles.FindByPath(cur.path); p != nil {
		info.ProfileID = p.ID
	}
	st.NetworkInfo = info

	if cur.state == wifi.IPConfigured {
		st.IPInfo = &IPInfo{
			Interface: b.iface,
			IP:        ip.Address,
			Subnet:    ip.Netmask,
			Gateway:   ip.Gateway,
		}
		if len(ip.Nameservers) > 0 {
			st.IPInfo.DNS1 = ip.Nameservers[0]
		}
	}
	return st
}

// notify pushes the current status to every subscriber. A subscriber whose
// buffer is full misses this push; the others are unaffected.
func (b *Bridge) notify() {
	if len(b.subscribers) == 0 {
		return
	}
	st := b.status()
	for id, ch := range b.subscribers {
		select {
		case ch <- st:
			pushesSent.Inc()
		default:
			pushesDropped.Inc()
			b.log.Warn("subscriber is not keeping up, dropping status push", "subscriber", id)
		}
	}
}

func (b *Bridge) subscribe() *Subscription {
	b.nextSubscriber++
	id := b.nextSubscriber
	ch := make(chan Status, b.subscriberBuffer)
	b.subscribers[id] = ch
	subscriberCount.Add(1)
	b.log.Debug("status subscriber added", "subscriber", id)
	return &Subscription{C: ch, id: id, b: b}
}

func (b *Bridge) unsubscribe(id uint64) {
	ch, ok := b.subscribers[id]
	if !ok {
		return
	}
	close(ch)
	delete(b.subscribers, id)
	subscriberCount.Add(-1)
	b.log.Debug("status subscriber removed", "subscriber", id)
}
