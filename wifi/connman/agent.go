package connman

import (
	"github.com/godbus/dbus/v5"

	"github.com/shazow/wifibridge/wifi"
)

const (
	agentIface = "net.connman.Agent"

	errCanceled = agentIface + ".Error.Canceled"
)

// agent is the net.connman.Agent object connman calls for credentials.
// Requests are forwarded as events and answered by whoever consumes them.
type agent struct {
	b *Backend
}

func canceled(msg string) *dbus.Error {
	return dbus.NewError(errCanceled, []interface{}{msg})
}

func (a *agent) Release() *dbus.Error {
	a.b.log.Debug("agent released")
	return nil
}

func (a *agent) ReportError(service dbus.ObjectPath, msg string) *dbus.Error {
	a.b.emit(wifi.ErrorReported{Path: string(service), Message: msg})
	return nil
}

func (a *agent) RequestBrowser(service dbus.ObjectPath, url string) *dbus.Error {
	a.b.log.Info("captive portal login is not supported", "path", service, "url", url)
	return canceled("browser login is not supported")
}

func (a *agent) RequestInput(service dbus.ObjectPath, fields map[string]dbus.Variant) (map[string]dbus.Variant, *dbus.Error) {
	reply := make(chan wifi.InputReply, 1)
	ev := wifi.InputRequested{
		Path:   string(service),
		Fields: inputFields(fields),
		Reply:  reply,
	}
	if !a.b.emit(ev) {
		return nil, canceled("agent is shutting down")
	}

	var r wifi.InputReply
	select {
	case r = <-reply:
	case <-a.b.done:
		return nil, canceled("agent is shutting down")
	}
	if r.Err != nil {
		return nil, canceled(r.Err.Error())
	}

	// connman acts on the presence of a key, so empty answers are dropped.
	out := make(map[string]dbus.Variant, len(r.Values))
	for k, v := range r.Values {
		if v == "" {
			continue
		}
		out[k] = dbus.MakeVariant(v)
	}
	return out, nil
}

func (a *agent) Cancel() *dbus.Error {
	a.b.log.Debug("agent request cancelled by connman")
	return nil
}
