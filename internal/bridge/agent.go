package bridge

import "github.com/shazow/wifibridge/wifi"

// answerInput replies to a credential request raised by the remote while it
// associates with the current network. It only reads local state. Fields it
// has no value for are left out of the reply.
func (b *Bridge) answerInput(path string, fields []string) wifi.InputReply {
	if b.current == nil || b.current.path != path {
		b.log.Warn("input requested for untracked network", "path", path)
		return wifi.InputReply{Err: wifi.ErrInputCanceled}
	}

	values := make(map[string]string, len(fields))
	for _, field := range fields {
		switch {
		case wifi.IsEnterpriseField(field):
			b.log.Warn("enterprise credentials requested, cancelling", "path", path, "field", field)
			return wifi.InputReply{Err: wifi.ErrInputCanceled}
		case field == wifi.FieldPassphrase:
			values[field] = b.settings.Passphrase
		case field == wifi.FieldName:
			values[field] = b.settings.Name
		}
	}
	b.log.Debug("answered input request", "path", path, "fields", fields)
	return wifi.InputReply{Values: values}
}

func (b *Bridge) handleReportedError(ev wifi.ErrorReported) {
	b.log.Info("remote reported error", "path", ev.Path, "error", ev.Message)
	b.fail(newError(RemoteError, "%s", ev.Message))
}

func (b *Bridge) handleConnectFailed(ev wifi.ConnectFailed) {
	if b.current == nil || b.current.path != ev.Path {
		b.log.Debug("ignoring connect failure of untracked network", "path", ev.Path)
		return
	}
	b.fail(newError(RemoteError, "%s", ev.Message))
}
