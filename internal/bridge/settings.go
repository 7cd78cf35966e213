package bridge

import "github.com/shazow/wifibridge/wifi"

// ConnectionSettings holds the parameters of the connect attempt in progress.
// They are never persisted.
type ConnectionSettings struct {
	Security   wifi.SecurityType
	Hidden     bool
	Name       string
	Passphrase string
	KeyIndex   int // WEP only
}

// Reset restores the defaults.
func (s *ConnectionSettings) Reset() {
	*s = ConnectionSettings{}
}

// SetupFromCallerSecurity derives the security type from a caller tag.
func (s *ConnectionSettings) SetupFromCallerSecurity(tag string) {
	s.Security = wifi.ParseSecurityType(tag)
}

// Populate resets the settings and fills them from a connect-by-name request.
func (s *ConnectionSettings) Populate(req ConnectRequest) error {
	s.Reset()
	s.Hidden = req.Hidden
	if req.SSID == "" {
		return newError(MissingParameter, "ssid is required")
	}
	s.Name = req.SSID

	if req.Security == nil {
		return nil
	}
	s.SetupFromCallerSecurity(req.Security.SecurityType)

	switch s.Security {
	case wifi.SecurityWEP, wifi.SecurityPSK:
		simple := req.Security.SimpleSecurity
		if simple == nil || simple.PassKey == "" {
			return newError(MissingParameter, "passKey is required for %s networks", s.Security)
		}
		s.Passphrase = simple.PassKey
		if s.Security == wifi.SecurityWEP {
			if simple.KeyIndex == nil {
				return newError(MissingParameter, "keyIndex is required for wep networks")
			}
			s.KeyIndex = *simple.KeyIndex
		}
	case wifi.SecurityIEEE8021x:
		return newError(UnsupportedSecurity, "enterprise networks are not supported")
	}
	return nil
}
