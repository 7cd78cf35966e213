package wifi

// SecurityType represents the security protocol used for a connect attempt.
type SecurityType int

const (
	SecurityNone SecurityType = iota
	SecurityWEP
	SecurityPSK
	SecurityIEEE8021x
	SecurityWPS
)

func (s SecurityType) String() string {
	switch s {
	case SecurityWEP:
		return "wep"
	case SecurityPSK:
		return "psk"
	case SecurityIEEE8021x:
		return "ieee8021x"
	case SecurityWPS:
		return "wps"
	}
	return "none"
}

// ParseSecurityType maps a caller-supplied security tag to a SecurityType.
// Unknown tags are SecurityNone.
func ParseSecurityType(tag string) SecurityType {
	switch tag {
	case "wep":
		return SecurityWEP
	case "wpa-personal", "wapi-psk":
		return SecurityPSK
	case "enterprise", "wapi-cert":
		return SecurityIEEE8021x
	}
	return SecurityNone
}

// CallerSecurity maps a remote security tag to the caller vocabulary.
func CallerSecurity(remote string) string {
	switch remote {
	case "psk":
		return "wpa-personal"
	case "ieee8021x":
		return "enterprise"
	case "wep":
		return "wep"
	}
	return "none"
}

// CallerSecurityList maps every remote security tag of a network, dropping
// duplicates while keeping the original order.
func CallerSecurityList(remote []string) []string {
	out := make([]string, 0, len(remote))
	seen := make(map[string]bool, len(remote))
	for _, tag := range remote {
		s := CallerSecurity(tag)
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
