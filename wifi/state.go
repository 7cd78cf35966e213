package wifi

// RawState is the lifecycle state of a network as the remote service reports it.
type RawState int

const (
	StateUnknown RawState = iota
	StateIdle
	StateAssociation
	StateConfiguration
	StateReady
	StateOnline
	StateDisconnect
	StateFailure
)

var rawStateNames = map[RawState]string{
	StateIdle:          "idle",
	StateAssociation:   "association",
	StateConfiguration: "configuration",
	StateReady:         "ready",
	StateOnline:        "online",
	StateDisconnect:    "disconnect",
	StateFailure:       "failure",
}

func (s RawState) String() string {
	if name, ok := rawStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseRawState parses a remote state name. Unrecognized names are StateUnknown.
func ParseRawState(name string) RawState {
	for s, n := range rawStateNames {
		if n == name {
			return s
		}
	}
	return StateUnknown
}

// Connectable reports whether a connect may be requested from this state.
func (s RawState) Connectable() bool {
	return s == StateIdle || s == StateFailure
}

// InProgress reports whether an association attempt is still under way.
func (s RawState) InProgress() bool {
	return s == StateAssociation || s == StateConfiguration
}

// ConnectState is the caller-visible connection state.
type ConnectState string

const (
	NotAssociated     ConnectState = "notAssociated"
	Associating       ConnectState = "associating"
	Associated        ConnectState = "associated"
	IPConfigured      ConnectState = "ipConfigured"
	AssociationFailed ConnectState = "associationFailed"
	IPFailed          ConnectState = "ipFailed"
)

// Connected reports whether the state counts as an established association.
func (s ConnectState) Connected() bool {
	return s == Associated || s == IPConfigured
}

// Translate maps a raw state, given the raw state observed before it, to the
// caller-visible vocabulary. A failure is attributed to the phase that was in
// progress when it happened.
func Translate(raw, previous RawState) ConnectState {
	switch raw {
	case StateAssociation:
		return Associating
	case StateConfiguration:
		return Associated
	case StateReady, StateOnline:
		return IPConfigured
	case StateFailure:
		switch previous {
		case StateAssociation:
			return AssociationFailed
		case StateConfiguration:
			return IPFailed
		}
	}
	return NotAssociated
}
