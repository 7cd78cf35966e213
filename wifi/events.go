package wifi

// Event is a signal raised by a Remote.
type Event interface {
	event()
}

// StateChanged reports a new raw state of a watched network.
type StateChanged struct {
	Path  string
	State RawState
}

// StrengthChanged reports a new signal strength of a watched network.
type StrengthChanged struct {
	Path     string
	Strength uint8
}

// PoweredChanged reports a power change of the WiFi technology.
type PoweredChanged struct {
	Powered bool
}

// TechnologyAdded reports that a technology appeared.
type TechnologyAdded struct {
	Type    string
	Powered bool
}

// TechnologyRemoved reports that a technology disappeared.
type TechnologyRemoved struct {
	Type string
}

// AvailabilityChanged reports that the remote service appeared or vanished.
type AvailabilityChanged struct {
	Available bool
}

// InputReply answers an InputRequested event. Err is ErrInputCanceled when
// the request is refused.
type InputReply struct {
	Values map[string]string
	Err    error
}

// InputRequested is raised when the remote service needs credentials for the
// network it is associating with. Exactly one InputReply must be sent on Reply,
// which is buffered.
type InputRequested struct {
	Path   string
	Fields []string
	Reply  chan<- InputReply
}

// ErrorReported carries an error the remote service reported while
// associating with a network.
type ErrorReported struct {
	Path    string
	Message string
}

// ConnectFailed reports that an asynchronous connect call returned an error.
type ConnectFailed struct {
	Path    string
	Message string
}

func (StateChanged) event()        {}
func (StrengthChanged) event()     {}
func (PoweredChanged) event()      {}
func (TechnologyAdded) event()     {}
func (TechnologyRemoved) event()   {}
func (AvailabilityChanged) event() {}
func (InputRequested) event()      {}
func (ErrorReported) event()       {}
func (ConnectFailed) event()       {}

// Input field names requested by the remote service.
const (
	FieldName       = "Name"
	FieldPassphrase = "Passphrase"
	FieldIdentity   = "Identity"
	FieldUsername   = "Username"
	FieldPassword   = "Password"
	FieldWPS        = "WPS"
)

// IsEnterpriseField reports whether a field is only asked for by IEEE 802.1x
// networks.
func IsEnterpriseField(field string) bool {
	switch field {
	case FieldIdentity, FieldUsername, FieldPassword:
		return true
	}
	return false
}
