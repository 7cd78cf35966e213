package wifi

// TechnologyWifi is the technology type name of WiFi networks.
const TechnologyWifi = "wifi"

// IPv4 is the IPv4 configuration reported for a network.
type IPv4 struct {
	Method      string
	Address     string
	Netmask     string
	Gateway     string
	Nameservers []string
}

// Network is a read-only snapshot of one network as reported by the remote
// service. Path is the stable identity of the network.
type Network struct {
	Path     string
	Name     string
	Type     string
	Security []string
	Strength uint8 // 0-100
	State    RawState
	Favorite bool
	Hidden   bool // the network does not broadcast its name
	IPv4     IPv4
}

// Bars returns the signal strength on a 0-5 scale.
func (n Network) Bars() int {
	return Bars(n.Strength)
}

// Bars maps a signal strength percentage to a 0-5 bar scale.
func Bars(strength uint8) int {
	if strength > 100 {
		strength = 100
	}
	return int(strength) * 5 / 100
}

// FindByPath returns the network with the given path.
func FindByPath(networks []Network, path string) (Network, bool) {
	for _, n := range networks {
		if n.Path == path {
			return n, true
		}
	}
	return Network{}, false
}

// FindByName returns the first WiFi network with the given display name.
func FindByName(networks []Network, name string) (Network, bool) {
	for _, n := range networks {
		if n.Type == TechnologyWifi && n.Name == name {
			return n, true
		}
	}
	return Network{}, false
}

// FindHidden returns the first WiFi network that hides its name.
func FindHidden(networks []Network) (Network, bool) {
	for _, n := range networks {
		if n.Type == TechnologyWifi && n.Hidden {
			return n, true
		}
	}
	return Network{}, false
}

// Remote is the external network-management service. Calls return quickly;
// anything that completes later is reported through Events.
type Remote interface {
	// Events returns the stream of remote signals. It is closed when the
	// remote is closed.
	Events() <-chan Event
	// Available reports whether the remote service is reachable.
	Available() bool
	// Powered reports whether the WiFi technology exists and is powered.
	Powered() (bool, error)
	// SetPowered powers the WiFi technology on or off.
	SetPowered(powered bool) error
	// Scan triggers a scan without waiting for its results.
	Scan() error
	// Networks returns the currently known networks.
	Networks() ([]Network, error)
	// Connect requests a connection to the network. The outcome is observed
	// through StateChanged, ErrorReported and ConnectFailed events.
	Connect(path string) error
	// Watch subscribes to state and strength signals of a network.
	Watch(path string) error
	// Unwatch drops a subscription made with Watch.
	Unwatch(path string) error
	// Properties returns the global properties of the remote service.
	Properties() (map[string]any, error)
	// Close releases all resources.
	Close() error
}
