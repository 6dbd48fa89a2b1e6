package mqttc

// ClientState is the session lifecycle state. Numeric values mirror the
// original session state machine's ordering (Invalid precedes the
// zero-valued Initialized) rather than Go's usual zero-value-is-default
// convention, since a freshly zeroed ClientState is meant to read as
// Initialized only when explicitly constructed that way via NewClient.
type ClientState int

const (
	// StateInvalid marks a session whose background loop has finished
	// tearing down after Disconnect; both tables are empty.
	StateInvalid ClientState = -1

	// StateInitialized is the state of a session that has never
	// connected, or whose transport has not yet been established.
	StateInitialized ClientState = 0

	// StateConnected is the state after a successful CONNECT/CONNACK
	// exchange, while the background loop is servicing the transport.
	StateConnected ClientState = 1

	// StateDisconnected is the state after a keep-alive failure or
	// transport error; the background loop will attempt reconnect from
	// here if auto-reconnect is enabled.
	StateDisconnected ClientState = 2

	// StateCleanSession is the state entered by a graceful Disconnect
	// call: a DISCONNECT packet has been sent and the background loop
	// is tearing down rather than reconnecting.
	StateCleanSession ClientState = 3
)

func (s ClientState) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateCleanSession:
		return "clean-session"
	default:
		return "unknown"
	}
}
