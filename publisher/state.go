package publisher

// State is the broker connection state. Transitions happen only inside the
// publisher's run loop; everything else reads it.
type State int32

// Connection states
const (
	// StateDisconnected means no broker connection exists and no attempt is
	// in progress.
	StateDisconnected State = iota

	// StateConnecting means a connection attempt is in progress or scheduled
	// after a backoff delay.
	StateConnecting

	// StateConnected means publishes are flowing and the publisher is
	// pulling from the buffer.
	StateConnected

	// StateDraining means shutdown was requested: no new items are pulled
	// beyond the flush, and the publisher stops once the buffer empties or
	// the drain deadline passes. Terminal.
	StateDraining
)

// String returns the state name used in logs and tests.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}
