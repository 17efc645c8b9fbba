package link

// State is what the arbiter is waiting for.
type State int

// States
const (
	// StateIdle means no radio operation is outstanding and a transmit
	// may be started.
	StateIdle State = iota
	// StateAwaitingTransmit means a transmit was started and its completion
	// has not been handled yet.
	StateAwaitingTransmit
	// StateAwaitingReceive means the transceiver is listening.
	StateAwaitingReceive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingTransmit:
		return "awaiting-transmit"
	case StateAwaitingReceive:
		return "awaiting-receive"
	}
	return "unknown"
}
