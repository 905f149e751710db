package connection

// State is the Connection Manager's lifecycle state.
//
// Transitions:
//
//	Idle, Closed, ManuallyClosed, Retrying --Connect--> Connecting
//	Connecting --open--> Open
//	Connecting, Open --close--> Retrying (budget left) or Closed (exhausted)
//	Retrying --timer--> Connecting
//	any --Disconnect--> ManuallyClosed
type State int

const (
	// StateIdle means Connect has never been called.
	StateIdle State = iota

	// StateConnecting means a transport is being opened.
	StateConnecting

	// StateOpen means the transport is open.
	StateOpen

	// StateRetrying means a reconnect attempt is scheduled.
	StateRetrying

	// StateClosed means the last transport closed and the retry budget is spent.
	StateClosed

	// StateManuallyClosed means Disconnect was called; nothing reconnects
	// until the next Connect.
	StateManuallyClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateClosed:
		return "closed"
	case StateManuallyClosed:
		return "manually_closed"
	default:
		return "unknown"
	}
}

// ReadyState is a transport's own state.
type ReadyState int32

const (
	ReadyConnecting ReadyState = iota
	ReadyOpen
	ReadyClosing
	ReadyClosed
)

func (s ReadyState) String() string {
	switch s {
	case ReadyConnecting:
		return "connecting"
	case ReadyOpen:
		return "open"
	case ReadyClosing:
		return "closing"
	case ReadyClosed:
		return "closed"
	default:
		return "unknown"
	}
}
