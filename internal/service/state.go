package service

// State is the registration state of a coordinator. Exactly one state
// holds at any time.
type State int

const (
	// Unregistered is the initial state, and the state after Unregister.
	Unregistered State = iota
	// Registered means this process owns the bus name and receives
	// activation calls.
	Registered
	// Forwarding means another process owns the name; invocations must be
	// routed to it through Forward.
	Forwarding
	// Failed means the claim attempt errored for a reason other than
	// ordinary ownership contention.
	Failed
)

func (s State) String() string {
	switch s {
	case Registered:
		return "registered"
	case Forwarding:
		return "forwarding"
	case Failed:
		return "failed"
	default:
		return "unregistered"
	}
}
