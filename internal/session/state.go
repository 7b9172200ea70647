package session

// State is the local lifecycle of a peer session.
type State int

const (
	Unregistered State = iota
	Registering
	Registered
	NegotiatingOfferer
	NegotiatingAnswerer
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	case NegotiatingOfferer:
		return "negotiating (offerer)"
	case NegotiatingAnswerer:
		return "negotiating (answerer)"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	}
	return "unknown"
}

// Negotiating reports whether s is either negotiation state.
func (s State) Negotiating() bool {
	return s == NegotiatingOfferer || s == NegotiatingAnswerer
}

// Paired reports whether s has a pending or active peer.
func (s State) Paired() bool {
	return s.Negotiating() || s == Connected
}

// Status is a snapshot of the controller for display.
type Status struct {
	State State
	Login string
	Peer  string
}
