package session

import (
	"encoding/json"

	"github.com/mossy-p/p2p-signaling/internal/models"
)

// PeerLink is the negotiation side of a direct peer connection.
// Descriptions and candidates are opaque JSON values the controller only
// carries between the link and the signaling relay.
type PeerLink interface {
	CreateOffer() (json.RawMessage, error)
	CreateAnswer() (json.RawMessage, error)
	SetLocalDescription(description json.RawMessage) error
	SetRemoteDescription(description json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error

	// OpenChannel creates the data channel on the offering side. It must
	// be called before CreateOffer so the offer carries it.
	OpenChannel(label string) (DataChannel, error)

	Close() error
}

// DataChannel is the bidirectional application channel of a PeerLink.
// Handlers registered after the channel opened must still observe the
// open event.
type DataChannel interface {
	Send(data []byte) error
	OnOpen(func())
	OnClose(func())
	OnMessage(func(data []byte))
	Close() error
}

// LinkEvents receives the asynchronous events of a PeerLink. Calls may
// arrive on any goroutine.
type LinkEvents interface {
	ICECandidate(candidate json.RawMessage)
	DataChannel(channel DataChannel)
}

// LinkFactory creates a fresh PeerLink reporting to events.
type LinkFactory func(events LinkEvents) (PeerLink, error)

// Signaler delivers messages to the relay.
type Signaler interface {
	Send(msg *models.Message) error
}

// Observer is notified of everything the user should see. Calls are made
// from the controller's loop and must not call back into the controller
// synchronously.
type Observer interface {
	StateChanged(from, to State, peer string)
	LoginRefused(login string)
	ServerError(message string)
	Received(peer string, data []byte)
	NegotiationFailed(err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) StateChanged(State, State, string) {}
func (NopObserver) LoginRefused(string)               {}
func (NopObserver) ServerError(string)                {}
func (NopObserver) Received(string, []byte)           {}
func (NopObserver) NegotiationFailed(error)           {}
