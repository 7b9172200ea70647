// Package peerlink implements the session peer-link capability on top of
// pion/webrtc.
package peerlink

import (
	"encoding/json"
	"fmt"

	"github.com/mossy-p/p2p-signaling/internal/session"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// Link wraps a single pion PeerConnection.
type Link struct {
	pc  *webrtc.PeerConnection
	log *zap.Logger
}

var _ session.PeerLink = (*Link)(nil)

// NewFactory returns a session.LinkFactory creating links that gather
// candidates against iceServers.
func NewFactory(iceServers []webrtc.ICEServer, logger *zap.Logger) session.LinkFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(events session.LinkEvents) (session.PeerLink, error) {
		return New(webrtc.Configuration{ICEServers: iceServers}, events, logger)
	}
}

// New creates a PeerConnection and forwards its candidate and incoming
// channel events to events.
func New(config webrtc.Configuration, events session.LinkEvents, logger *zap.Logger) (*Link, error) {
	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	link := &Link{pc: pc, log: logger.With(zap.String("component", "peerlink"))}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		raw, err := json.Marshal(candidate.ToJSON())
		if err != nil {
			link.log.Warn("failed to encode candidate", zap.Error(err))
			return
		}
		events.ICECandidate(raw)
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		events.DataChannel(&Channel{dc: dc})
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		link.log.Debug("ice connection state", zap.Stringer("state", state))
	})

	return link, nil
}

func (l *Link) CreateOffer() (json.RawMessage, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	return json.Marshal(offer)
}

func (l *Link) CreateAnswer() (json.RawMessage, error) {
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	return json.Marshal(answer)
}

func (l *Link) SetLocalDescription(raw json.RawMessage) error {
	desc, err := decodeDescription(raw)
	if err != nil {
		return err
	}
	return l.pc.SetLocalDescription(desc)
}

func (l *Link) SetRemoteDescription(raw json.RawMessage) error {
	desc, err := decodeDescription(raw)
	if err != nil {
		return err
	}
	return l.pc.SetRemoteDescription(desc)
}

func (l *Link) AddICECandidate(raw json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		return fmt.Errorf("parse ICE candidate: %w", err)
	}
	return l.pc.AddICECandidate(candidate)
}

func (l *Link) OpenChannel(label string) (session.DataChannel, error) {
	ordered := true
	dc, err := l.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return &Channel{dc: dc}, nil
}

func (l *Link) Close() error {
	return l.pc.Close()
}

func decodeDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, fmt.Errorf("parse session description: %w", err)
	}
	return desc, nil
}

// Channel adapts a pion DataChannel.
type Channel struct {
	dc *webrtc.DataChannel
}

var _ session.DataChannel = (*Channel)(nil)

func (c *Channel) Send(data []byte) error { return c.dc.Send(data) }

// OnOpen registers f. pion fires the handler immediately when the channel
// is already open.
func (c *Channel) OnOpen(f func()) { c.dc.OnOpen(f) }

func (c *Channel) OnClose(f func()) { c.dc.OnClose(f) }

func (c *Channel) OnMessage(f func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f(msg.Data)
	})
}

func (c *Channel) Close() error { return c.dc.Close() }
