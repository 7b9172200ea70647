package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType represents the type of a signaling message
type MessageType string

const (
	MessageTypeLogin     MessageType = "login"
	MessageTypeLogout    MessageType = "logout"
	MessageTypeOffer     MessageType = "offer"
	MessageTypeAnswer    MessageType = "answer"
	MessageTypeCandidate MessageType = "ice-candidate"
	MessageTypeError     MessageType = "error"
)

var (
	ErrMalformed    = errors.New("malformed command")
	ErrUnknownType  = errors.New("unknown command")
	ErrMissingField = errors.New("missing field")
)

// Message is a single signaling frame exchanged with the relay.
// SDP and Candidate are opaque to the relay and passed through unchanged.
type Message struct {
	Type      MessageType     `json:"type"`
	Login     string          `json:"login,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// Known reports whether t belongs to the protocol's closed set of types.
func Known(t MessageType) bool {
	switch t {
	case MessageTypeLogin, MessageTypeLogout, MessageTypeOffer,
		MessageTypeAnswer, MessageTypeCandidate, MessageTypeError:
		return true
	}
	return false
}

// IsRelayed reports whether messages of type t are forwarded peer to peer.
func IsRelayed(t MessageType) bool {
	return t == MessageTypeOffer || t == MessageTypeAnswer || t == MessageTypeCandidate
}

// Parse decodes a raw frame. A frame that is not a JSON object yields
// ErrMalformed; a parsed frame with a type outside the closed set yields
// ErrUnknownType together with the decoded message.
func Parse(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !Known(msg.Type) {
		return &msg, fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}
	return &msg, nil
}

// Validate checks the routing fields each client-originated type requires.
// Payload fields are never inspected.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeCandidate:
		if m.From == "" {
			return fmt.Errorf("%w: from", ErrMissingField)
		}
		if m.To == "" {
			return fmt.Errorf("%w: to", ErrMissingField)
		}
	}
	return nil
}

// Encode serializes the message as a single text frame.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func NewLogin(login string) *Message {
	return &Message{Type: MessageTypeLogin, Login: login}
}

func NewLoginReply(success bool) *Message {
	return &Message{Type: MessageTypeLogin, Success: &success}
}

// NewLogout builds a logout naming login. A non-empty to marks a peer
// hang-up rather than a full logout.
func NewLogout(login, to string) *Message {
	return &Message{Type: MessageTypeLogout, Login: login, To: to}
}

func NewError(text string) *Message {
	return &Message{Type: MessageTypeError, Message: text}
}

func NewOffer(from, to string, sdp json.RawMessage) *Message {
	return &Message{Type: MessageTypeOffer, From: from, To: to, SDP: sdp}
}

func NewAnswer(from, to string, sdp json.RawMessage) *Message {
	return &Message{Type: MessageTypeAnswer, From: from, To: to, SDP: sdp}
}

func NewCandidate(from, to string, candidate json.RawMessage) *Message {
	return &Message{Type: MessageTypeCandidate, From: from, To: to, Candidate: candidate}
}

// Succeeded reports the success flag of a login reply. A missing flag
// counts as failure.
func (m *Message) Succeeded() bool {
	return m.Success != nil && *m.Success
}
