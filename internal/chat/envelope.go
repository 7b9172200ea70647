// Package chat defines what peers put on the data channel.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrEmptyText = errors.New("empty message")

// Envelope is one chat line sent over the data channel.
type Envelope struct {
	From   string    `msgpack:"from"`
	Text   string    `msgpack:"text"`
	SentAt time.Time `msgpack:"sentAt"`
}

func New(from, text string) Envelope {
	return Envelope{From: from, Text: text, SentAt: time.Now()}
}

func (e Envelope) Encode() ([]byte, error) {
	if strings.TrimSpace(e.Text) == "" {
		return nil, ErrEmptyText
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses data as an Envelope. Payloads from peers that do not speak
// msgpack fail here and can be shown raw.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}
