package models

import "time"

// Presence is the Redis-mirrored view of a logged-in client
type Presence struct {
	Login       string    `json:"login"`
	ConnID      string    `json:"connId"`
	ConnectedAt time.Time `json:"connectedAt"`
	Online      bool      `json:"online"`
}

// EntrySnapshot is a point-in-time copy of one registry entry
type EntrySnapshot struct {
	Login  string `json:"login"`
	ConnID string `json:"connId"`
	Other  string `json:"other,omitempty"`
}
