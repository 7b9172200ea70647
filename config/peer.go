package config

import (
	"fmt"

	"github.com/pion/webrtc/v4"
)

const (
	DefaultSignalingURL = "ws://localhost:7777/ws"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
)

// PeerConfig configures the peer client
type PeerConfig struct {
	SignalingURL string
	LogLevel     string

	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// PeerOptions carries command-line overrides. Empty fields fall through
// to the environment, then to the defaults.
type PeerOptions struct {
	SignalingURL string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
}

func LoadPeer(opts PeerOptions) *PeerConfig {
	return &PeerConfig{
		SignalingURL: firstNonEmpty(opts.SignalingURL, getEnv("SIGNALING_URL", DefaultSignalingURL)),
		LogLevel:     getEnv("LOG_LEVEL", "warn"),
		STUNServer:   firstNonEmpty(opts.STUNServer, getEnv("STUN_SERVER", DefaultSTUN)),
		TURNServer:   firstNonEmpty(opts.TURNServer, getEnv("TURN_SERVER", "")),
		TURNUser:     firstNonEmpty(opts.TURNUser, getEnv("TURN_USERNAME", "")),
		TURNPass:     firstNonEmpty(opts.TURNPass, getEnv("TURN_PASSWORD", "")),
	}
}

// ICEServers returns the STUN server plus the TURN endpoints when a TURN
// host is configured.
func (c *PeerConfig) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if c.STUNServer != "" {
		servers = append(servers, webrtc.ICEServer{URLs: []string{c.STUNServer}})
	}
	if c.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs: []string{
				fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
				fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
			},
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
