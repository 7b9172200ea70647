package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ALLOWED_ORIGINS", "REDIS_ENABLED", "PRESENCE_TTL", "MAX_MESSAGE_SIZE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "7777" {
		t.Errorf("Port = %q, want 7777", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.AllowedOrigins)
	}
	if cfg.Redis.Enabled {
		t.Error("Redis enabled by default")
	}
	if cfg.Redis.PresenceTTL != 24*time.Hour {
		t.Errorf("PresenceTTL = %v, want 24h", cfg.Redis.PresenceTTL)
	}
	if cfg.Socket.MaxMessageSize != 64*1024 {
		t.Errorf("MaxMessageSize = %d, want 65536", cfg.Socket.MaxMessageSize)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PRESENCE_TTL", "90s")
	t.Setenv("SEND_BUFFER", "not-a-number")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %q", cfg.AllowedOrigins)
	}
	if !cfg.Redis.Enabled || cfg.Redis.DB != 3 || cfg.Redis.PresenceTTL != 90*time.Second {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Socket.SendBuffer != 256 {
		t.Errorf("SendBuffer = %d, want fallback 256", cfg.Socket.SendBuffer)
	}
}

func TestLoadPeer_Precedence(t *testing.T) {
	t.Setenv("SIGNALING_URL", "ws://env.test/ws")
	t.Setenv("STUN_SERVER", "")
	t.Setenv("TURN_SERVER", "turn:relay.test")

	cfg := LoadPeer(PeerOptions{SignalingURL: "ws://flag.test/ws"})
	if cfg.SignalingURL != "ws://flag.test/ws" {
		t.Errorf("SignalingURL = %q, want flag value", cfg.SignalingURL)
	}
	if cfg.STUNServer != DefaultSTUN {
		t.Errorf("STUNServer = %q, want default", cfg.STUNServer)
	}

	servers := cfg.ICEServers()
	if len(servers) != 2 {
		t.Fatalf("ICEServers = %d entries, want 2", len(servers))
	}
	if servers[1].URLs[0] != "turn:relay.test:3478?transport=udp" {
		t.Errorf("TURN url = %q", servers[1].URLs[0])
	}
}
