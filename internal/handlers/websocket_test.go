package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/p2p-signaling/config"
	"github.com/mossy-p/p2p-signaling/internal/models"
	"github.com/mossy-p/p2p-signaling/internal/registry"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigins: []string{"*"},
		JWTSecret:      "test-secret",
		Admin:          config.AdminConfig{User: "admin", Password: "hunter2"},
		Socket:         config.SocketConfig{MaxMessageSize: 64 * 1024, SendBuffer: 16},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, presence PresenceReader) (*httptest.Server, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(zap.NewNop(), nil)
	router := NewRouter(context.Background(), Deps{
		Config:   cfg,
		Registry: reg,
		Presence: presence,
		Logger:   zap.NewNop(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, reg
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeMessage(t *testing.T, conn *websocket.Conn, msg *models.Message) []byte {
	t.Helper()
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	return data
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func readMessage(t *testing.T, conn *websocket.Conn) *models.Message {
	t.Helper()
	msg, err := models.Parse(readFrame(t, conn))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return msg
}

func login(t *testing.T, conn *websocket.Conn, name string) bool {
	t.Helper()
	writeMessage(t, conn, models.NewLogin(name))
	reply := readMessage(t, conn)
	if reply.Type != models.MessageTypeLogin {
		t.Fatalf("login reply type = %s, want login", reply.Type)
	}
	return reply.Succeeded()
}

func TestSignaling_DuplicateLogin(t *testing.T) {
	server, _ := newTestServer(t, testConfig(), nil)

	first := dial(t, server)
	if !login(t, first, "alice") {
		t.Fatal("first alice login refused")
	}
	second := dial(t, server)
	if login(t, second, "alice") {
		t.Error("second alice login accepted")
	}
}

func TestSignaling_OfferAnswerRelayedVerbatim(t *testing.T) {
	server, _ := newTestServer(t, testConfig(), nil)

	alice := dial(t, server)
	bob := dial(t, server)
	login(t, alice, "alice")
	login(t, bob, "bob")

	sent := writeMessage(t, alice, models.NewOffer("alice", "bob", json.RawMessage(`{"type":"offer","sdp":"o"}`)))
	if got := readFrame(t, bob); string(got) != string(sent) {
		t.Errorf("bob received %s, want %s", got, sent)
	}

	sent = writeMessage(t, bob, models.NewAnswer("bob", "alice", json.RawMessage(`{"type":"answer","sdp":"a"}`)))
	if got := readFrame(t, alice); string(got) != string(sent) {
		t.Errorf("alice received %s, want %s", got, sent)
	}
}

func TestSignaling_AbruptCloseCascades(t *testing.T) {
	server, reg := newTestServer(t, testConfig(), nil)

	alice := dial(t, server)
	bob := dial(t, server)
	login(t, alice, "alice")
	login(t, bob, "bob")

	writeMessage(t, alice, models.NewOffer("alice", "bob", json.RawMessage(`{}`)))
	readFrame(t, bob)

	// Drop the TCP connection without a close frame.
	alice.UnderlyingConn().Close()

	msg := readMessage(t, bob)
	if msg.Type != models.MessageTypeLogout || msg.Login != "alice" {
		t.Fatalf("bob received %+v, want logout naming alice", msg)
	}
	if _, ok := reg.Lookup("alice"); ok {
		t.Error("alice still registered after close")
	}

	again := dial(t, server)
	if !login(t, again, "alice") {
		t.Error("alice login refused after previous connection closed")
	}
}

func TestSignaling_MalformedFrameKeepsConnection(t *testing.T) {
	server, _ := newTestServer(t, testConfig(), nil)
	conn := dial(t, server)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != models.MessageTypeError || msg.Message != "Malformed command: hello" {
		t.Errorf("reply = %+v, want malformed error", msg)
	}

	writeMessage(t, conn, &models.Message{Type: "shout"})
	msg = readMessage(t, conn)
	if msg.Type != models.MessageTypeError || msg.Message != "Unknown command: shout" {
		t.Errorf("reply = %+v, want unknown error", msg)
	}

	if !login(t, conn, "alice") {
		t.Error("login after protocol errors refused")
	}
}

func TestOriginFilter_RejectsUnlistedOrigin(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"http://app.test"}
	server, _ := newTestServer(t, cfg, nil)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := map[string][]string{"Origin": {"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("dial from unlisted origin succeeded")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Errorf("response = %v, want 403", resp)
	}

	header = map[string][]string{"Origin": {"http://app.test"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial from listed origin: %v", err)
	}
	conn.Close()
}
