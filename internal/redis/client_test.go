package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestPresence connects to the Redis named by REDIS_ADDR and skips the
// test when none is configured.
func newTestPresence(t *testing.T) *Presence {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s unavailable: %v", addr, err)
	}

	presence := NewPresence(client, time.Minute)
	if err := presence.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	t.Cleanup(func() {
		presence.Reset(context.Background())
		presence.Close()
	})
	return presence
}

func TestPresence_OnlineOffline(t *testing.T) {
	presence := newTestPresence(t)
	ctx := context.Background()

	if err := presence.Online(ctx, "alice", "conn-1"); err != nil {
		t.Fatalf("Online: %v", err)
	}

	record, err := presence.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.ConnID != "conn-1" || !record.Online {
		t.Errorf("record = %+v", record)
	}
	if count, _ := presence.client.SCard(ctx, onlineSetKey).Result(); count != 1 {
		t.Errorf("online set size = %d, want 1", count)
	}

	if err := presence.Offline(ctx, "alice"); err != nil {
		t.Fatalf("Offline: %v", err)
	}
	if _, err := presence.Get(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after offline error = %v, want ErrNotFound", err)
	}
}

func TestPresence_ResetClearsPreviousRun(t *testing.T) {
	presence := newTestPresence(t)
	ctx := context.Background()

	presence.Online(ctx, "alice", "conn-1")
	presence.Online(ctx, "bob", "conn-2")

	if err := presence.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if count, _ := presence.client.SCard(ctx, onlineSetKey).Result(); count != 0 {
		t.Errorf("online set size after reset = %d, want 0", count)
	}
	if _, err := presence.Get(ctx, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after reset error = %v, want ErrNotFound", err)
	}
}
