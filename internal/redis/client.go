package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mossy-p/p2p-signaling/config"
	"github.com/mossy-p/p2p-signaling/internal/models"
	"github.com/redis/go-redis/v9"
)

const onlineSetKey = "presence:online"

// ErrNotFound is returned when a login has no presence record
var ErrNotFound = errors.New("presence not found")

// Presence mirrors registry logins into Redis so they can be inspected
// from outside the process. It is never consulted for login decisions.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect initializes the Redis client
func Connect(ctx context.Context, cfg config.RedisConfig) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPresence(client, cfg.PresenceTTL), nil
}

// NewPresence wraps an existing client
func NewPresence(client *redis.Client, ttl time.Duration) *Presence {
	return &Presence{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (p *Presence) Close() error {
	return p.client.Close()
}

// Reset drops records left behind by a previous run. The registry starts
// empty, so the mirror must too.
func (p *Presence) Reset(ctx context.Context) error {
	logins, err := p.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return fmt.Errorf("list presence: %w", err)
	}
	keys := []string{onlineSetKey}
	for _, login := range logins {
		keys = append(keys, presenceKey(login))
	}
	return p.client.Del(ctx, keys...).Err()
}

func (p *Presence) Online(ctx context.Context, login, connID string) error {
	key := presenceKey(login)
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"connId":      connID,
		"connectedAt": time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, p.ttl)
	pipe.SAdd(ctx, onlineSetKey, login)
	pipe.Expire(ctx, onlineSetKey, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark %s online: %w", login, err)
	}
	return nil
}

func (p *Presence) Offline(ctx context.Context, login string) error {
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, presenceKey(login))
	pipe.SRem(ctx, onlineSetKey, login)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mark %s offline: %w", login, err)
	}
	return nil
}

// Get returns the presence record for login
func (p *Presence) Get(ctx context.Context, login string) (*models.Presence, error) {
	fields, err := p.client.HGetAll(ctx, presenceKey(login)).Result()
	if err != nil {
		return nil, fmt.Errorf("get presence for %s: %w", login, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	connectedAt, err := time.Parse(time.RFC3339Nano, fields["connectedAt"])
	if err != nil {
		return nil, fmt.Errorf("parse presence for %s: %w", login, err)
	}
	return &models.Presence{
		Login:       login,
		ConnID:      fields["connId"],
		ConnectedAt: connectedAt,
		Online:      true,
	}, nil
}

func presenceKey(login string) string {
	return "presence:" + login
}
