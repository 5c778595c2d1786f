package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/SuleymanovTahir/beauty-crm-sub001/config"
)

// presenceTTL outlives the heartbeat interval so one missed ping does
// not mark a user offline.
const presenceTTL = 90 * time.Second

// Presence records which users hold a live signaling connection, shared
// across relay instances through Redis. A nil Presence disables
// tracking.
type Presence struct {
	client *redis.Client
	ctx    context.Context
}

// ConnectPresence opens the Redis connection for presence tracking.
func ConnectPresence(cfg config.RedisConfig) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Presence{client: client, ctx: ctx}, nil
}

func presenceKey(userID string) string {
	return "presence:" + userID
}

// Online marks the user connected.
func (p *Presence) Online(userID string) {
	if p == nil {
		return
	}
	if err := p.client.Set(p.ctx, presenceKey(userID), "1", presenceTTL).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("presence set failed")
	}
}

// Refresh extends the presence TTL, called on every heartbeat.
func (p *Presence) Refresh(userID string) {
	if p == nil {
		return
	}
	if err := p.client.Expire(p.ctx, presenceKey(userID), presenceTTL).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("presence refresh failed")
	}
}

// Offline clears the user's presence record.
func (p *Presence) Offline(userID string) {
	if p == nil {
		return
	}
	if err := p.client.Del(p.ctx, presenceKey(userID)).Err(); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("presence delete failed")
	}
}

// IsOnline reports whether the user has a live connection anywhere.
func (p *Presence) IsOnline(userID string) (bool, error) {
	if p == nil {
		return false, nil
	}
	n, err := p.client.Exists(p.ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the Redis connection.
func (p *Presence) Close() error {
	return p.client.Close()
}
