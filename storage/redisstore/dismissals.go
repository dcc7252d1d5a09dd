package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"companioncare/config"
	"companioncare/pkg/logger"
)

// Dismissals keeps per-companion sets of dismissed request ids in redis. The
// TTL bounds them to roughly a session: a fresh session sees dismissed
// requests again.
type Dismissals struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.ILogger
}

func NewDismissals(ctx context.Context, cfg config.Config, log logger.ILogger) (*Dismissals, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisHost + ":" + cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect redis", logger.Error(err))
		return nil, err
	}

	log.Info("Redis connected")

	return &Dismissals{client: client, ttl: cfg.DismissalTTL, log: log}, nil
}

func key(companionID string) string {
	return fmt.Sprintf("dismissals:%s", companionID)
}

func (d *Dismissals) Dismiss(ctx context.Context, companionID, requestID string) error {
	k := key(companionID)
	pipe := d.client.TxPipeline()
	pipe.SAdd(ctx, k, requestID)
	pipe.Expire(ctx, k, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: dismiss: %w", err)
	}
	return nil
}

func (d *Dismissals) Dismissed(ctx context.Context, companionID string) (map[string]bool, error) {
	ids, err := d.client.SMembers(ctx, key(companionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: load dismissals: %w", err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (d *Dismissals) Close() error {
	return d.client.Close()
}
