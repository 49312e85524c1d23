package db

import (
	"context"
	"time"

	"backend-carbonsaver/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var pingRedisFn = func(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// ConnectRedis returns nil when Redis is not configured or does not answer.
// Without it tracking locks rely on the database alone and live samples reach
// only the subscribers of this instance.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pingRedisFn(ctx, client); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, continuing without it")
		_ = client.Close()
		return nil
	}
	return client
}
