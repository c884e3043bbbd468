package database

import (
	"context"
	"fmt"
	"time"

	"hemodialysis-scheduler/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ConnectRedis returns a client for the configured address, or nil when
// REDIS_ADDR is empty
func ConnectRedis(cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	if cfg.Addr == "" {
		log.Info("redis not configured, slot cache and events disabled")
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.Addr))
	return client, nil
}
