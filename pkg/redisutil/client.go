package redisutil

import (
	"context"
	"fmt"
	"time"

	"bizledger/pkg/config"

	"github.com/redis/go-redis/v9"
)

// Connect establishes a redis connection with retry logic and pool tuning.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	var lastErr error

	for i := 0; i <= cfg.MaxRetries; i++ {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolTimeout:  4 * time.Second,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			lastErr = fmt.Errorf("failed to ping redis: %w", err)
			client.Close()
			if i < cfg.MaxRetries {
				time.Sleep(cfg.RetryInterval)
			}
			continue
		}

		return client, nil
	}

	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", cfg.MaxRetries, lastErr)
}

// HealthCheck verifies the redis connection is alive.
func HealthCheck(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return client.Ping(ctx).Err()
}
