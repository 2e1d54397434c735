package persistence

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
)

// Redis holds the client shared by the redis broadcaster and the readiness check.
type Redis struct {
	Client *redis.Client
	cfg    config.RedisConfig
}

// NewRedis connects to Redis and pings it within ctx. When the ping fails the
// client is still returned alongside the error so callers that can run without
// Redis keep a handle for readiness reporting.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address not configured")
	}
	r := &Redis{
		Client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		cfg: cfg,
	}
	if err := r.Ping(ctx); err != nil {
		return r, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return r, nil
}

// LimiterStorage opens rate limiter storage on the same server and database.
// fiberredis.New panics on an unreachable server, so call it only after NewRedis succeeded.
func (r *Redis) LimiterStorage() (*fiberredis.Storage, error) {
	if r == nil {
		return nil, errors.New("redis client not configured")
	}
	host, rawPort, err := net.SplitHostPort(r.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_ADDR: %w", err)
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_ADDR port: %w", err)
	}
	return fiberredis.New(fiberredis.Config{
		Host:     host,
		Port:     port,
		Password: r.cfg.Password,
		Database: r.cfg.DB,
	}), nil
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
