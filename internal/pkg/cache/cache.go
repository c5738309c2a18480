package cache

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberredis "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"

	"github.com/nutrixpert/nutrixpert/internal/pkg/env"
)

// NewClient connects to the Redis server backing the job queue. A failed
// ping is logged, not fatal; the client reconnects on use.
func NewClient(cfg env.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     Addr(cfg.CacheHost, cfg.CachePort),
		Password: cfg.CachePassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis: %v", err)
	} else {
		log.Printf("Successfully connected to Redis: %s", pong)
	}
	return client
}

// NewLimiterStorage returns the Fiber storage used by the API rate limiter,
// on its own Redis database so limiter keys never mix with queue keys.
func NewLimiterStorage(cfg env.Config) fiber.Storage {
	return fiberredis.New(fiberredis.Config{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Password: cfg.CachePassword,
		Database: 1,
	})
}

// Addr formats host and port the way go-redis expects.
func Addr(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}
