package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/fintrack/backend/internal/config"
)

// InitRedis initializes the Redis client used for the token blacklist.
// The API works without Redis (logout becomes a no-op), so a failed
// connection returns nil rather than aborting startup.
func InitRedis(cfg *config.Config) *redis.Client {
	addr := cfg.Redis.Host + ":" + cfg.Redis.Port
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("Redis connection failed, continuing without Redis: %v", err)
		return nil
	}

	log.Println("Redis connection established")
	return rdb
}
