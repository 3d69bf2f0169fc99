// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"chessonline/internal/rooms"
)

// DefaultEventQueueName is the Redis list the realtime gateway consumes
// room lifecycle events from.
const DefaultEventQueueName = "room_events"

// RoomEventPublisher pushes room lifecycle events onto a Redis list. It
// implements rooms.EventPublisher.
type RoomEventPublisher struct {
	rdb   *redis.Client
	queue string
}

// ConnectRedis builds a client from the environment:
//   - REDIS_ADDR (default "localhost:6379")
//   - REDIS_DB (optional, default 0)
func ConnectRedis(ctx context.Context) (*redis.Client, error) {
	addr := getEnv("REDIS_ADDR", "localhost:6379")
	dbIdx := getEnvInt("REDIS_DB", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIdx,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func NewRoomEventPublisher(rdb *redis.Client) *RoomEventPublisher {
	return &RoomEventPublisher{
		rdb:   rdb,
		queue: getEnv("ROOM_EVENT_QUEUE_NAME", DefaultEventQueueName),
	}
}

// PublishRoomEvent serializes the event to JSON and pushes it onto the
// queue. Does not block callers beyond the network send.
func (p *RoomEventPublisher) PublishRoomEvent(ctx context.Context, ev rooms.RoomEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt is a helper to parse an environment variable as integer, else a default value.
func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
