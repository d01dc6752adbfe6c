package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces catalog keys.
const DefaultRedisPrefix = "roomsim"

// RedisCatalog reads room definitions stored as JSON under "<prefix>:room:<id>".
type RedisCatalog struct {
	rdb    *redis.Client
	prefix string
}

// ConnectRedis opens a client and verifies the server is reachable.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisCatalog wraps an open client.
func NewRedisCatalog(rdb *redis.Client, prefix string) *RedisCatalog {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCatalog{rdb: rdb, prefix: prefix}
}

func (c *RedisCatalog) key(roomID int64) string {
	return fmt.Sprintf("%s:room:%d", c.prefix, roomID)
}

// Lookup implements Catalog.
func (c *RedisCatalog) Lookup(ctx context.Context, roomID int64) (Room, error) {
	data, err := c.rdb.Get(ctx, c.key(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	if err != nil {
		return Room{}, fmt.Errorf("failed to GET room %d from Redis: %w", roomID, err)
	}

	var r Room
	if err := json.Unmarshal(data, &r); err != nil {
		return Room{}, fmt.Errorf("failed to unmarshal room %d: %w", roomID, err)
	}
	r.normalize()
	return r, nil
}

// Store writes a room definition. The simulator never calls it; it exists to
// seed the catalog.
func (c *RedisCatalog) Store(ctx context.Context, r Room) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal room %d: %w", r.ID, err)
	}
	if err := c.rdb.Set(ctx, c.key(r.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to SET room %d in Redis: %w", r.ID, err)
	}
	return nil
}
