package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jaminalder/tictactoe-web/internal/domain"
)

const keyPrefix = "session:"

// Redis stores sessions as JSON values that expire after ttl of inactivity.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to addr and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return conn, nil
}

// NewRedis wraps an existing client. A zero ttl keeps sessions forever.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (that *Redis) Load(ctx context.Context, id string) (domain.Session, error) {
	response, err := that.client.Get(ctx, keyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	var s domain.Session
	if err = json.Unmarshal([]byte(response), &s); err != nil {
		return domain.Session{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return s, nil
}

func (that *Redis) Save(ctx context.Context, id string, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}
	if err = that.client.Set(ctx, keyPrefix+id, data, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (that *Redis) Close() error {
	return that.client.Close()
}
