package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrExpired is returned by Redis.Get for unknown or expired keys.
var ErrExpired = errors.New("artifact not found or expired")

// Redis keeps artifacts in Redis for TTL and serves them back by key.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	keyNS  string
}

func NewRedis(redisURL string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return NewRedisClient(c, ttl), nil
}

func NewRedisClient(c *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Redis{client: c, ttl: ttl, keyNS: "artifact"}
}

func (r *Redis) key(id string) string { return fmt.Sprintf("%s:%s", r.keyNS, id) }

// Deliver stores a under a fresh id and returns its /artifacts path.
func (r *Redis) Deliver(ctx context.Context, a Artifact) (string, error) {
	id := uuid.NewString()
	k := r.key(id)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, map[string]interface{}{
			"name": a.Name,
			"mime": a.MIME,
			"data": a.Data,
		})
		p.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	log.Info().Str("id", id).Str("name", a.Name).Dur("ttl", r.ttl).Msg("artifact cached in redis")
	return "/artifacts/" + id, nil
}

// Get returns a stored artifact.
func (r *Redis) Get(ctx context.Context, id string) (*Artifact, error) {
	res, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrExpired
	}
	return &Artifact{Name: res["name"], MIME: res["mime"], Data: []byte(res["data"])}, nil
}

func (r *Redis) Close() error { return r.client.Close() }
