package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis: тот же контракт поверх redis. Момент создания и политика хранятся
// рядом со значением, TTL ключа пересчитывается при каждом чтении.
type Redis struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type envelope struct {
	Value    []byte        `json:"v"`
	Created  time.Time     `json:"c"`
	Sliding  time.Duration `json:"s,omitempty"`
	Absolute time.Duration `json:"a,omitempty"`
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("redis decode %s: %w", key, err)
	}

	now := r.now()
	opt := Options{Sliding: env.Sliding, Absolute: env.Absolute}
	if d := deadline(env.Created, now, opt); !d.IsZero() {
		if !now.Before(d) {
			_ = r.client.Del(ctx, r.key(key)).Err()
			return nil, ErrMiss
		}
		// продлеваем sliding, не выходя за absolute
		if err := r.client.PExpire(ctx, r.key(key), d.Sub(now)).Err(); err != nil {
			return nil, fmt.Errorf("redis expire %s: %w", key, err)
		}
	}
	return env.Value, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, opt Options) error {
	now := r.now()
	raw, err := json.Marshal(envelope{Value: val, Created: now, Sliding: opt.Sliding, Absolute: opt.Absolute})
	if err != nil {
		return err
	}
	var ttl time.Duration
	if d := deadline(now, now, opt); !d.IsZero() {
		ttl = d.Sub(now)
	}
	if err := r.client.Set(ctx, r.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.client.Del(ctx, full...).Err()
}

// Ping: проверка доступности redis для /readyz.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
