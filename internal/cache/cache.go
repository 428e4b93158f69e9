package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss: ключа нет или срок истёк.
var ErrMiss = errors.New("cache miss")

// Options: политика истечения записи.
// Sliding продлевается при каждом чтении, Absolute считается от момента записи.
// Нулевое значение означает "без ограничения".
type Options struct {
	Sliding  time.Duration
	Absolute time.Duration
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, opt Options) error
	Delete(ctx context.Context, keys ...string) error
}

// GetJSON/SetJSON: хелперы поверх Cache.
func GetJSON[V any](ctx context.Context, c Cache, key string) (V, error) {
	var v V
	raw, err := c.Get(ctx, key)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(raw, &v)
	return v, err
}

func SetJSON(ctx context.Context, c Cache, key string, v any, opt Options) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, opt)
}

// deadline: ближайший момент истечения с учётом обеих политик.
func deadline(created, lastAccess time.Time, opt Options) time.Time {
	var d time.Time
	if opt.Absolute > 0 {
		d = created.Add(opt.Absolute)
	}
	if opt.Sliding > 0 {
		s := lastAccess.Add(opt.Sliding)
		if d.IsZero() || s.Before(d) {
			d = s
		}
	}
	return d
}
