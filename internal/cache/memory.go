package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	val        []byte
	created    time.Time
	lastAccess time.Time
	opt        Options
}

func (e *entry) expired(now time.Time) bool {
	d := deadline(e.created, e.lastAccess, e.opt)
	return !d.IsZero() && !now.Before(d)
}

// Memory: кэш в памяти процесса, без распределённой инвалидации.
type Memory struct {
	mu      sync.Mutex
	items   map[string]*entry
	now     func() time.Time
	lastGC  time.Time
	gcEvery time.Duration
}

func NewMemory() *Memory {
	return &Memory{
		items:   make(map[string]*entry),
		now:     time.Now,
		gcEvery: time.Minute,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	if e.expired(now) {
		delete(m.items, key)
		return nil, ErrMiss
	}
	e.lastAccess = now
	return e.val, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, opt Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.items[key] = &entry{val: val, created: now, lastAccess: now, opt: opt}
	m.gc(now)
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// gc удаляет просроченные записи не чаще gcEvery. Вызывается под m.mu.
func (m *Memory) gc(now time.Time) {
	if now.Sub(m.lastGC) < m.gcEvery {
		return
	}
	m.lastGC = now
	for k, e := range m.items {
		if e.expired(now) {
			delete(m.items, k)
		}
	}
}
