package repo

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// op: отложенное изменение. Заполнена ветка того бэкенда, которым создан репозиторий.
type op struct {
	gorm func(tx *gorm.DB) (int64, error)
	mem  func(tx *memTx) (int64, error)
}

// Backend: хранилище, поверх которого работают репозитории.
type Backend interface {
	commit(ctx context.Context, ops []op) (int64, error)
	// Ping проверяет доступность хранилища (для /readyz).
	Ping(ctx context.Context) error
}

// Unit: набор ожидающих изменений одного запроса.
// Add/Update/Remove копят изменения, SaveChanges фиксирует их одной транзакцией.
type Unit struct {
	mu      sync.Mutex
	backend Backend
	ops     []op
}

type unitKey struct{}

// WithUnit добавляет в контекст новый Unit, если его там ещё нет.
func WithUnit(ctx context.Context) context.Context {
	if UnitFrom(ctx) != nil {
		return ctx
	}
	return NewUnit(ctx)
}

// NewUnit всегда создаёт отдельный Unit (например, для записи аудита
// независимо от основной операции).
func NewUnit(ctx context.Context) context.Context {
	return context.WithValue(ctx, unitKey{}, &Unit{})
}

func UnitFrom(ctx context.Context) *Unit {
	u, _ := ctx.Value(unitKey{}).(*Unit)
	return u
}

// Pending: число ожидающих изменений.
func (u *Unit) Pending() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.ops)
}

func (u *Unit) enqueue(b Backend, o op) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.backend == nil {
		u.backend = b
	} else if u.backend != b {
		return fmt.Errorf("unit of work spans different backends")
	}
	u.ops = append(u.ops, o)
	return nil
}

func (u *Unit) take() (Backend, []op) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ops := u.ops
	u.ops = nil
	return u.backend, ops
}

func enqueue(ctx context.Context, b Backend, o op) error {
	u := UnitFrom(ctx)
	if u == nil {
		return ErrNoUnit
	}
	return u.enqueue(b, o)
}

// saveChanges фиксирует все изменения Unit из контекста.
func saveChanges(ctx context.Context, b Backend) (int64, error) {
	u := UnitFrom(ctx)
	if u == nil {
		return 0, ErrNoUnit
	}
	owner, ops := u.take()
	if len(ops) == 0 {
		return 0, nil
	}
	if owner != b {
		return 0, fmt.Errorf("unit of work belongs to another backend")
	}
	return b.commit(ctx, ops)
}
