package repo

import (
	"context"
	"fmt"

	"starter/internal/models"
)

// Repository: обобщённый доступ к сущностям одного типа.
type Repository[T any] interface {
	GetAll(ctx context.Context, q Query) ([]*T, error)
	GetPaged(ctx context.Context, req PageRequest, q Query) (*Paged[*T], error)
	GetByID(ctx context.Context, id uint, include ...string) (*T, error)
	// FindOne: первая запись по фильтру или ErrNotFound.
	FindOne(ctx context.Context, q Query) (*T, error)
	Count(ctx context.Context, q Query) (int64, error)

	// Add/Update/Remove только ставят изменение в очередь Unit из контекста.
	Add(ctx context.Context, e *T) (*T, error)
	Update(ctx context.Context, e *T) error
	Remove(ctx context.Context, e *T) error
	SaveChanges(ctx context.Context) (int64, error)

	ExportCSV(ctx context.Context, q Query, searchTerm string) ([]byte, error)
	ExportXLSX(ctx context.Context, q Query, searchTerm string) ([]byte, error)

	Schema() *Schema[T]
}

// New создаёт репозиторий для T поверх выбранного бэкенда.
func New[T any, P models.Ptr[T]](b Backend, s *Schema[T]) Repository[T] {
	switch bk := b.(type) {
	case *GormBackend:
		return &gormRepo[T, P]{b: bk, schema: s}
	case *MemoryBackend:
		return &memRepo[T, P]{b: bk, schema: s}
	default:
		panic(fmt.Sprintf("repo: unsupported backend %T", b))
	}
}

// resolveSort возвращает поле сортировки; false: поле не найдено
// (запрос выполняется в порядке по умолчанию, по id).
func resolveSort[T any](s *Schema[T], sortBy string) (Field[T], bool) {
	if sortBy == "" {
		return Field[T]{}, false
	}
	f, ok := s.Lookup(sortBy)
	if !ok || !f.Sortable || f.Column == "" {
		return Field[T]{}, false
	}
	return f, true
}
