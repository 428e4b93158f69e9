package service

import (
	"context"

	"starter/internal/models"
	"starter/internal/repo"
)

// Mapper: преобразования сущность <-> DTO.
// Apply переносит изменяемые поля DTO в загруженную сущность (id и служебные
// поля не трогает).
type Mapper[T any, D models.DTO] struct {
	ToDTO    func(*T) D
	ToEntity func(D) *T
	Apply    func(*T, D)
}

// IncludeHook подгружает связанные данные, нужные для DTO.
type IncludeHook[T any] func(ctx context.Context, items []*T) error

// Hooks: точки расширения конкретного сервиса.
type Hooks[T any, D models.DTO] struct {
	Include IncludeHook[T]
	// Validate вызывается перед созданием и обновлением; existing == nil при создании.
	Validate func(ctx context.Context, dto D, existing *T) error
	// BeforeDelete ставит в тот же Unit удаление зависимых записей.
	BeforeDelete func(ctx context.Context, e *T) error
}

// CRUD: обобщённый сервис над репозиторием (маппинг DTO, штампы автора,
// аудит изменений).
type CRUD[T any, P models.Ptr[T], D models.DTO] struct {
	repo   repo.Repository[T]
	mapper Mapper[T, D]
	hooks  Hooks[T, D]
	audit  AuditSink
}

func NewCRUD[T any, P models.Ptr[T], D models.DTO](r repo.Repository[T], m Mapper[T, D], audit AuditSink, h Hooks[T, D]) *CRUD[T, P, D] {
	if audit == nil {
		audit = NopAudit{}
	}
	return &CRUD[T, P, D]{repo: r, mapper: m, hooks: h, audit: audit}
}

func (s *CRUD[T, P, D]) entity() string { return s.repo.Schema().Entity }

func (s *CRUD[T, P, D]) include(ctx context.Context, items []*T) error {
	if s.hooks.Include == nil || len(items) == 0 {
		return nil
	}
	return s.hooks.Include(ctx, items)
}

func (s *CRUD[T, P, D]) toDTOs(ctx context.Context, items []*T) ([]D, error) {
	if err := s.include(ctx, items); err != nil {
		return nil, err
	}
	out := make([]D, len(items))
	for i, e := range items {
		out[i] = s.mapper.ToDTO(e)
	}
	return out, nil
}

func (s *CRUD[T, P, D]) one(ctx context.Context, e *T) (D, error) {
	var zero D
	if err := s.include(ctx, []*T{e}); err != nil {
		return zero, err
	}
	return s.mapper.ToDTO(e), nil
}

func (s *CRUD[T, P, D]) GetAll(ctx context.Context, q repo.Query) ([]D, error) {
	items, err := s.repo.GetAll(ctx, q)
	if err != nil {
		return nil, err
	}
	return s.toDTOs(ctx, items)
}

func (s *CRUD[T, P, D]) GetPaged(ctx context.Context, req repo.PageRequest, q repo.Query) (*repo.Paged[D], error) {
	page, err := s.repo.GetPaged(ctx, req, q)
	if err != nil {
		return nil, err
	}
	if err := s.include(ctx, page.Items); err != nil {
		return nil, err
	}
	return repo.MapPaged(page, s.mapper.ToDTO), nil
}

func (s *CRUD[T, P, D]) GetByID(ctx context.Context, id uint) (D, error) {
	e, err := s.Entity(ctx, id)
	if err != nil {
		var zero D
		return zero, err
	}
	return s.one(ctx, e)
}

// Entity: сущность без маппинга; отсутствие даёт ErrNotFound.
func (s *CRUD[T, P, D]) Entity(ctx context.Context, id uint) (*T, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, s.entity(), id)
	}
	return e, nil
}

func (s *CRUD[T, P, D]) Create(ctx context.Context, actor Actor, dto D) (D, error) {
	var zero D
	if s.hooks.Validate != nil {
		if err := s.hooks.Validate(ctx, dto, nil); err != nil {
			return zero, err
		}
	}
	e := s.mapper.ToEntity(dto)
	if err := s.Insert(ctx, actor, e); err != nil {
		return zero, err
	}
	return s.one(ctx, e)
}

// Insert сохраняет уже собранную сущность: штампы автора, SaveChanges, аудит.
func (s *CRUD[T, P, D]) Insert(ctx context.Context, actor Actor, e *T) error {
	b := P(e).Base()
	b.ID = 0
	b.CreatedByID, b.ModifiedByID = actor.UserID, actor.UserID

	ctx = repo.WithUnit(ctx)
	if _, err := s.repo.Add(ctx, e); err != nil {
		return err
	}
	if _, err := s.repo.SaveChanges(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, s.entity(), b.ID, models.AuditCreate, snapshot(s.repo.Schema(), e))
	return nil
}

func (s *CRUD[T, P, D]) Update(ctx context.Context, actor Actor, id uint, dto D) (D, error) {
	var zero D
	e, err := s.Entity(ctx, id)
	if err != nil {
		return zero, err
	}
	if s.hooks.Validate != nil {
		if err := s.hooks.Validate(ctx, dto, e); err != nil {
			return zero, err
		}
	}
	before := snapshot(s.repo.Schema(), e)
	s.mapper.Apply(e, dto)
	// версия из DTO: клиент обновляет то, что видел
	if v := dto.Version(); v != 0 {
		P(e).Base().RowVersion = v
	}
	if err := s.Save(ctx, actor, e, before); err != nil {
		return zero, err
	}
	return s.one(ctx, e)
}

// Save фиксирует изменения загруженной сущности. before: снимок до изменений
// для журнала (nil: без диффа).
func (s *CRUD[T, P, D]) Save(ctx context.Context, actor Actor, e *T, before map[string]string) error {
	b := P(e).Base()
	b.ModifiedByID = actor.UserID

	ctx = repo.WithUnit(ctx)
	if err := s.repo.Update(ctx, e); err != nil {
		return err
	}
	if _, err := s.repo.SaveChanges(ctx); err != nil {
		return err
	}
	var changes any
	if before != nil {
		changes = diff(before, snapshot(s.repo.Schema(), e))
	}
	s.audit.Record(ctx, actor, s.entity(), b.ID, models.AuditUpdate, changes)
	return nil
}

func (s *CRUD[T, P, D]) Delete(ctx context.Context, actor Actor, id uint) (bool, error) {
	e, err := s.Entity(ctx, id)
	if err != nil {
		return false, err
	}
	ctx = repo.WithUnit(ctx)
	if s.hooks.BeforeDelete != nil {
		if err := s.hooks.BeforeDelete(ctx, e); err != nil {
			return false, err
		}
	}
	if err := s.repo.Remove(ctx, e); err != nil {
		return false, err
	}
	n, err := s.repo.SaveChanges(ctx)
	if err != nil {
		return false, err
	}
	s.audit.Record(ctx, actor, s.entity(), id, models.AuditDelete, snapshot(s.repo.Schema(), e))
	return n > 0, nil
}

func (s *CRUD[T, P, D]) ExportCSV(ctx context.Context, q repo.Query, searchTerm string) ([]byte, error) {
	return s.repo.ExportCSV(ctx, q, searchTerm)
}

func (s *CRUD[T, P, D]) ExportXLSX(ctx context.Context, q repo.Query, searchTerm string) ([]byte, error) {
	return s.repo.ExportXLSX(ctx, q, searchTerm)
}

// snapshot: значения полей реестра по именам.
func snapshot[T any](s *repo.Schema[T], e *T) map[string]string {
	h, row := s.Header(), s.Row(e)
	out := make(map[string]string, len(h))
	for i, name := range h {
		out[name] = row[i]
	}
	return out
}

type change struct {
	Old string `json:"old"`
	New string `json:"new"`
}

var auditIgnored = map[string]bool{"ModifiedAt": true, "ModifiedById": true}

func diff(before, after map[string]string) map[string]change {
	out := make(map[string]change)
	for k, nv := range after {
		if auditIgnored[k] {
			continue
		}
		if ov := before[k]; ov != nv {
			out[k] = change{Old: ov, New: nv}
		}
	}
	return out
}
