package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"starter/internal/logs"
	"starter/internal/models"
)

// GormBackend: репозитории поверх gorm (postgres/mysql).
type GormBackend struct{ db *gorm.DB }

func Gorm(db *gorm.DB) *GormBackend { return &GormBackend{db: db} }

func (b *GormBackend) DB() *gorm.DB { return b.db }

func (b *GormBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (b *GormBackend) commit(ctx context.Context, ops []op) (int64, error) {
	var total int64
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, o := range ops {
			if o.gorm == nil {
				return errors.New("operation is not bound to gorm backend")
			}
			n, err := o.gorm(tx)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, translate(err)
	}
	return total, nil
}

type gormRepo[T any, P models.Ptr[T]] struct {
	b      *GormBackend
	schema *Schema[T]
}

func (r *gormRepo[T, P]) Schema() *Schema[T] { return r.schema }

// filtered: выборка с фильтром и поиском, без сортировки и страниц.
func (r *gormRepo[T, P]) filtered(ctx context.Context, q Query, term string) (*gorm.DB, error) {
	tx := r.b.db.WithContext(ctx).Model(new(T))
	for _, c := range q.Filter {
		f, ok := r.schema.Lookup(c.Field)
		if !ok || f.Column == "" {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.schema.Entity, c.Field)
		}
		col := clause.Column{Table: clause.CurrentTable, Name: f.Column}
		switch c.Op {
		case OpFold:
			s, _ := c.Value.(string)
			tx = tx.Where("LOWER("+tx.Statement.Quote(f.Column)+") = ?", strings.ToLower(s))
		case OpIn:
			vals, _ := c.Value.([]any)
			tx = tx.Where(clause.IN{Column: col, Values: vals})
		default:
			tx = tx.Where(clause.Eq{Column: col, Value: c.Value})
		}
	}

	// поиск: OR по всем строковым полям, до подсчёта total
	if term = strings.TrimSpace(term); term != "" {
		fields := r.schema.searchable()
		if len(fields) > 0 {
			parts := make([]string, len(fields))
			args := make([]any, len(fields))
			pattern := likePattern(term)
			for i, f := range fields {
				parts[i] = "LOWER(" + tx.Statement.Quote(f.Column) + ") LIKE ?"
				args[i] = pattern
			}
			tx = tx.Where("("+strings.Join(parts, " OR ")+")", args...)
		}
	}
	return tx, nil
}

func (r *gormRepo[T, P]) ordered(tx *gorm.DB, orders []Order) (*gorm.DB, error) {
	for _, o := range orders {
		f, ok := r.schema.Lookup(o.Field)
		if !ok || f.Column == "" {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.schema.Entity, o.Field)
		}
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: f.Column}, Desc: o.Desc})
	}
	// стабильный порядок по умолчанию
	return tx.Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}), nil
}

func preload(tx *gorm.DB, include []string) *gorm.DB {
	for _, inc := range include {
		tx = tx.Preload(inc)
	}
	return tx
}

func (r *gormRepo[T, P]) GetAll(ctx context.Context, q Query) ([]*T, error) {
	return r.list(ctx, q, "")
}

func (r *gormRepo[T, P]) list(ctx context.Context, q Query, term string) ([]*T, error) {
	tx, err := r.filtered(ctx, q, term)
	if err != nil {
		return nil, err
	}
	if tx, err = r.ordered(tx, q.OrderBy); err != nil {
		return nil, err
	}
	var items []*T
	if err := preload(tx, q.Include).Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (r *gormRepo[T, P]) GetPaged(ctx context.Context, req PageRequest, q Query) (*Paged[*T], error) {
	req = req.Normalize()

	countTx, err := r.filtered(ctx, q, req.SearchTerm)
	if err != nil {
		return nil, err
	}
	var total int64
	if err := countTx.Count(&total).Error; err != nil {
		return nil, translate(err)
	}

	tx, err := r.filtered(ctx, q, req.SearchTerm)
	if err != nil {
		return nil, err
	}
	orders := q.OrderBy
	if f, ok := resolveSort(r.schema, req.SortBy); ok {
		orders = append([]Order{{Field: f.Name, Desc: req.Desc()}}, orders...)
	} else if req.SortBy != "" {
		logs.Logger.Debugf("repo: %s has no sortable field %q, using default order", r.schema.Entity, req.SortBy)
	}
	if tx, err = r.ordered(tx, orders); err != nil {
		return nil, err
	}

	var items []*T
	err = preload(tx, q.Include).Offset(req.Skip()).Limit(req.PageSize).Find(&items).Error
	if err != nil {
		return nil, translate(err)
	}
	return NewPaged(items, total, req.PageNumber, req.PageSize), nil
}

func (r *gormRepo[T, P]) GetByID(ctx context.Context, id uint, include ...string) (*T, error) {
	var e T
	if err := preload(r.b.db.WithContext(ctx), include).First(&e, id).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *gormRepo[T, P]) FindOne(ctx context.Context, q Query) (*T, error) {
	tx, err := r.filtered(ctx, q, "")
	if err != nil {
		return nil, err
	}
	if tx, err = r.ordered(tx, q.OrderBy); err != nil {
		return nil, err
	}
	var e T
	if err := preload(tx, q.Include).Take(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *gormRepo[T, P]) Count(ctx context.Context, q Query) (int64, error) {
	tx, err := r.filtered(ctx, q, "")
	if err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *gormRepo[T, P]) Add(ctx context.Context, e *T) (*T, error) {
	err := enqueue(ctx, r.b, op{gorm: func(tx *gorm.DB) (int64, error) {
		stampInsert(P(e).Base(), time.Now().UTC())
		res := tx.Omit(clause.Associations).Create(e)
		return res.RowsAffected, res.Error
	}})
	return e, err
}

// Update перезаписывает все колонки, кроме id и полей создания.
// Условие по row_version: если запись изменили раньше нас, ErrConcurrency.
func (r *gormRepo[T, P]) Update(ctx context.Context, e *T) error {
	return enqueue(ctx, r.b, op{gorm: func(tx *gorm.DB) (int64, error) {
		b := P(e).Base()
		prev, prevMod := b.RowVersion, b.ModifiedAt
		b.RowVersion = prev + 1
		b.ModifiedAt = time.Now().UTC()

		res := tx.Model(e).
			Where("row_version = ?", prev).
			Select("*").
			Omit("id", "created_at", "created_by_id", clause.Associations).
			Updates(e)
		err := res.Error
		if err == nil && res.RowsAffected == 0 {
			err = fmt.Errorf("%w: %s id=%d", ErrConcurrency, r.schema.Entity, b.ID)
		}
		if err != nil {
			b.RowVersion, b.ModifiedAt = prev, prevMod
			return 0, err
		}
		return res.RowsAffected, nil
	}})
}

func (r *gormRepo[T, P]) Remove(ctx context.Context, e *T) error {
	return enqueue(ctx, r.b, op{gorm: func(tx *gorm.DB) (int64, error) {
		b := P(e).Base()
		res := tx.Where("row_version = ?", b.RowVersion).Delete(e)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, fmt.Errorf("%w: %s id=%d", ErrConcurrency, r.schema.Entity, b.ID)
		}
		return res.RowsAffected, nil
	}})
}

func (r *gormRepo[T, P]) SaveChanges(ctx context.Context) (int64, error) {
	return saveChanges(ctx, r.b)
}

func (r *gormRepo[T, P]) ExportCSV(ctx context.Context, q Query, searchTerm string) ([]byte, error) {
	items, err := r.list(ctx, q, searchTerm)
	if err != nil {
		return nil, err
	}
	return EncodeCSV(r.schema, items), nil
}

func (r *gormRepo[T, P]) ExportXLSX(ctx context.Context, q Query, searchTerm string) ([]byte, error) {
	items, err := r.list(ctx, q, searchTerm)
	if err != nil {
		return nil, err
	}
	return EncodeXLSX(r.schema, items)
}

func stampInsert(b *models.BaseEntity, now time.Time) {
	b.CreatedAt = now
	b.ModifiedAt = now
	b.RowVersion = 1
}
