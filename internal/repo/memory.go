package repo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"starter/internal/logs"
	"starter/internal/models"
)

// MemoryBackend: хранилище в памяти процесса (database.driver = "").
// Все изменения Unit применяются под одной блокировкой; при ошибке
// затронутые таблицы откатываются к снимку.
type MemoryBackend struct {
	mu     sync.RWMutex
	tables map[string]*memTable
	now    func() time.Time
}

type memTable struct {
	seq  uint
	rows map[uint]any // *T, хранятся копии
}

func Memory() *MemoryBackend {
	return &MemoryBackend{
		tables: make(map[string]*memTable),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

// table вызывается под блокировкой записи.
func (b *MemoryBackend) table(name string) *memTable {
	t, ok := b.tables[name]
	if !ok {
		t = &memTable{rows: make(map[uint]any)}
		b.tables[name] = t
	}
	return t
}

func (b *MemoryBackend) commit(ctx context.Context, ops []op) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	tx := &memTx{b: b, saved: make(map[string]memTable)}
	var total int64
	for _, o := range ops {
		if o.mem == nil {
			tx.rollback()
			return 0, errors.New("operation is not bound to memory backend")
		}
		n, err := o.mem(tx)
		if err != nil {
			tx.rollback()
			return 0, err
		}
		total += n
	}
	return total, nil
}

type memTx struct {
	b     *MemoryBackend
	saved map[string]memTable
}

// table отдаёт таблицу и при первом обращении запоминает её снимок.
func (tx *memTx) table(name string) *memTable {
	t := tx.b.table(name)
	if _, ok := tx.saved[name]; !ok {
		tx.saved[name] = memTable{seq: t.seq, rows: maps.Clone(t.rows)}
	}
	return t
}

func (tx *memTx) rollback() {
	for name, snap := range tx.saved {
		s := snap
		tx.b.tables[name] = &s
	}
}

type memRepo[T any, P models.Ptr[T]] struct {
	b      *MemoryBackend
	schema *Schema[T]
}

func (r *memRepo[T, P]) Schema() *Schema[T] { return r.schema }

func clone[T any](e *T) *T {
	c := *e
	return &c
}

// rows: копии всех записей в порядке id.
func (r *memRepo[T, P]) rows() []*T {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	t := r.b.tables[r.schema.Table]
	if t == nil {
		return nil
	}
	out := make([]*T, 0, len(t.rows))
	for _, v := range t.rows {
		out = append(out, clone(v.(*T)))
	}
	sort.Slice(out, func(i, j int) bool { return P(out[i]).Base().ID < P(out[j]).Base().ID })
	return out
}

func (r *memRepo[T, P]) filtered(q Query, term string) ([]*T, error) {
	conds := make([]Field[T], len(q.Filter))
	for i, c := range q.Filter {
		f, ok := r.schema.Lookup(c.Field)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, r.schema.Entity, c.Field)
		}
		conds[i] = f
	}
	term = strings.ToLower(strings.TrimSpace(term))
	searchable := r.schema.searchable()

	var out []*T
	for _, e := range r.rows() {
		ok := true
		for i, c := range q.Filter {
			if !matchCond(conds[i].Value(e), c) {
				ok = false
				break
			}
		}
		if ok && term != "" {
			ok = false
			for _, f := range searchable {
				s, _ := f.Value(e).(string)
				if strings.Contains(strings.ToLower(s), term) {
					ok = true
					break
				}
			}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRepo[T, P]) ordered(items []*T, orders []Order) error {
	fields := make([]Field[T], len(orders))
	for i, o := range orders {
		f, ok := r.schema.Lookup(o.Field)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, r.schema.Entity, o.Field)
		}
		fields[i] = f
	}
	if len(fields) == 0 {
		return nil
	}
	// rows() уже отсортированы по id, стабильная сортировка сохраняет его как последний ключ
	sort.SliceStable(items, func(i, j int) bool {
		for k, f := range fields {
			c := compareValues(f.Value(items[i]), f.Value(items[j]))
			if c == 0 {
				continue
			}
			if orders[k].Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return nil
}

func (r *memRepo[T, P]) list(q Query, term string) ([]*T, error) {
	items, err := r.filtered(q, term)
	if err != nil {
		return nil, err
	}
	if err := r.ordered(items, q.OrderBy); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *memRepo[T, P]) GetAll(_ context.Context, q Query) ([]*T, error) {
	return r.list(q, "")
}

func (r *memRepo[T, P]) GetPaged(_ context.Context, req PageRequest, q Query) (*Paged[*T], error) {
	req = req.Normalize()
	orders := q.OrderBy
	if f, ok := resolveSort(r.schema, req.SortBy); ok {
		orders = append([]Order{{Field: f.Name, Desc: req.Desc()}}, orders...)
	} else if req.SortBy != "" {
		logs.Logger.Debugf("repo: %s has no sortable field %q, using default order", r.schema.Entity, req.SortBy)
	}
	items, err := r.list(Query{Filter: q.Filter, OrderBy: orders}, req.SearchTerm)
	if err != nil {
		return nil, err
	}
	total := int64(len(items))
	skip := req.Skip()
	if skip > len(items) {
		skip = len(items)
	}
	end := min(skip+req.PageSize, len(items))
	return NewPaged(items[skip:end], total, req.PageNumber, req.PageSize), nil
}

func (r *memRepo[T, P]) GetByID(_ context.Context, id uint, _ ...string) (*T, error) {
	r.b.mu.RLock()
	defer r.b.mu.RUnlock()
	if t := r.b.tables[r.schema.Table]; t != nil {
		if v, ok := t.rows[id]; ok {
			return clone(v.(*T)), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo[T, P]) FindOne(_ context.Context, q Query) (*T, error) {
	items, err := r.list(q, "")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

func (r *memRepo[T, P]) Count(_ context.Context, q Query) (int64, error) {
	items, err := r.filtered(q, "")
	return int64(len(items)), err
}

func (r *memRepo[T, P]) Add(ctx context.Context, e *T) (*T, error) {
	err := enqueue(ctx, r.b, op{mem: func(tx *memTx) (int64, error) {
		t := tx.table(r.schema.Table)
		b := P(e).Base()

		id := b.ID
		if id == 0 {
			id = t.seq + 1
		} else if _, exists := t.rows[id]; exists {
			return 0, fmt.Errorf("%w: %s id=%d", ErrDuplicate, r.schema.Table, id)
		}

		row := clone(e)
		rb := P(row).Base()
		stampInsert(rb, tx.b.now())
		rb.ID = id
		if err := r.checkUnique(t, row); err != nil {
			return 0, err
		}
		t.rows[id] = row
		if id > t.seq {
			t.seq = id
		}
		*b = *rb
		return 1, nil
	}})
	return e, err
}

func (r *memRepo[T, P]) Update(ctx context.Context, e *T) error {
	return enqueue(ctx, r.b, op{mem: func(tx *memTx) (int64, error) {
		t := tx.table(r.schema.Table)
		b := P(e).Base()
		cur, ok := t.rows[b.ID]
		if !ok {
			return 0, fmt.Errorf("%w: %s id=%d", ErrConcurrency, r.schema.Entity, b.ID)
		}
		cb := P(cur.(*T)).Base()
		if cb.RowVersion != b.RowVersion {
			return 0, fmt.Errorf("%w: %s id=%d", ErrConcurrency, r.schema.Entity, b.ID)
		}

		row := clone(e)
		rb := P(row).Base()
		rb.CreatedAt, rb.CreatedByID = cb.CreatedAt, cb.CreatedByID
		rb.RowVersion = cb.RowVersion + 1
		rb.ModifiedAt = tx.b.now()
		if err := r.checkUnique(t, row); err != nil {
			return 0, err
		}
		t.rows[b.ID] = row
		*b = *rb
		return 1, nil
	}})
}

func (r *memRepo[T, P]) Remove(ctx context.Context, e *T) error {
	return enqueue(ctx, r.b, op{mem: func(tx *memTx) (int64, error) {
		t := tx.table(r.schema.Table)
		b := P(e).Base()
		cur, ok := t.rows[b.ID]
		if !ok || P(cur.(*T)).Base().RowVersion != b.RowVersion {
			return 0, fmt.Errorf("%w: %s id=%d", ErrConcurrency, r.schema.Entity, b.ID)
		}
		delete(t.rows, b.ID)
		return 1, nil
	}})
}

func (r *memRepo[T, P]) SaveChanges(ctx context.Context) (int64, error) {
	return saveChanges(ctx, r.b)
}

func (r *memRepo[T, P]) ExportCSV(_ context.Context, q Query, searchTerm string) ([]byte, error) {
	items, err := r.list(q, searchTerm)
	if err != nil {
		return nil, err
	}
	return EncodeCSV(r.schema, items), nil
}

func (r *memRepo[T, P]) ExportXLSX(_ context.Context, q Query, searchTerm string) ([]byte, error) {
	items, err := r.list(q, searchTerm)
	if err != nil {
		return nil, err
	}
	return EncodeXLSX(r.schema, items)
}

// checkUnique повторяет уникальные индексы БД. NULL не конфликтует, как в SQL.
func (r *memRepo[T, P]) checkUnique(t *memTable, row *T) error {
	id := P(row).Base().ID
	for _, set := range r.schema.Unique {
		fields := make([]Field[T], 0, len(set))
		for _, name := range set {
			if f, ok := r.schema.Lookup(name); ok {
				fields = append(fields, f)
			}
		}
		for otherID, v := range t.rows {
			if otherID == id {
				continue
			}
			other := v.(*T)
			same := true
			for _, f := range fields {
				a, b := f.Value(row), f.Value(other)
				if a == nil || b == nil || compareValues(a, b) != 0 {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("%w: %s(%s)", ErrDuplicate, r.schema.Table, strings.Join(set, ","))
			}
		}
	}
	return nil
}

func matchCond(v any, c Cond) bool {
	switch c.Op {
	case OpFold:
		s, _ := v.(string)
		want, _ := c.Value.(string)
		return strings.EqualFold(s, want)
	case OpIn:
		vals, _ := c.Value.([]any)
		for _, x := range vals {
			if equalValues(v, normalize(x)) {
				return true
			}
		}
		return false
	default:
		return equalValues(v, normalize(c.Value))
	}
}

// normalize приводит значения фильтра к типам, которые возвращают аксессоры Field.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case *uint:
		if x == nil {
			return nil
		}
		return int64(*x)
	case float32:
		return float64(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if s, ok := a.(string); ok {
		t, _ := b.(string)
		return s == t
	}
	return compareValues(a, b) == 0
}

// compareValues: nil меньше любого значения; строки сравниваются без учёта регистра.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return strings.Compare(strings.ToLower(x), strings.ToLower(y))
	case int64:
		y, _ := b.(int64)
		return cmpOrdered(x, y)
	case float64:
		y, _ := b.(float64)
		return cmpOrdered(x, y)
	case bool:
		y, _ := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	default:
		if a == b {
			return 0
		}
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func cmpOrdered[V int64 | float64](x, y V) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}
