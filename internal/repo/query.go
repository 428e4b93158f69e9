package repo

import (
	"strings"
)

type Op int

const (
	OpEq Op = iota
	// OpFold: равенство строк без учёта регистра.
	OpFold
	// OpIn: значение является срезом.
	OpIn
)

// Cond: условие фильтра по полю из реестра.
type Cond struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, v any) Cond { return Cond{Field: field, Op: OpEq, Value: v} }

func EqFold(field, v string) Cond { return Cond{Field: field, Op: OpFold, Value: v} }

func In[V any](field string, vs []V) Cond {
	vals := make([]any, len(vs))
	for i, v := range vs {
		vals[i] = v
	}
	return Cond{Field: field, Op: OpIn, Value: vals}
}

type Order struct {
	Field string
	Desc  bool
}

// Query: фильтр, сортировка и подгружаемые связи (gorm Preload).
type Query struct {
	Filter  []Cond
	OrderBy []Order
	Include []string
}

func Where(conds ...Cond) Query { return Query{Filter: conds} }

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type PageRequest struct {
	PageNumber    int    `json:"pageNumber"`
	PageSize      int    `json:"pageSize"`
	SearchTerm    string `json:"searchTerm,omitempty"`
	SortBy        string `json:"sortBy,omitempty"`
	SortDirection string `json:"sortDirection,omitempty"` // asc|desc
}

// Normalize приводит номер/размер страницы к допустимым значениям.
func (p PageRequest) Normalize() PageRequest {
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	p.SearchTerm = strings.TrimSpace(p.SearchTerm)
	p.SortBy = strings.TrimSpace(p.SortBy)
	return p
}

func (p PageRequest) Desc() bool { return strings.EqualFold(p.SortDirection, "desc") }

func (p PageRequest) Skip() int { return (p.PageNumber - 1) * p.PageSize }

type Paged[T any] struct {
	Items       []T   `json:"items"`
	TotalCount  int64 `json:"totalCount"`
	PageNumber  int   `json:"pageNumber"`
	PageSize    int   `json:"pageSize"`
	TotalPages  int   `json:"totalPages"`
	HasPrevious bool  `json:"hasPrevious"`
	HasNext     bool  `json:"hasNext"`
}

func NewPaged[T any](items []T, total int64, page, size int) *Paged[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return &Paged[T]{
		Items:       items,
		TotalCount:  total,
		PageNumber:  page,
		PageSize:    size,
		TotalPages:  pages,
		HasPrevious: page > 1,
		HasNext:     page < pages,
	}
}

// MapPaged переносит метаданные страницы, преобразуя элементы.
func MapPaged[T, U any](p *Paged[T], fn func(T) U) *Paged[U] {
	items := make([]U, len(p.Items))
	for i, it := range p.Items {
		items[i] = fn(it)
	}
	return &Paged[U]{
		Items:       items,
		TotalCount:  p.TotalCount,
		PageNumber:  p.PageNumber,
		PageSize:    p.PageSize,
		TotalPages:  p.TotalPages,
		HasPrevious: p.HasPrevious,
		HasNext:     p.HasNext,
	}
}

// likePattern экранирует служебные символы LIKE и оборачивает в %...%.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
