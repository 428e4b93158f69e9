package repo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind: тип значения поля; определяет сравнение, поиск и вывод в экспорт.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindBool
	KindTime
	KindDecimal
	KindRef
)

// DateLayout: формат дат в экспорте (yyyy-MM-dd HH:mm:ss).
const DateLayout = "2006-01-02 15:04:05"

// Field: типизированный аксессор к полю сущности T.
// Реестр полей заменяет поиск свойств по имени во время выполнения.
type Field[T any] struct {
	Name       string // логическое имя: заголовок CSV, sortBy, Cond.Field
	Column     string // колонка в БД; пусто для связанных объектов
	Kind       Kind
	Searchable bool
	Sortable   bool

	value  func(*T) any
	format func(*T) string
}

// Value возвращает нормализованное значение (string, int64, bool, time.Time, float64 или nil).
func (f Field[T]) Value(e *T) any { return f.value(e) }

// Format: строковое представление для экспорта.
func (f Field[T]) Format(e *T) string { return f.format(e) }

func Text[T any](name, column string, get func(*T) string) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: KindText, Searchable: true, Sortable: true,
		value:  func(e *T) any { return get(e) },
		format: get,
	}
}

func Int[T any](name, column string, get func(*T) int64) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: KindInt, Sortable: true,
		value:  func(e *T) any { return get(e) },
		format: func(e *T) string { return strconv.FormatInt(get(e), 10) },
	}
}

// ID: поле первичного/внешнего ключа типа uint.
func ID[T any](name, column string, get func(*T) uint) Field[T] {
	return Int(name, column, func(e *T) int64 { return int64(get(e)) })
}

// OptID: nullable ссылка (*uint).
func OptID[T any](name, column string, get func(*T) *uint) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: KindInt, Sortable: true,
		value: func(e *T) any {
			if v := get(e); v != nil {
				return int64(*v)
			}
			return nil
		},
		format: func(e *T) string {
			if v := get(e); v != nil {
				return strconv.FormatUint(uint64(*v), 10)
			}
			return ""
		},
	}
}

func Bool[T any](name, column string, get func(*T) bool) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: KindBool, Sortable: true,
		value:  func(e *T) any { return get(e) },
		format: func(e *T) string { return strconv.FormatBool(get(e)) },
	}
}

func Time[T any](name, column string, get func(*T) time.Time) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: KindTime, Sortable: true,
		value:  func(e *T) any { return get(e) },
		format: func(e *T) string { return get(e).Format(DateLayout) },
	}
}

func OptTime[T any](name, column string, get func(*T) *time.Time) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: KindTime, Sortable: true,
		value: func(e *T) any {
			if v := get(e); v != nil {
				return *v
			}
			return nil
		},
		format: func(e *T) string {
			if v := get(e); v != nil {
				return v.Format(DateLayout)
			}
			return ""
		},
	}
}

// Decimal: денежные/дробные значения, в экспорте 2 знака после запятой.
func Decimal[T any](name, column string, get func(*T) float64) Field[T] {
	return Field[T]{
		Name: name, Column: column, Kind: KindDecimal, Sortable: true,
		value:  func(e *T) any { return get(e) },
		format: func(e *T) string { return strconv.FormatFloat(get(e), 'f', 2, 64) },
	}
}

// Ref: связанный объект. В экспорте выводится его id, затем name,
// иначе строковое представление по умолчанию.
func Ref[T any, R any](name string, get func(*T) *R) Field[T] {
	return Field[T]{
		Name: name, Kind: KindRef,
		value: func(e *T) any {
			if r := get(e); r != nil {
				return r
			}
			return nil
		},
		format: func(e *T) string {
			r := get(e)
			if r == nil {
				return ""
			}
			return refString(r)
		},
	}
}

type identified interface{ GetID() uint }
type named interface{ GetName() string }

func refString(v any) string {
	switch x := v.(type) {
	case identified:
		return strconv.FormatUint(uint64(x.GetID()), 10)
	case named:
		return x.GetName()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// Schema: реестр полей сущности.
type Schema[T any] struct {
	Entity string // "User"
	Table  string // "users"
	Fields []Field[T]
	// Unique: наборы полей, уникальные в пределах таблицы (для in-memory режима;
	// в БД те же ограничения заданы индексами).
	Unique [][]string
}

// Lookup ищет поле по имени без учёта регистра.
func (s *Schema[T]) Lookup(name string) (Field[T], bool) {
	name = strings.TrimSpace(name)
	for _, f := range s.Fields {
		if strings.EqualFold(f.Name, name) || (f.Column != "" && strings.EqualFold(f.Column, name)) {
			return f, true
		}
	}
	return Field[T]{}, false
}

func (s *Schema[T]) searchable() []Field[T] {
	out := make([]Field[T], 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.Searchable && f.Kind == KindText && f.Column != "" {
			out = append(out, f)
		}
	}
	return out
}

func (s *Schema[T]) Header() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Row: значения одной записи в порядке Header.
func (s *Schema[T]) Row(e *T) []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Format(e)
	}
	return out
}
