package models

import "time"

// BaseEntity: общие поля всех сохраняемых записей.
// RowVersion меняется на каждом успешном обновлении (оптимистичная блокировка).
type BaseEntity struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `gorm:"not null" json:"createdAt"`
	ModifiedAt   time.Time `gorm:"not null" json:"modifiedAt"`
	CreatedByID  *uint     `json:"createdById,omitempty"`
	ModifiedByID *uint     `json:"modifiedById,omitempty"`
	RowVersion   uint64    `gorm:"not null;default:1" json:"rowVersion"`
}

func (b *BaseEntity) Base() *BaseEntity { return b }

func (b BaseEntity) GetID() uint { return b.ID }

// Record реализуют все сущности (через встроенный BaseEntity).
type Record interface {
	Base() *BaseEntity
}

// Ptr ограничивает generic-код типом *T, который является Record.
type Ptr[T any] interface {
	*T
	Record
}
