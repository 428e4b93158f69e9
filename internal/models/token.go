package models

import "time"

// RefreshToken хранит только sha256 от выданного клиенту токена.
// Цепочка ротации: ReplacedByHash указывает на хеш токена-преемника.
type RefreshToken struct {
	BaseEntity

	TokenHash      string     `gorm:"size:128;not null;uniqueIndex" json:"-"`
	UserID         uint       `gorm:"not null;index" json:"userId"`
	ExpiresAt      time.Time  `gorm:"not null;index" json:"expiresAt"`
	IsRevoked      bool       `gorm:"not null;default:false" json:"isRevoked"`
	RevokedAt      *time.Time `json:"revokedAt,omitempty"`
	RevokedByIP    string     `gorm:"size:64" json:"revokedByIp,omitempty"`
	ReplacedByHash string     `gorm:"size:128" json:"-"`
	ReasonRevoked  string     `gorm:"size:128" json:"reasonRevoked,omitempty"`
	CreatedByIP    string     `gorm:"size:64" json:"createdByIp,omitempty"`
}

func (RefreshToken) TableName() string { return "refresh_tokens" }

func (t *RefreshToken) IsExpired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

func (t *RefreshToken) IsActive(now time.Time) bool { return !t.IsRevoked && !t.IsExpired(now) }
