package models

import (
	"time"

	"gorm.io/datatypes"
)

type Notification struct {
	BaseEntity

	UserID  uint           `gorm:"not null;index" json:"userId"`
	Title   string         `gorm:"size:200;not null" json:"title"`
	Message string         `gorm:"type:text" json:"message"`
	Type    string         `gorm:"size:32" json:"type"` // info|warning|error|success
	Link    string         `gorm:"size:500" json:"link,omitempty"`
	Data    datatypes.JSON `json:"data,omitempty"`
	IsRead  bool           `gorm:"not null;default:false;index" json:"isRead"`
	ReadAt  *time.Time     `json:"readAt,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Notification) TableName() string { return "notifications" }
