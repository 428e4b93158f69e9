package models

// Settings: пара (Key, UserID) уникальна; UserID == nil означает глобальную настройку.
type Settings struct {
	BaseEntity

	Key         string `gorm:"size:128;not null;uniqueIndex:ux_settings_key_user" json:"key"`
	Value       string `gorm:"type:text" json:"value"`
	Category    string `gorm:"size:64;index" json:"category"`
	Description string `gorm:"size:500" json:"description"`
	UserID      *uint  `gorm:"uniqueIndex:ux_settings_key_user" json:"userId,omitempty"`
}

func (Settings) TableName() string { return "settings" }
