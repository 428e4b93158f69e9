package models

import "gorm.io/datatypes"

// AuditLog: журнал изменений, только добавление.
type AuditLog struct {
	BaseEntity

	EntityName string         `gorm:"size:64;not null;index:ix_audit_entity" json:"entityName"`
	EntityID   uint           `gorm:"index:ix_audit_entity" json:"entityId"`
	Action     string         `gorm:"size:32;not null" json:"action"`
	Changes    datatypes.JSON `json:"changes,omitempty"`
	UserID     *uint          `gorm:"index" json:"userId,omitempty"`
	UserName   string         `gorm:"size:64" json:"userName,omitempty"`
	IPAddress  string         `gorm:"size:64" json:"ipAddress,omitempty"`
	UserAgent  string         `gorm:"size:255" json:"userAgent,omitempty"`
	RequestID  string         `gorm:"size:64" json:"requestId,omitempty"`
}

func (AuditLog) TableName() string { return "audit_logs" }

const (
	AuditCreate = "Create"
	AuditUpdate = "Update"
	AuditDelete = "Delete"
	AuditLogin  = "Login"
	AuditLogout = "Logout"
	AuditReset  = "PasswordReset"
)
