package db

import (
	"fmt"

	"gorm.io/gorm"

	"starter/internal/models"
)

// Migrate создаёт/дополняет таблицы всех сущностей.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.UserRole{},
		&models.RolePermission{},
		&models.RefreshToken{},
		&models.Settings{},
		&models.AuditLog{},
		&models.Notification{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return ensureGlobalSettingsIndex(gdb)
}

// ensureGlobalSettingsIndex: в Postgres NULL-ы в ux_settings_key_user различны,
// поэтому уникальность глобальных ключей держит отдельный частичный индекс.
// В MySQL частичных индексов нет, там дубликаты отсекает сервис настроек.
func ensureGlobalSettingsIndex(gdb *gorm.DB) error {
	if gdb.Dialector.Name() != "postgres" {
		return nil
	}
	if err := gdb.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_settings_key_global ON settings (key) WHERE user_id IS NULL`).Error; err != nil {
		return fmt.Errorf("global settings index: %w", err)
	}
	return nil
}
