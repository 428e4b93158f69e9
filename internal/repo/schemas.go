package repo

import (
	"time"

	"starter/internal/models"
)

// baseFields: поля BaseEntity, общие для всех реестров.
func baseFields[T any, P models.Ptr[T]]() []Field[T] {
	b := func(e *T) *models.BaseEntity { return P(e).Base() }
	return []Field[T]{
		ID("Id", "id", func(e *T) uint { return b(e).ID }),
		Time("CreatedAt", "created_at", func(e *T) time.Time { return b(e).CreatedAt }),
		Time("ModifiedAt", "modified_at", func(e *T) time.Time { return b(e).ModifiedAt }),
		OptID("CreatedById", "created_by_id", func(e *T) *uint { return b(e).CreatedByID }),
		OptID("ModifiedById", "modified_by_id", func(e *T) *uint { return b(e).ModifiedByID }),
	}
}

func withBase[T any, P models.Ptr[T]](fields ...Field[T]) []Field[T] {
	base := baseFields[T, P]()
	// Id первым, служебные даты и авторы в конце
	out := append([]Field[T]{base[0]}, fields...)
	return append(out, base[1:]...)
}

var Users = &Schema[models.User]{
	Entity: "User",
	Table:  "users",
	Fields: withBase[models.User](
		Text("UserName", "user_name", func(u *models.User) string { return u.UserName }),
		Text("Email", "email", func(u *models.User) string { return u.Email }),
		Text("FirstName", "first_name", func(u *models.User) string { return u.FirstName }),
		Text("LastName", "last_name", func(u *models.User) string { return u.LastName }),
		Text("PhoneNumber", "phone_number", func(u *models.User) string { return u.PhoneNumber }),
		Bool("IsActive", "is_active", func(u *models.User) bool { return u.IsActive }),
		OptTime("LastLoginAt", "last_login_at", func(u *models.User) *time.Time { return u.LastLoginAt }),
	),
	Unique: [][]string{{"UserName"}, {"Email"}},
}

var Roles = &Schema[models.Role]{
	Entity: "Role",
	Table:  "roles",
	Fields: withBase[models.Role](
		Text("Name", "name", func(r *models.Role) string { return r.Name }),
		Text("Description", "description", func(r *models.Role) string { return r.Description }),
	),
	Unique: [][]string{{"Name"}},
}

var Permissions = &Schema[models.Permission]{
	Entity: "Permission",
	Table:  "permissions",
	Fields: withBase[models.Permission](
		Text("Name", "name", func(p *models.Permission) string { return p.Name }),
		Text("Resource", "resource", func(p *models.Permission) string { return p.Resource }),
		Text("Action", "action", func(p *models.Permission) string { return p.Action }),
		Text("Description", "description", func(p *models.Permission) string { return p.Description }),
	),
	Unique: [][]string{{"Name"}},
}

var UserRoles = &Schema[models.UserRole]{
	Entity: "UserRole",
	Table:  "user_roles",
	Fields: withBase[models.UserRole](
		ID("UserId", "user_id", func(ur *models.UserRole) uint { return ur.UserID }),
		ID("RoleId", "role_id", func(ur *models.UserRole) uint { return ur.RoleID }),
		Ref("Role", func(ur *models.UserRole) *models.Role { return ur.Role }),
	),
	Unique: [][]string{{"UserId", "RoleId"}},
}

var RolePermissions = &Schema[models.RolePermission]{
	Entity: "RolePermission",
	Table:  "role_permissions",
	Fields: withBase[models.RolePermission](
		ID("RoleId", "role_id", func(rp *models.RolePermission) uint { return rp.RoleID }),
		ID("PermissionId", "permission_id", func(rp *models.RolePermission) uint { return rp.PermissionID }),
		Ref("Permission", func(rp *models.RolePermission) *models.Permission { return rp.Permission }),
	),
	Unique: [][]string{{"RoleId", "PermissionId"}},
}

// RefreshTokens: хеши доступны только для фильтра.
var RefreshTokens = &Schema[models.RefreshToken]{
	Entity: "RefreshToken",
	Table:  "refresh_tokens",
	Fields: withBase[models.RefreshToken](
		ID("UserId", "user_id", func(t *models.RefreshToken) uint { return t.UserID }),
		Time("ExpiresAt", "expires_at", func(t *models.RefreshToken) time.Time { return t.ExpiresAt }),
		Bool("IsRevoked", "is_revoked", func(t *models.RefreshToken) bool { return t.IsRevoked }),
		OptTime("RevokedAt", "revoked_at", func(t *models.RefreshToken) *time.Time { return t.RevokedAt }),
		hidden(Text("TokenHash", "token_hash", func(t *models.RefreshToken) string { return t.TokenHash })),
		hidden(Text("ReplacedByHash", "replaced_by_hash", func(t *models.RefreshToken) string { return t.ReplacedByHash })),
		Text("ReasonRevoked", "reason_revoked", func(t *models.RefreshToken) string { return t.ReasonRevoked }),
	),
	Unique: [][]string{{"TokenHash"}},
}

// hidden: поле доступно для фильтра, но не для поиска.
func hidden[T any](f Field[T]) Field[T] {
	f.Searchable = false
	f.Sortable = false
	return f
}

var Settings = &Schema[models.Settings]{
	Entity: "Settings",
	Table:  "settings",
	Fields: withBase[models.Settings](
		Text("Key", "key", func(s *models.Settings) string { return s.Key }),
		Text("Value", "value", func(s *models.Settings) string { return s.Value }),
		Text("Category", "category", func(s *models.Settings) string { return s.Category }),
		Text("Description", "description", func(s *models.Settings) string { return s.Description }),
		OptID("UserId", "user_id", func(s *models.Settings) *uint { return s.UserID }),
	),
	Unique: [][]string{{"Key", "UserId"}},
}

var AuditLogs = &Schema[models.AuditLog]{
	Entity: "AuditLog",
	Table:  "audit_logs",
	Fields: withBase[models.AuditLog](
		Text("EntityName", "entity_name", func(a *models.AuditLog) string { return a.EntityName }),
		ID("EntityId", "entity_id", func(a *models.AuditLog) uint { return a.EntityID }),
		Text("Action", "action", func(a *models.AuditLog) string { return a.Action }),
		hidden(Text("Changes", "changes", func(a *models.AuditLog) string { return string(a.Changes) })),
		OptID("UserId", "user_id", func(a *models.AuditLog) *uint { return a.UserID }),
		Text("UserName", "user_name", func(a *models.AuditLog) string { return a.UserName }),
		Text("IpAddress", "ip_address", func(a *models.AuditLog) string { return a.IPAddress }),
		hidden(Text("UserAgent", "user_agent", func(a *models.AuditLog) string { return a.UserAgent })),
		hidden(Text("RequestId", "request_id", func(a *models.AuditLog) string { return a.RequestID })),
	),
}

var Notifications = &Schema[models.Notification]{
	Entity: "Notification",
	Table:  "notifications",
	Fields: withBase[models.Notification](
		ID("UserId", "user_id", func(n *models.Notification) uint { return n.UserID }),
		Text("Title", "title", func(n *models.Notification) string { return n.Title }),
		Text("Message", "message", func(n *models.Notification) string { return n.Message }),
		Text("Type", "type", func(n *models.Notification) string { return n.Type }),
		Text("Link", "link", func(n *models.Notification) string { return n.Link }),
		Bool("IsRead", "is_read", func(n *models.Notification) bool { return n.IsRead }),
		OptTime("ReadAt", "read_at", func(n *models.Notification) *time.Time { return n.ReadAt }),
	),
}
