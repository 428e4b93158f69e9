package models

type Role struct {
	BaseEntity

	Name        string `gorm:"size:64;not null;uniqueIndex" json:"name"`
	Description string `gorm:"size:500" json:"description"`

	RolePermissions []RolePermission `gorm:"foreignKey:RoleID" json:"-"`
}

func (Role) TableName() string { return "roles" }

// Permission: имя вида <Resource>_<Action>, Resource/Action для группировки.
type Permission struct {
	BaseEntity

	Name        string `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Resource    string `gorm:"size:64;index" json:"resource"`
	Action      string `gorm:"size:64" json:"action"`
	Description string `gorm:"size:500" json:"description"`
}

func (Permission) TableName() string { return "permissions" }

type UserRole struct {
	BaseEntity

	UserID uint `gorm:"not null;uniqueIndex:ux_user_roles_user_role" json:"userId"`
	RoleID uint `gorm:"not null;uniqueIndex:ux_user_roles_user_role;index" json:"roleId"`

	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (UserRole) TableName() string { return "user_roles" }

type RolePermission struct {
	BaseEntity

	RoleID       uint `gorm:"not null;uniqueIndex:ux_role_permissions_role_perm" json:"roleId"`
	PermissionID uint `gorm:"not null;uniqueIndex:ux_role_permissions_role_perm;index" json:"permissionId"`

	Permission *Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
}

func (RolePermission) TableName() string { return "role_permissions" }
