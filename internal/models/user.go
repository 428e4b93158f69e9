package models

import "time"

type User struct {
	BaseEntity

	UserName     string     `gorm:"size:64;not null;uniqueIndex" json:"userName"`
	Email        string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	FirstName    string     `gorm:"size:100" json:"firstName"`
	LastName     string     `gorm:"size:100" json:"lastName"`
	PhoneNumber  string     `gorm:"size:32" json:"phoneNumber"`
	IsActive     bool       `gorm:"not null;default:true" json:"isActive"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`

	UserRoles []UserRole `gorm:"foreignKey:UserID" json:"-"`
}

func (User) TableName() string { return "users" }

// DisplayName: "Имя Фамилия", иначе логин.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.UserName
	}
}

// RoleNames возвращает имена ролей из подгруженных UserRoles.
func (u *User) RoleNames() []string {
	out := make([]string, 0, len(u.UserRoles))
	for _, ur := range u.UserRoles {
		if ur.Role != nil {
			out = append(out, ur.Role.Name)
		}
	}
	return out
}
