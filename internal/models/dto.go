package models

import (
	"encoding/json"
	"time"
)

// DTO: объект, отдаваемый наружу через API.
type DTO interface {
	GetID() uint
	Version() uint64
}

// DTOBase: служебные поля, общие для всех DTO.
type DTOBase struct {
	ID           uint      `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	ModifiedAt   time.Time `json:"modifiedAt"`
	CreatedByID  *uint     `json:"createdById,omitempty"`
	ModifiedByID *uint     `json:"modifiedById,omitempty"`
	RowVersion   uint64    `json:"rowVersion"`
}

func (d DTOBase) GetID() uint     { return d.ID }
func (d DTOBase) Version() uint64 { return d.RowVersion }

func BaseToDTO(b *BaseEntity) DTOBase {
	return DTOBase{
		ID:           b.ID,
		CreatedAt:    b.CreatedAt,
		ModifiedAt:   b.ModifiedAt,
		CreatedByID:  b.CreatedByID,
		ModifiedByID: b.ModifiedByID,
		RowVersion:   b.RowVersion,
	}
}

type UserDTO struct {
	DTOBase
	UserName    string     `json:"userName"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	PhoneNumber string     `json:"phoneNumber"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	Roles       []string   `json:"roles"`
	// только на вход (создание пользователя администратором)
	Password string `json:"password,omitempty"`
}

type RoleDTO struct {
	DTOBase
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions,omitempty"`
}

type PermissionDTO struct {
	DTOBase
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type SettingsDTO struct {
	DTOBase
	Key         string `json:"key"`
	Value       string `json:"value"`
	Category    string `json:"category"`
	Description string `json:"description"`
	UserID      *uint  `json:"userId,omitempty"`
}

type AuditLogDTO struct {
	DTOBase
	EntityName string          `json:"entityName"`
	EntityID   uint            `json:"entityId"`
	Action     string          `json:"action"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	UserID     *uint           `json:"userId,omitempty"`
	UserName   string          `json:"userName,omitempty"`
	IPAddress  string          `json:"ipAddress,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
}

type NotificationDTO struct {
	DTOBase
	UserID   uint            `json:"userId"`
	UserName string          `json:"userName,omitempty"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Type     string          `json:"type"`
	Link     string          `json:"link,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	IsRead   bool            `json:"isRead"`
	ReadAt   *time.Time      `json:"readAt,omitempty"`
}

// ---- auth ----

type LoginRequest struct {
	UserNameOrEmail string `json:"userNameOrEmail"`
	Password        string `json:"password"`
}

type RegisterRequest struct {
	UserName  string `json:"userName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type AuthResponse struct {
	AccessToken           string    `json:"accessToken"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshToken          string    `json:"refreshToken"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
	TokenType             string    `json:"tokenType"`
	User                  UserDTO   `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

// IDsRequest: тело для массового назначения ролей/прав.
type IDsRequest struct {
	IDs []uint `json:"ids"`
}

// MeResponse: текущий пользователь и его права.
type MeResponse struct {
	User        UserDTO  `json:"user"`
	Permissions []string `json:"permissions"`
}

type ValidateResponse struct {
	Valid    bool     `json:"valid"`
	UserID   uint     `json:"userId"`
	UserName string   `json:"userName"`
	Roles    []string `json:"roles"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}
