package service

import (
	"encoding/json"
	"strings"

	"gorm.io/datatypes"

	"starter/internal/models"
)

var UserMapper = Mapper[models.User, models.UserDTO]{
	ToDTO: func(u *models.User) models.UserDTO {
		return models.UserDTO{
			DTOBase:     models.BaseToDTO(&u.BaseEntity),
			UserName:    u.UserName,
			Email:       u.Email,
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			PhoneNumber: u.PhoneNumber,
			IsActive:    u.IsActive,
			LastLoginAt: u.LastLoginAt,
			Roles:       u.RoleNames(),
		}
	},
	ToEntity: func(d models.UserDTO) *models.User {
		return &models.User{
			UserName:    strings.TrimSpace(d.UserName),
			Email:       strings.TrimSpace(d.Email),
			FirstName:   d.FirstName,
			LastName:    d.LastName,
			PhoneNumber: d.PhoneNumber,
			IsActive:    d.IsActive,
		}
	},
	Apply: func(u *models.User, d models.UserDTO) {
		u.UserName = strings.TrimSpace(d.UserName)
		u.Email = strings.TrimSpace(d.Email)
		u.FirstName = d.FirstName
		u.LastName = d.LastName
		u.PhoneNumber = d.PhoneNumber
		u.IsActive = d.IsActive
	},
}

var RoleMapper = Mapper[models.Role, models.RoleDTO]{
	ToDTO: func(r *models.Role) models.RoleDTO {
		var perms []string
		for _, rp := range r.RolePermissions {
			if rp.Permission != nil {
				perms = append(perms, rp.Permission.Name)
			}
		}
		return models.RoleDTO{
			DTOBase:     models.BaseToDTO(&r.BaseEntity),
			Name:        r.Name,
			Description: r.Description,
			Permissions: perms,
		}
	},
	ToEntity: func(d models.RoleDTO) *models.Role {
		return &models.Role{Name: strings.TrimSpace(d.Name), Description: d.Description}
	},
	Apply: func(r *models.Role, d models.RoleDTO) {
		r.Name = strings.TrimSpace(d.Name)
		r.Description = d.Description
	},
}

var PermissionMapper = Mapper[models.Permission, models.PermissionDTO]{
	ToDTO: func(p *models.Permission) models.PermissionDTO {
		return models.PermissionDTO{
			DTOBase:     models.BaseToDTO(&p.BaseEntity),
			Name:        p.Name,
			Resource:    p.Resource,
			Action:      p.Action,
			Description: p.Description,
		}
	},
	ToEntity: func(d models.PermissionDTO) *models.Permission {
		p := &models.Permission{}
		applyPermission(p, d)
		return p
	},
	Apply: applyPermission,
}

// applyPermission: если Resource/Action не заданы, берём их из имени <Resource>_<Action>.
func applyPermission(p *models.Permission, d models.PermissionDTO) {
	p.Name = strings.TrimSpace(d.Name)
	p.Resource, p.Action = d.Resource, d.Action
	if res, act, ok := strings.Cut(p.Name, "_"); ok {
		if p.Resource == "" {
			p.Resource = res
		}
		if p.Action == "" {
			p.Action = act
		}
	}
	p.Description = d.Description
}

var SettingsMapper = Mapper[models.Settings, models.SettingsDTO]{
	ToDTO: func(s *models.Settings) models.SettingsDTO {
		return models.SettingsDTO{
			DTOBase:     models.BaseToDTO(&s.BaseEntity),
			Key:         s.Key,
			Value:       s.Value,
			Category:    s.Category,
			Description: s.Description,
			UserID:      s.UserID,
		}
	},
	ToEntity: func(d models.SettingsDTO) *models.Settings {
		return &models.Settings{
			Key:         strings.TrimSpace(d.Key),
			Value:       d.Value,
			Category:    d.Category,
			Description: d.Description,
			UserID:      d.UserID,
		}
	},
	Apply: func(s *models.Settings, d models.SettingsDTO) {
		s.Key = strings.TrimSpace(d.Key)
		s.Value = d.Value
		s.Category = d.Category
		s.Description = d.Description
		s.UserID = d.UserID
	},
}

var AuditLogMapper = Mapper[models.AuditLog, models.AuditLogDTO]{
	ToDTO: func(a *models.AuditLog) models.AuditLogDTO {
		return models.AuditLogDTO{
			DTOBase:    models.BaseToDTO(&a.BaseEntity),
			EntityName: a.EntityName,
			EntityID:   a.EntityID,
			Action:     a.Action,
			Changes:    json.RawMessage(a.Changes),
			UserID:     a.UserID,
			UserName:   a.UserName,
			IPAddress:  a.IPAddress,
			UserAgent:  a.UserAgent,
			RequestID:  a.RequestID,
		}
	},
	ToEntity: func(d models.AuditLogDTO) *models.AuditLog {
		return &models.AuditLog{EntityName: d.EntityName, EntityID: d.EntityID, Action: d.Action, Changes: datatypes.JSON(d.Changes)}
	},
	Apply: func(*models.AuditLog, models.AuditLogDTO) {},
}

var NotificationMapper = Mapper[models.Notification, models.NotificationDTO]{
	ToDTO: func(n *models.Notification) models.NotificationDTO {
		d := models.NotificationDTO{
			DTOBase: models.BaseToDTO(&n.BaseEntity),
			UserID:  n.UserID,
			Title:   n.Title,
			Message: n.Message,
			Type:    n.Type,
			Link:    n.Link,
			Data:    json.RawMessage(n.Data),
			IsRead:  n.IsRead,
			ReadAt:  n.ReadAt,
		}
		if n.User != nil {
			d.UserName = n.User.DisplayName()
		}
		return d
	},
	ToEntity: func(d models.NotificationDTO) *models.Notification {
		return &models.Notification{
			UserID:  d.UserID,
			Title:   strings.TrimSpace(d.Title),
			Message: d.Message,
			Type:    d.Type,
			Link:    d.Link,
			Data:    datatypes.JSON(d.Data),
		}
	},
	Apply: func(n *models.Notification, d models.NotificationDTO) {
		n.Title = strings.TrimSpace(d.Title)
		n.Message = d.Message
		n.Type = d.Type
		n.Link = d.Link
		n.Data = datatypes.JSON(d.Data)
	},
}
