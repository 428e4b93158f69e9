package service

import (
	"context"
	"errors"

	"starter/internal/auth"
	"starter/internal/logs"
	"starter/internal/models"
	"starter/internal/repo"
)

const AdminRole = "Admin"

type SeedOptions struct {
	AdminEmail    string
	AdminUserName string
	AdminPassword string
}

// Seed создаёт недостающие права, роли Admin/User и (опционально) администратора.
// Повторный запуск ничего не дублирует.
func Seed(ctx context.Context, r *Repos, users *UserService, roles *RoleService, opt SeedOptions) error {
	permIDs := make(map[string]uint)
	for _, res := range auth.Resources {
		for _, act := range auth.Actions {
			p, err := ensurePermission(ctx, r, res, act)
			if err != nil {
				return err
			}
			permIDs[p.Name] = p.ID
		}
	}

	admin, err := ensureRole(ctx, roles, AdminRole, "Full access")
	if err != nil {
		return err
	}
	// только добавляем: права, выданные Admin вручную, переживают перезапуск
	for _, res := range auth.Resources {
		for _, act := range auth.Actions {
			if err := roles.AddPermission(ctx, System, admin.ID, permIDs[auth.Perm(res, act)]); err != nil {
				return err
			}
		}
	}

	user, err := ensureRole(ctx, roles, DefaultRole, "Default role for registered users")
	if err != nil {
		return err
	}
	for _, name := range []string{
		auth.Perm(auth.ResNotifications, auth.ActRead),
		auth.Perm(auth.ResSettings, auth.ActRead),
	} {
		if err := roles.AddPermission(ctx, System, user.ID, permIDs[name]); err != nil {
			return err
		}
	}

	if opt.AdminEmail == "" || opt.AdminPassword == "" {
		return nil
	}
	if _, err := users.GetByEmail(ctx, opt.AdminEmail); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	name := opt.AdminUserName
	if name == "" {
		name = "admin"
	}
	_, err = users.Create(ctx, System, models.UserDTO{
		UserName: name,
		Email:    opt.AdminEmail,
		Password: opt.AdminPassword,
		IsActive: true,
		Roles:    []string{AdminRole},
	})
	if err == nil {
		logs.Logger.Infof("seed: created administrator %s <%s>", name, opt.AdminEmail)
	}
	return err
}

func ensurePermission(ctx context.Context, r *Repos, res, act string) (*models.Permission, error) {
	name := auth.Perm(res, act)
	p, err := r.Permissions.FindOne(ctx, repo.Where(repo.EqFold("Name", name)))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	p = &models.Permission{Name: name, Resource: res, Action: act, Description: act + " " + res}
	ctx = repo.WithUnit(ctx)
	if _, err := r.Permissions.Add(ctx, p); err != nil {
		return nil, err
	}
	if _, err := r.Permissions.SaveChanges(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func ensureRole(ctx context.Context, roles *RoleService, name, description string) (*models.Role, error) {
	role, err := roles.r.Roles.FindOne(ctx, repo.Where(repo.EqFold("Name", name)))
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	dto, err := roles.Create(ctx, System, models.RoleDTO{Name: name, Description: description})
	if err != nil {
		return nil, err
	}
	return roles.Entity(ctx, dto.ID)
}
