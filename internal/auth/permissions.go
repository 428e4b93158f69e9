package auth

import (
	"context"
	"errors"
	"sort"

	"starter/internal/cache"
	"starter/internal/logs"
)

// Ресурсы и действия. Имя права: <Resource>_<Action>.
const (
	ResUsers         = "Users"
	ResRoles         = "Roles"
	ResPermissions   = "Permissions"
	ResSettings      = "Settings"
	ResNotifications = "Notifications"
	ResAuditLogs     = "AuditLogs"

	ActRead   = "Read"
	ActCreate = "Create"
	ActUpdate = "Update"
	ActDelete = "Delete"
	ActExport = "Export"
)

var (
	Resources = []string{ResUsers, ResRoles, ResPermissions, ResSettings, ResNotifications, ResAuditLogs}
	Actions   = []string{ActRead, ActCreate, ActUpdate, ActDelete, ActExport}
)

func Perm(resource, action string) string { return resource + "_" + action }

// PermissionLoader отдаёт имена прав роли.
type PermissionLoader interface {
	RolePermissions(ctx context.Context, role string) ([]string, error)
}

// Resolver превращает набор ролей в набор прав, кэшируя права каждой роли
// под ключом perm:<role>.
type Resolver struct {
	loader PermissionLoader
	cache  cache.Cache
	opt    cache.Options
}

func NewResolver(loader PermissionLoader, c cache.Cache, opt cache.Options) *Resolver {
	return &Resolver{loader: loader, cache: c, opt: opt}
}

func cacheKey(role string) string { return "perm:" + role }

func (r *Resolver) Resolve(ctx context.Context, roles []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, role := range roles {
		perms, err := r.role(ctx, role)
		if err != nil {
			return nil, err
		}
		for _, p := range perms {
			out[p] = struct{}{}
		}
	}
	return out, nil
}

func (r *Resolver) role(ctx context.Context, role string) ([]string, error) {
	perms, err := cache.GetJSON[[]string](ctx, r.cache, cacheKey(role))
	if err == nil {
		return perms, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		// кэш недоступен: идём в хранилище
		logs.Logger.Warnf("auth: permission cache read %s: %v", role, err)
	}
	perms, err = r.loader.RolePermissions(ctx, role)
	if err != nil {
		return nil, err
	}
	sort.Strings(perms)
	if err := cache.SetJSON(ctx, r.cache, cacheKey(role), perms, r.opt); err != nil {
		logs.Logger.Warnf("auth: permission cache write %s: %v", role, err)
	}
	return perms, nil
}

// Invalidate сбрасывает кэш прав ролей после изменения их состава.
func (r *Resolver) Invalidate(ctx context.Context, roles ...string) {
	if len(roles) == 0 {
		return
	}
	keys := make([]string, len(roles))
	for i, role := range roles {
		keys[i] = cacheKey(role)
	}
	if err := r.cache.Delete(ctx, keys...); err != nil {
		logs.Logger.Warnf("auth: permission cache invalidate %v: %v", roles, err)
	}
}
