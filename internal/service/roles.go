package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"starter/internal/models"
	"starter/internal/repo"
)

type RoleService struct {
	*CRUD[models.Role, *models.Role, models.RoleDTO]
	r     *Repos
	audit AuditSink
	// onChange вызывается после изменения состава прав роли (сброс кэша прав).
	onChange func(ctx context.Context, roles ...string)
}

func NewRoleService(r *Repos, audit AuditSink) *RoleService {
	s := &RoleService{r: r, audit: audit, onChange: func(context.Context, ...string) {}}
	s.CRUD = NewCRUD[models.Role](r.Roles, RoleMapper, audit, Hooks[models.Role, models.RoleDTO]{
		Include:      s.loadPermissions,
		Validate:     s.validate,
		BeforeDelete: s.cleanup,
	})
	return s
}

// OnPermissionsChanged регистрирует обработчик изменения прав ролей.
func (s *RoleService) OnPermissionsChanged(fn func(ctx context.Context, roles ...string)) {
	s.onChange = fn
}

func (s *RoleService) loadPermissions(ctx context.Context, roles []*models.Role) error {
	links, err := s.r.RolePermissions.GetAll(ctx, repo.Where(repo.In("RoleId", ids(roles))))
	if err != nil {
		return err
	}
	permIDs := make([]uint, len(links))
	for i, l := range links {
		permIDs[i] = l.PermissionID
	}
	perms, err := byID(ctx, s.r.Permissions, permIDs)
	if err != nil {
		return err
	}
	byRole := make(map[uint][]models.RolePermission, len(roles))
	for _, l := range links {
		l.Permission = perms[l.PermissionID]
		byRole[l.RoleID] = append(byRole[l.RoleID], *l)
	}
	for _, r := range roles {
		r.RolePermissions = byRole[r.ID]
	}
	return nil
}

func (s *RoleService) validate(ctx context.Context, d models.RoleDTO, existing *models.Role) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fail(ErrValidation, "role name is required")
	}
	other, err := s.r.Roles.FindOne(ctx, repo.Where(repo.EqFold("Name", name)))
	switch {
	case err == nil && (existing == nil || other.ID != existing.ID):
		return fail(ErrValidation, "role %q already exists", name)
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return err
	}
	if existing != nil && existing.Name != name {
		// старое имя больше не должно давать права из кэша
		s.onChange(ctx, existing.Name)
	}
	return nil
}

func (s *RoleService) cleanup(ctx context.Context, r *models.Role) error {
	if err := removeAll(ctx, s.r.RolePermissions, repo.Where(repo.Eq("RoleId", r.ID))); err != nil {
		return err
	}
	if err := removeAll(ctx, s.r.UserRoles, repo.Where(repo.Eq("RoleId", r.ID))); err != nil {
		return err
	}
	s.onChange(ctx, r.Name)
	return nil
}

func (s *RoleService) role(ctx context.Context, id uint) (*models.Role, []*models.RolePermission, error) {
	role, err := s.Entity(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	links, err := s.r.RolePermissions.GetAll(ctx, repo.Where(repo.Eq("RoleId", id)))
	return role, links, err
}

func (s *RoleService) Permissions(ctx context.Context, roleID uint) ([]models.PermissionDTO, error) {
	_, links, err := s.role(ctx, roleID)
	if err != nil {
		return nil, err
	}
	permIDs := make([]uint, len(links))
	for i, l := range links {
		permIDs[i] = l.PermissionID
	}
	perms, err := s.r.Permissions.GetAll(ctx, repo.Query{
		Filter:  []repo.Cond{repo.In("Id", permIDs)},
		OrderBy: []repo.Order{{Field: "Name"}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.PermissionDTO, len(perms))
	for i, p := range perms {
		out[i] = PermissionMapper.ToDTO(p)
	}
	return out, nil
}

// RolePermissions: имена прав роли по её имени (источник для кэша прав).
func (s *RoleService) RolePermissions(ctx context.Context, name string) ([]string, error) {
	role, err := s.r.Roles.FindOne(ctx, repo.Where(repo.EqFold("Name", name)))
	if errors.Is(err, repo.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return permissionNames(ctx, s.r, []uint{role.ID})
}

func (s *RoleService) SetPermissions(ctx context.Context, actor Actor, roleID uint, permIDs []uint) error {
	role, links, err := s.role(ctx, roleID)
	if err != nil {
		return err
	}
	perms, err := byID(ctx, s.r.Permissions, permIDs)
	if err != nil {
		return err
	}
	for _, id := range permIDs {
		if perms[id] == nil {
			return fail(ErrValidation, "permission %d does not exist", id)
		}
	}

	ctx = repo.WithUnit(ctx)
	have := make(map[uint]bool, len(links))
	var before []uint
	for _, l := range links {
		have[l.PermissionID] = true
		before = append(before, l.PermissionID)
		if !slices.Contains(permIDs, l.PermissionID) {
			if err := s.r.RolePermissions.Remove(ctx, l); err != nil {
				return err
			}
		}
	}
	for _, id := range uniq(permIDs) {
		if have[id] {
			continue
		}
		link := &models.RolePermission{RoleID: roleID, PermissionID: id}
		stamp(&link.BaseEntity, actor)
		if _, err := s.r.RolePermissions.Add(ctx, link); err != nil {
			return err
		}
	}
	if _, err := s.r.RolePermissions.SaveChanges(ctx); err != nil {
		return err
	}
	s.onChange(ctx, role.Name)
	s.audit.Record(ctx, actor, "Role", roleID, models.AuditUpdate, map[string]any{
		"Permissions": map[string][]uint{"old": before, "new": uniq(permIDs)},
	})
	return nil
}

func (s *RoleService) AddPermission(ctx context.Context, actor Actor, roleID, permID uint) error {
	role, links, err := s.role(ctx, roleID)
	if err != nil {
		return err
	}
	if _, err := s.r.Permissions.GetByID(ctx, permID); err != nil {
		return notFound(err, "Permission", permID)
	}
	for _, l := range links {
		if l.PermissionID == permID {
			return nil
		}
	}
	ctx = repo.WithUnit(ctx)
	link := &models.RolePermission{RoleID: roleID, PermissionID: permID}
	stamp(&link.BaseEntity, actor)
	if _, err := s.r.RolePermissions.Add(ctx, link); err != nil {
		return err
	}
	if _, err := s.r.RolePermissions.SaveChanges(ctx); err != nil {
		return err
	}
	s.onChange(ctx, role.Name)
	s.audit.Record(ctx, actor, "Role", roleID, models.AuditUpdate, map[string]any{"PermissionAdded": permID})
	return nil
}

func (s *RoleService) RemovePermission(ctx context.Context, actor Actor, roleID, permID uint) error {
	role, links, err := s.role(ctx, roleID)
	if err != nil {
		return err
	}
	for _, l := range links {
		if l.PermissionID != permID {
			continue
		}
		ctx = repo.WithUnit(ctx)
		if err := s.r.RolePermissions.Remove(ctx, l); err != nil {
			return err
		}
		if _, err := s.r.RolePermissions.SaveChanges(ctx); err != nil {
			return err
		}
		s.onChange(ctx, role.Name)
		s.audit.Record(ctx, actor, "Role", roleID, models.AuditUpdate, map[string]any{"PermissionRemoved": permID})
		return nil
	}
	return fail(ErrNotFound, "role %d has no permission %d", roleID, permID)
}

type PermissionService struct {
	*CRUD[models.Permission, *models.Permission, models.PermissionDTO]
	r        *Repos
	onChange func(ctx context.Context, roles ...string)
}

func NewPermissionService(r *Repos, audit AuditSink) *PermissionService {
	s := &PermissionService{r: r, onChange: func(context.Context, ...string) {}}
	s.CRUD = NewCRUD[models.Permission](r.Permissions, PermissionMapper, audit, Hooks[models.Permission, models.PermissionDTO]{
		Validate:     s.validate,
		BeforeDelete: s.cleanup,
	})
	return s
}

func (s *PermissionService) OnPermissionsChanged(fn func(ctx context.Context, roles ...string)) {
	s.onChange = fn
}

// cleanup снимает право со всех ролей и сбрасывает их кэш.
func (s *PermissionService) cleanup(ctx context.Context, p *models.Permission) error {
	links, err := s.r.RolePermissions.GetAll(ctx, repo.Where(repo.Eq("PermissionId", p.ID)))
	if err != nil {
		return err
	}
	roleIDs := make([]uint, len(links))
	for i, l := range links {
		if err := s.r.RolePermissions.Remove(ctx, l); err != nil {
			return err
		}
		roleIDs[i] = l.RoleID
	}
	roles, err := byID(ctx, s.r.Roles, roleIDs)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	s.onChange(ctx, names...)
	return nil
}

func (s *PermissionService) validate(ctx context.Context, d models.PermissionDTO, existing *models.Permission) error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return fail(ErrValidation, "permission name is required")
	}
	other, err := s.r.Permissions.FindOne(ctx, repo.Where(repo.EqFold("Name", name)))
	switch {
	case err == nil && (existing == nil || other.ID != existing.ID):
		return fail(ErrValidation, "permission %q already exists", name)
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return err
	}
	return nil
}

func (s *PermissionService) ByResource(ctx context.Context, resource string) ([]models.PermissionDTO, error) {
	return s.GetAll(ctx, repo.Query{
		Filter:  []repo.Cond{repo.EqFold("Resource", strings.TrimSpace(resource))},
		OrderBy: []repo.Order{{Field: "Name"}},
	})
}
