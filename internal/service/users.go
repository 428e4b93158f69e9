package service

import (
	"context"
	"errors"
	"net/mail"
	"slices"
	"sort"
	"strings"
	"time"

	"starter/internal/auth"
	"starter/internal/models"
	"starter/internal/repo"
)

type UserService struct {
	*CRUD[models.User, *models.User, models.UserDTO]
	r     *Repos
	audit AuditSink
}

func NewUserService(r *Repos, audit AuditSink) *UserService {
	s := &UserService{r: r, audit: audit}
	s.CRUD = NewCRUD[models.User](r.Users, UserMapper, audit, Hooks[models.User, models.UserDTO]{
		Include:      s.loadRoles,
		Validate:     s.validate,
		BeforeDelete: s.cleanup,
	})
	return s
}

// loadRoles заполняет UserRoles с ролями для вывода имён ролей в DTO.
func (s *UserService) loadRoles(ctx context.Context, users []*models.User) error {
	links, err := s.r.UserRoles.GetAll(ctx, repo.Where(repo.In("UserId", ids(users))))
	if err != nil {
		return err
	}
	roleIDs := make([]uint, 0, len(links))
	for _, l := range links {
		roleIDs = append(roleIDs, l.RoleID)
	}
	roles, err := byID(ctx, s.r.Roles, roleIDs)
	if err != nil {
		return err
	}
	byUser := make(map[uint][]models.UserRole, len(users))
	for _, l := range links {
		l.Role = roles[l.RoleID]
		byUser[l.UserID] = append(byUser[l.UserID], *l)
	}
	for _, u := range users {
		u.UserRoles = byUser[u.ID]
	}
	return nil
}

func (s *UserService) validate(ctx context.Context, d models.UserDTO, existing *models.User) error {
	name, email := strings.TrimSpace(d.UserName), strings.TrimSpace(d.Email)
	if name == "" {
		return fail(ErrValidation, "userName is required")
	}
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return fail(ErrValidation, "email %q is not valid", email)
	}
	var self uint
	if existing != nil {
		self = existing.ID
	}
	return s.checkUnique(ctx, name, email, self)
}

// checkUnique: userName и email уникальны без учёта регистра.
func (s *UserService) checkUnique(ctx context.Context, name, email string, self uint) error {
	if u, err := s.r.Users.FindOne(ctx, repo.Where(repo.EqFold("UserName", name))); err == nil && u.ID != self {
		return fail(ErrValidation, "user name %q is already taken", name)
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if u, err := s.r.Users.FindOne(ctx, repo.Where(repo.EqFold("Email", email))); err == nil && u.ID != self {
		return fail(ErrValidation, "email %q is already registered", email)
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return nil
}

// cleanup удаляет связи пользователя вместе с ним.
func (s *UserService) cleanup(ctx context.Context, u *models.User) error {
	if err := removeAll(ctx, s.r.UserRoles, repo.Where(repo.Eq("UserId", u.ID))); err != nil {
		return err
	}
	if err := removeAll(ctx, s.r.Notifications, repo.Where(repo.Eq("UserId", u.ID))); err != nil {
		return err
	}
	if err := removeAll(ctx, s.r.RefreshTokens, repo.Where(repo.Eq("UserId", u.ID))); err != nil {
		return err
	}
	return removeAll(ctx, s.r.Settings, repo.Where(repo.Eq("UserId", u.ID)))
}

// Create создаёт пользователя от имени администратора. Пароль обязателен, роли задаются по имени.
func (s *UserService) Create(ctx context.Context, actor Actor, d models.UserDTO) (models.UserDTO, error) {
	if err := s.validate(ctx, d, nil); err != nil {
		return models.UserDTO{}, err
	}
	hash, err := hashPassword(d.Password)
	if err != nil {
		return models.UserDTO{}, err
	}
	u := UserMapper.ToEntity(d)
	u.PasswordHash = hash
	if err := s.Insert(ctx, actor, u); err != nil {
		return models.UserDTO{}, err
	}
	for _, role := range d.Roles {
		if err := s.AddRoleByName(ctx, actor, u.ID, role); err != nil {
			return models.UserDTO{}, err
		}
	}
	return s.GetByID(ctx, u.ID)
}

func hashPassword(pw string) (string, error) {
	hash, err := auth.HashPassword(pw)
	if errors.Is(err, auth.ErrWeakPassword) || errors.Is(err, auth.ErrLongPassword) {
		return "", fail(ErrValidation, "%s", err.Error())
	}
	return hash, err
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (models.UserDTO, error) {
	return s.getBy(ctx, "Email", email)
}

func (s *UserService) GetByUserName(ctx context.Context, name string) (models.UserDTO, error) {
	return s.getBy(ctx, "UserName", name)
}

func (s *UserService) getBy(ctx context.Context, field, value string) (models.UserDTO, error) {
	u, err := s.r.Users.FindOne(ctx, repo.Where(repo.EqFold(field, strings.TrimSpace(value))))
	if err != nil {
		return models.UserDTO{}, notFound(err, "User", value)
	}
	return s.one(ctx, u)
}

// FindByLogin ищет по userName, затем по email.
func (s *UserService) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	u, err := s.r.Users.FindOne(ctx, repo.Where(repo.EqFold("UserName", login)))
	if errors.Is(err, repo.ErrNotFound) {
		u, err = s.r.Users.FindOne(ctx, repo.Where(repo.EqFold("Email", login)))
	}
	if err != nil {
		return nil, notFound(err, "User", login)
	}
	return u, nil
}

func (s *UserService) ChangePassword(ctx context.Context, actor Actor, userID uint, current, next string) error {
	u, err := s.Entity(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.VerifyPassword(u.PasswordHash, current) {
		return fail(ErrValidation, "current password is incorrect")
	}
	return s.SetPassword(ctx, actor, u, next)
}

// SetPassword меняет хеш пароля; все refresh-токены пользователя отзываются.
func (s *UserService) SetPassword(ctx context.Context, actor Actor, u *models.User, password string) error {
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	ctx = repo.WithUnit(ctx)
	if err := revokeAll(ctx, s.r.RefreshTokens, u.ID, actor.IP, "password changed"); err != nil {
		return err
	}
	return s.Save(ctx, actor, u, nil)
}

// ---- роли ----

func (s *UserService) links(ctx context.Context, userID uint) ([]*models.UserRole, error) {
	if _, err := s.Entity(ctx, userID); err != nil {
		return nil, err
	}
	return s.r.UserRoles.GetAll(ctx, repo.Where(repo.Eq("UserId", userID)))
}

func (s *UserService) Roles(ctx context.Context, userID uint) ([]models.RoleDTO, error) {
	links, err := s.links(ctx, userID)
	if err != nil {
		return nil, err
	}
	roleIDs := make([]uint, len(links))
	for i, l := range links {
		roleIDs[i] = l.RoleID
	}
	roles, err := s.r.Roles.GetAll(ctx, repo.Query{
		Filter:  []repo.Cond{repo.In("Id", roleIDs)},
		OrderBy: []repo.Order{{Field: "Name"}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.RoleDTO, len(roles))
	for i, r := range roles {
		out[i] = RoleMapper.ToDTO(r)
	}
	return out, nil
}

// RoleNames: имена ролей для claims токена.
func (s *UserService) RoleNames(ctx context.Context, userID uint) ([]string, error) {
	roles, err := s.Roles(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.Name
	}
	return out, nil
}

// Permissions: объединение прав всех ролей пользователя.
func (s *UserService) Permissions(ctx context.Context, userID uint) ([]string, error) {
	links, err := s.links(ctx, userID)
	if err != nil {
		return nil, err
	}
	roleIDs := make([]uint, len(links))
	for i, l := range links {
		roleIDs[i] = l.RoleID
	}
	return permissionNames(ctx, s.r, roleIDs)
}

// SetRoles приводит набор ролей пользователя к roleIDs одним SaveChanges.
func (s *UserService) SetRoles(ctx context.Context, actor Actor, userID uint, roleIDs []uint) error {
	links, err := s.links(ctx, userID)
	if err != nil {
		return err
	}
	roles, err := byID(ctx, s.r.Roles, roleIDs)
	if err != nil {
		return err
	}
	for _, id := range roleIDs {
		if roles[id] == nil {
			return fail(ErrValidation, "role %d does not exist", id)
		}
	}

	ctx = repo.WithUnit(ctx)
	have := make(map[uint]bool, len(links))
	var before []uint
	for _, l := range links {
		have[l.RoleID] = true
		before = append(before, l.RoleID)
		if !slices.Contains(roleIDs, l.RoleID) {
			if err := s.r.UserRoles.Remove(ctx, l); err != nil {
				return err
			}
		}
	}
	for _, id := range uniq(roleIDs) {
		if have[id] {
			continue
		}
		link := &models.UserRole{UserID: userID, RoleID: id}
		stamp(&link.BaseEntity, actor)
		if _, err := s.r.UserRoles.Add(ctx, link); err != nil {
			return err
		}
	}
	if _, err := s.r.UserRoles.SaveChanges(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, "User", userID, models.AuditUpdate, map[string]any{
		"Roles": map[string][]uint{"old": before, "new": uniq(roleIDs)},
	})
	return nil
}

// AddRole идемпотентна: повторное назначение ничего не меняет.
func (s *UserService) AddRole(ctx context.Context, actor Actor, userID, roleID uint) error {
	links, err := s.links(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.r.Roles.GetByID(ctx, roleID); err != nil {
		return notFound(err, "Role", roleID)
	}
	for _, l := range links {
		if l.RoleID == roleID {
			return nil
		}
	}
	ctx = repo.WithUnit(ctx)
	link := &models.UserRole{UserID: userID, RoleID: roleID}
	stamp(&link.BaseEntity, actor)
	if _, err := s.r.UserRoles.Add(ctx, link); err != nil {
		return err
	}
	if _, err := s.r.UserRoles.SaveChanges(ctx); err != nil {
		return err
	}
	s.audit.Record(ctx, actor, "User", userID, models.AuditUpdate, map[string]any{"RoleAdded": roleID})
	return nil
}

func (s *UserService) AddRoleByName(ctx context.Context, actor Actor, userID uint, name string) error {
	role, err := s.r.Roles.FindOne(ctx, repo.Where(repo.EqFold("Name", strings.TrimSpace(name))))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fail(ErrValidation, "role %q does not exist", name)
		}
		return err
	}
	return s.AddRole(ctx, actor, userID, role.ID)
}

func (s *UserService) RemoveRole(ctx context.Context, actor Actor, userID, roleID uint) error {
	links, err := s.links(ctx, userID)
	if err != nil {
		return err
	}
	for _, l := range links {
		if l.RoleID != roleID {
			continue
		}
		ctx = repo.WithUnit(ctx)
		if err := s.r.UserRoles.Remove(ctx, l); err != nil {
			return err
		}
		if _, err := s.r.UserRoles.SaveChanges(ctx); err != nil {
			return err
		}
		s.audit.Record(ctx, actor, "User", userID, models.AuditUpdate, map[string]any{"RoleRemoved": roleID})
		return nil
	}
	return fail(ErrNotFound, "user %d has no role %d", userID, roleID)
}

// Touch отмечает время входа без записи в журнал изменений.
func (s *UserService) Touch(ctx context.Context, u *models.User, at time.Time) error {
	err := s.touch(ctx, u, at)
	if !errors.Is(err, repo.ErrConcurrency) {
		return err
	}
	// запись изменили между чтением и входом: берём свежую версию
	fresh, err := s.r.Users.GetByID(ctx, u.ID)
	if err != nil {
		return err
	}
	return s.touch(ctx, fresh, at)
}

func (s *UserService) touch(ctx context.Context, u *models.User, at time.Time) error {
	u.LastLoginAt = &at
	ctx = repo.WithUnit(ctx)
	if err := s.r.Users.Update(ctx, u); err != nil {
		return err
	}
	_, err := s.r.Users.SaveChanges(ctx)
	return err
}

// permissionNames: отсортированные имена прав набора ролей.
func permissionNames(ctx context.Context, r *Repos, roleIDs []uint) ([]string, error) {
	if len(roleIDs) == 0 {
		return []string{}, nil
	}
	links, err := r.RolePermissions.GetAll(ctx, repo.Where(repo.In("RoleId", roleIDs)))
	if err != nil {
		return nil, err
	}
	permIDs := make([]uint, len(links))
	for i, l := range links {
		permIDs[i] = l.PermissionID
	}
	perms, err := byID(ctx, r.Permissions, permIDs)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if !seen[p.Name] {
			seen[p.Name] = true
			out = append(out, p.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func uniq(in []uint) []uint {
	out := make([]uint, 0, len(in))
	for _, v := range in {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
