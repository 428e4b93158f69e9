package service

import (
	"context"

	"starter/internal/models"
	"starter/internal/repo"
)

// Repos: репозитории всех сущностей поверх одного бэкенда.
type Repos struct {
	Backend         repo.Backend
	Users           repo.Repository[models.User]
	Roles           repo.Repository[models.Role]
	Permissions     repo.Repository[models.Permission]
	UserRoles       repo.Repository[models.UserRole]
	RolePermissions repo.Repository[models.RolePermission]
	RefreshTokens   repo.Repository[models.RefreshToken]
	Settings        repo.Repository[models.Settings]
	AuditLogs       repo.Repository[models.AuditLog]
	Notifications   repo.Repository[models.Notification]
}

func NewRepos(b repo.Backend) *Repos {
	return &Repos{
		Backend:         b,
		Users:           repo.New[models.User](b, repo.Users),
		Roles:           repo.New[models.Role](b, repo.Roles),
		Permissions:     repo.New[models.Permission](b, repo.Permissions),
		UserRoles:       repo.New[models.UserRole](b, repo.UserRoles),
		RolePermissions: repo.New[models.RolePermission](b, repo.RolePermissions),
		RefreshTokens:   repo.New[models.RefreshToken](b, repo.RefreshTokens),
		Settings:        repo.New[models.Settings](b, repo.Settings),
		AuditLogs:       repo.New[models.AuditLog](b, repo.AuditLogs),
		Notifications:   repo.New[models.Notification](b, repo.Notifications),
	}
}

// stamp заполняет авторов у записей, которые сервисы создают сами (связи, токены).
func stamp(b *models.BaseEntity, actor Actor) {
	b.CreatedByID, b.ModifiedByID = actor.UserID, actor.UserID
}

func ids[T any, P models.Ptr[T]](items []*T) []uint {
	out := make([]uint, len(items))
	for i, e := range items {
		out[i] = P(e).Base().ID
	}
	return out
}

// byID загружает записи по набору id.
func byID[T any, P models.Ptr[T]](ctx context.Context, r repo.Repository[T], idset []uint) (map[uint]*T, error) {
	out := make(map[uint]*T, len(idset))
	if len(idset) == 0 {
		return out, nil
	}
	items, err := r.GetAll(ctx, repo.Where(repo.In("Id", idset)))
	if err != nil {
		return nil, err
	}
	for _, e := range items {
		out[P(e).Base().ID] = e
	}
	return out, nil
}

// removeAll ставит в Unit удаление всех записей по фильтру.
func removeAll[T any](ctx context.Context, r repo.Repository[T], q repo.Query) error {
	items, err := r.GetAll(ctx, q)
	if err != nil {
		return err
	}
	for _, e := range items {
		if err := r.Remove(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
