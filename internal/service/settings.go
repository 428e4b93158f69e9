package service

import (
	"context"
	"errors"
	"strings"

	"starter/internal/models"
	"starter/internal/repo"
)

// SettingsService: настройки приложения. UserID == nil означает глобальную
// настройку; пользовательская перекрывает глобальную с тем же ключом.
type SettingsService struct {
	*CRUD[models.Settings, *models.Settings, models.SettingsDTO]
	r *Repos
}

func NewSettingsService(r *Repos, audit AuditSink) *SettingsService {
	s := &SettingsService{r: r}
	s.CRUD = NewCRUD[models.Settings](r.Settings, SettingsMapper, audit, Hooks[models.Settings, models.SettingsDTO]{
		Validate: s.validate,
	})
	return s
}

func (s *SettingsService) validate(ctx context.Context, d models.SettingsDTO, existing *models.Settings) error {
	key := strings.TrimSpace(d.Key)
	if key == "" {
		return fail(ErrValidation, "settings key is required")
	}
	other, err := s.find(ctx, key, d.UserID)
	switch {
	case err == nil && (existing == nil || other.ID != existing.ID):
		return fail(ErrValidation, "setting %q already exists in this scope", key)
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return err
	}
	return nil
}

func (s *SettingsService) find(ctx context.Context, key string, userID *uint) (*models.Settings, error) {
	return s.r.Settings.FindOne(ctx, repo.Where(repo.Eq("Key", key), repo.Eq("UserId", userID)))
}

// GetByKey ищет настройку пользователя, затем глобальную.
func (s *SettingsService) GetByKey(ctx context.Context, key string, userID *uint) (models.SettingsDTO, error) {
	key = strings.TrimSpace(key)
	if userID != nil {
		st, err := s.find(ctx, key, userID)
		if err == nil {
			return SettingsMapper.ToDTO(st), nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return models.SettingsDTO{}, err
		}
	}
	st, err := s.find(ctx, key, nil)
	if err != nil {
		return models.SettingsDTO{}, notFound(err, "Settings", key)
	}
	return SettingsMapper.ToDTO(st), nil
}

// Upsert создаёт или обновляет настройку (key, userID).
func (s *SettingsService) Upsert(ctx context.Context, actor Actor, key string, userID *uint, d models.SettingsDTO) (models.SettingsDTO, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return models.SettingsDTO{}, fail(ErrValidation, "settings key is required")
	}
	d.Key, d.UserID = key, userID

	st, err := s.find(ctx, key, userID)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return s.Create(ctx, actor, d)
	case err != nil:
		return models.SettingsDTO{}, err
	}
	before := snapshot(s.r.Settings.Schema(), st)
	st.Value = d.Value
	if d.Category != "" {
		st.Category = d.Category
	}
	if d.Description != "" {
		st.Description = d.Description
	}
	if err := s.Save(ctx, actor, st, before); err != nil {
		return models.SettingsDTO{}, err
	}
	return SettingsMapper.ToDTO(st), nil
}

// ByCategory возвращает эффективные настройки категории, глобальные, перекрытые пользовательскими.
func (s *SettingsService) ByCategory(ctx context.Context, category string, userID *uint) ([]models.SettingsDTO, error) {
	q := repo.Query{
		Filter:  []repo.Cond{repo.EqFold("Category", strings.TrimSpace(category))},
		OrderBy: []repo.Order{{Field: "Key"}},
	}
	all, err := s.r.Settings.GetAll(ctx, q)
	if err != nil {
		return nil, err
	}
	own := make(map[string]*models.Settings)
	if userID != nil {
		for _, st := range all {
			if st.UserID != nil && *st.UserID == *userID {
				own[st.Key] = st
			}
		}
	}
	out := make([]models.SettingsDTO, 0, len(all))
	for _, st := range all {
		if st.UserID != nil {
			continue
		}
		if o, ok := own[st.Key]; ok {
			st = o
			delete(own, st.Key)
		}
		out = append(out, SettingsMapper.ToDTO(st))
	}
	for _, st := range all {
		if st.UserID != nil && own[st.Key] == st {
			out = append(out, SettingsMapper.ToDTO(st))
		}
	}
	return out, nil
}
