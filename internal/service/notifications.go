package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"starter/internal/models"
	"starter/internal/repo"
)

var notificationTypes = []string{"info", "success", "warning", "error"}

type NotificationService struct {
	*CRUD[models.Notification, *models.Notification, models.NotificationDTO]
	r   *Repos
	now func() time.Time
}

func NewNotificationService(r *Repos, audit AuditSink) *NotificationService {
	s := &NotificationService{r: r, now: func() time.Time { return time.Now().UTC() }}
	s.CRUD = NewCRUD[models.Notification](r.Notifications, NotificationMapper, audit, Hooks[models.Notification, models.NotificationDTO]{
		Include:  s.loadOwners,
		Validate: s.validate,
	})
	return s
}

// loadOwners подставляет владельца для отображаемого имени в DTO.
func (s *NotificationService) loadOwners(ctx context.Context, items []*models.Notification) error {
	userIDs := make([]uint, len(items))
	for i, n := range items {
		userIDs[i] = n.UserID
	}
	users, err := byID(ctx, s.r.Users, uniq(userIDs))
	if err != nil {
		return err
	}
	for _, n := range items {
		n.User = users[n.UserID]
	}
	return nil
}

func (s *NotificationService) validate(ctx context.Context, d models.NotificationDTO, existing *models.Notification) error {
	if strings.TrimSpace(d.Title) == "" {
		return fail(ErrValidation, "title is required")
	}
	if d.Type != "" && !slices.Contains(notificationTypes, d.Type) {
		return fail(ErrValidation, "type must be one of %s", strings.Join(notificationTypes, ", "))
	}
	if existing == nil {
		if _, err := s.r.Users.GetByID(ctx, d.UserID); err != nil {
			return fail(ErrValidation, "user %d does not exist", d.UserID)
		}
	}
	return nil
}

// Notify: уведомление от имени системы или пользователя.
func (s *NotificationService) Notify(ctx context.Context, actor Actor, userID uint, title, message, typ string) (models.NotificationDTO, error) {
	if typ == "" {
		typ = "info"
	}
	return s.Create(ctx, actor, models.NotificationDTO{UserID: userID, Title: title, Message: message, Type: typ})
}

func mine(userID uint, unreadOnly bool) repo.Query {
	q := repo.Query{
		Filter:  []repo.Cond{repo.Eq("UserId", userID)},
		OrderBy: []repo.Order{{Field: "CreatedAt", Desc: true}, {Field: "Id", Desc: true}},
	}
	if unreadOnly {
		q.Filter = append(q.Filter, repo.Eq("IsRead", false))
	}
	return q
}

// Mine: уведомления пользователя, новые первыми (если сортировка не задана).
func (s *NotificationService) Mine(ctx context.Context, userID uint, req repo.PageRequest, unreadOnly bool) (*repo.Paged[models.NotificationDTO], error) {
	return s.GetPaged(ctx, req, mine(userID, unreadOnly))
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.r.Notifications.Count(ctx, mine(userID, true))
}

// MarkAsRead доступна только владельцу; чужое уведомление выглядит как отсутствующее.
func (s *NotificationService) MarkAsRead(ctx context.Context, actor Actor, id uint) (models.NotificationDTO, error) {
	n, err := s.Entity(ctx, id)
	if err != nil {
		return models.NotificationDTO{}, err
	}
	if n.UserID != actor.ID() {
		return models.NotificationDTO{}, fail(ErrNotFound, "Notification %d not found", id)
	}
	if !n.IsRead {
		at := s.now()
		n.IsRead, n.ReadAt = true, &at
		if err := s.Save(ctx, actor, n, nil); err != nil {
			return models.NotificationDTO{}, err
		}
	}
	return s.one(ctx, n)
}

// MarkAllAsRead помечает все непрочитанные уведомления пользователя одним SaveChanges.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, actor Actor) (int64, error) {
	unread, err := s.r.Notifications.GetAll(ctx, mine(actor.ID(), true))
	if err != nil {
		return 0, err
	}
	if len(unread) == 0 {
		return 0, nil
	}
	ctx = repo.WithUnit(ctx)
	at := s.now()
	for _, n := range unread {
		n.IsRead, n.ReadAt = true, &at
		n.ModifiedByID = actor.UserID
		if err := s.r.Notifications.Update(ctx, n); err != nil {
			return 0, err
		}
	}
	return s.r.Notifications.SaveChanges(ctx)
}
