package service

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"starter/internal/logs"
	"starter/internal/models"
	"starter/internal/repo"
)

// AuditSink принимает записи журнала. Ошибки записи не возвращаются вызывающему.
type AuditSink interface {
	Record(ctx context.Context, actor Actor, entity string, id uint, action string, changes any)
}

type NopAudit struct{}

func (NopAudit) Record(context.Context, Actor, string, uint, string, any) {}

// AuditService пишет журнал в отдельном Unit, независимо от основной операции,
// и отдаёт его только на чтение.
type AuditService struct {
	*CRUD[models.AuditLog, *models.AuditLog, models.AuditLogDTO]
	repo repo.Repository[models.AuditLog]
}

func NewAuditService(r repo.Repository[models.AuditLog]) *AuditService {
	return &AuditService{
		CRUD: NewCRUD[models.AuditLog](r, AuditLogMapper, NopAudit{}, Hooks[models.AuditLog, models.AuditLogDTO]{}),
		repo: r,
	}
}

func (s *AuditService) Record(ctx context.Context, actor Actor, entity string, id uint, action string, changes any) {
	entry := &models.AuditLog{
		EntityName: entity,
		EntityID:   id,
		Action:     action,
		UserID:     actor.UserID,
		UserName:   actor.UserName,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
		RequestID:  actor.RequestID,
	}
	entry.CreatedByID = actor.UserID
	if changes != nil {
		raw, err := json.Marshal(changes)
		if err != nil {
			logs.WithRequest(actor.RequestID, actor.ID()).Warnf("audit: encode %s %d: %v", entity, id, err)
		} else {
			entry.Changes = datatypes.JSON(raw)
		}
	}

	// запрос мог уже завершиться, журнал всё равно пишем
	ctx = repo.NewUnit(context.WithoutCancel(ctx))
	log := logs.WithRequest(actor.RequestID, actor.ID())
	if _, err := s.repo.Add(ctx, entry); err != nil {
		log.Errorf("audit: enqueue %s %s %d: %v", action, entity, id, err)
		return
	}
	if _, err := s.repo.SaveChanges(ctx); err != nil {
		log.Errorf("audit: write %s %s %d: %v", action, entity, id, err)
	}
}

// Create/Update/Delete журнала недоступны.
func (s *AuditService) Create(context.Context, Actor, models.AuditLogDTO) (models.AuditLogDTO, error) {
	return models.AuditLogDTO{}, fail(ErrInvalidOperation, "audit log is append-only")
}

func (s *AuditService) Update(context.Context, Actor, uint, models.AuditLogDTO) (models.AuditLogDTO, error) {
	return models.AuditLogDTO{}, fail(ErrInvalidOperation, "audit log is append-only")
}

func (s *AuditService) Delete(context.Context, Actor, uint) (bool, error) {
	return false, fail(ErrInvalidOperation, "audit log is append-only")
}
