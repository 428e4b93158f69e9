package service

import (
	"errors"
	"fmt"

	"starter/internal/repo"
)

// Виды ошибок сервисного слоя. HTTP-статус по ним выбирает api.
var (
	ErrValidation       = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrTimeout          = errors.New("timeout")
	ErrNotImplemented   = errors.New("not implemented")
)

func fail(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// notFound переводит repo.ErrNotFound в ErrNotFound с именем сущности.
func notFound(err error, entity string, id any) error {
	if errors.Is(err, repo.ErrNotFound) {
		return fail(ErrNotFound, "%s %v not found", entity, id)
	}
	return err
}
