package repo

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrConcurrency  = errors.New("row version conflict")
	ErrDuplicate    = errors.New("duplicate key")
	ErrNoUnit       = errors.New("no unit of work in context")
	ErrUnknownField = errors.New("unknown field")
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// translate приводит ошибки драйверов к ошибкам пакета, сохраняя исходную.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %s", ErrDuplicate, myErr.Message)
	}
	return err
}
