package repo

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"starter/internal/models"
)

func newMockBackend(t *testing.T) (*GormBackend, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	return Gorm(gdb), mock
}

func TestGormPagedCountsThenPages(t *testing.T) {
	b, mock := newMockBackend(t)
	r := New[models.User](b, Users)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "users" WHERE .*LOWER\("user_name"\) LIKE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE .*LOWER\("email"\) LIKE .*ORDER BY "email" DESC,\s*"id" LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_name", "email"}).
			AddRow(6, "ann", "ann@x.com").
			AddRow(7, "bob", "bob@x.com"))

	p, err := r.GetPaged(context.Background(), PageRequest{
		PageNumber: 2, PageSize: 5, SearchTerm: "x.com", SortBy: "EMAIL", SortDirection: "desc",
	}, Query{})
	require.NoError(t, err)
	assert.EqualValues(t, 12, p.TotalCount)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrevious)
	assert.True(t, p.HasNext)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "ann", p.Items[0].UserName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUnknownSortFallsBackToID(t *testing.T) {
	b, mock := newMockBackend(t)
	r := New[models.Role](b, Roles)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "roles"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "roles" ORDER BY "id" LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Admin"))

	p, err := r.GetPaged(context.Background(), PageRequest{PageNumber: 1, PageSize: 10, SortBy: "nonexistentField"}, Query{})
	require.NoError(t, err)
	require.Len(t, p.Items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStaleUpdateIsConcurrencyError(t *testing.T) {
	b, mock := newMockBackend(t)
	r := New[models.Role](b, Roles)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "roles" SET .*WHERE .*row_version = `).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	role := &models.Role{Name: "Admin"}
	role.ID = 3
	role.RowVersion = 4

	ctx := WithUnit(context.Background())
	require.NoError(t, r.Update(ctx, role))
	_, err := r.SaveChanges(ctx)
	require.ErrorIs(t, err, ErrConcurrency)
	assert.EqualValues(t, 4, role.RowVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormUniqueViolationIsDuplicate(t *testing.T) {
	b, mock := newMockBackend(t)
	r := New[models.Role](b, Roles)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "roles"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_roles_name"})
	mock.ExpectRollback()

	ctx := WithUnit(context.Background())
	_, err := r.Add(ctx, &models.Role{Name: "Admin"})
	require.NoError(t, err)
	_, err = r.SaveChanges(ctx)
	require.ErrorIs(t, err, ErrDuplicate)
	assert.Contains(t, err.Error(), "idx_roles_name")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGormGetByIDNotFound(t *testing.T) {
	b, mock := newMockBackend(t)
	r := New[models.Permission](b, Permissions)

	mock.ExpectQuery(`SELECT \* FROM "permissions" WHERE "permissions"\."id" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
