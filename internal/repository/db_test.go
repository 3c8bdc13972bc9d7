package repository_test

import (
	"context"
	"os"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresDB(t *testing.T) {
	t.Run("Успешное подключение", func(t *testing.T) {
		// Этот тест требует запущенной PostgreSQL базы данных
		dsn := os.Getenv("DATABASE_DSN")
		if dsn == "" {
			t.Skip("Пропуск теста: переменная окружения DATABASE_DSN не установлена")
		}

		db, err := repository.NewPostgresDB(dsn)
		require.NoError(t, err)
		require.NotNil(t, db)

		require.NoError(t, repository.EnsureSchema(context.Background(), db))
		require.NoError(t, db.Close(), "Ошибка при закрытии соединения с БД")
	})

	t.Run("Ошибка: Невалидный DSN", func(t *testing.T) {
		db, err := repository.NewPostgresDB("это точно не dsn")

		require.Error(t, err)
		assert.Nil(t, db)
		assert.Contains(t, err.Error(), "ошибка")
	})
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS accounts`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repository.EnsureSchema(context.Background(), sqlxDB))
	assert.NoError(t, mock.ExpectationsWereMet())
}
