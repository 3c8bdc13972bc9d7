package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL, импортируем для регистрации
)

const (
	maxOpenConns    = 25              // Максимальное количество открытых соединений
	maxIdleConns    = 25              // Максимальное количество простаивающих соединений
	connMaxLifetime = 5 * time.Minute // Максимальное время жизни соединения
	connMaxIdleTime = 5 * time.Minute // Максимальное время простоя соединения
)

// schema описывает таблицу аккаунтов реестра.
// lamports хранится как NUMERIC: uint64 не помещается в BIGINT.
const schema = `CREATE TABLE IF NOT EXISTS accounts (
	address    BYTEA PRIMARY KEY,
	owner      BYTEA NOT NULL,
	lamports   NUMERIC(20, 0) NOT NULL DEFAULT 0,
	data       BYTEA NOT NULL DEFAULT ''::bytea,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresDB создает и возвращает новое подключение к PostgreSQL.
func NewPostgresDB(dsn string) (*sqlx.DB, error) {
	slog.Info("[DB] Подключение к PostgreSQL...")

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Проверка соединения
	if err = db.Ping(); err != nil {
		// Закрываем соединение в случае ошибки пинга
		closeErr := db.Close()
		if closeErr != nil {
			slog.Error("[DB] Ошибка закрытия соединения с БД после неудачного пинга", "error", closeErr)
		}
		return nil, fmt.Errorf("ошибка проверки соединения с БД (ping): %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	slog.Info("[DB] Подключение к PostgreSQL успешно установлено.")
	return db, nil
}

// EnsureSchema создает таблицы реестра, если их еще нет.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ошибка создания схемы БД: %w", err)
	}
	slog.Info("[DB] Схема БД готова")
	return nil
}
