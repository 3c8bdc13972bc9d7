package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/tokenvault/models"
)

// AccountRepository определяет методы для работы с аккаунтами реестра.
type AccountRepository interface {
	GetAccount(ctx context.Context, address models.Pubkey) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	DeleteAccount(ctx context.Context, address models.Pubkey) error
}

// Ledger - хранилище аккаунтов с атомарным исполнением операций.
// Все изменения, сделанные внутри fn через переданный репозиторий, применяются
// целиком при nil-ошибке и отбрасываются целиком при любой ошибке.
type Ledger interface {
	AccountRepository
	Atomic(ctx context.Context, fn func(ctx context.Context, accounts AccountRepository) error) error
}

// postgresLedger реализует Ledger для PostgreSQL.
type postgresLedger struct {
	postgresAccounts
	db *sqlx.DB
}

// NewPostgresLedger создает реестр аккаунтов поверх PostgreSQL.
func NewPostgresLedger(db *sqlx.DB) Ledger {
	return &postgresLedger{
		postgresAccounts: postgresAccounts{q: db},
		db:               db,
	}
}

// Atomic выполняет fn в транзакции БД уровня SERIALIZABLE.
// Существующие строки читаются с FOR UPDATE, поэтому писатели одних и тех же аккаунтов
// ждут друг друга; конкурирующее создание одного адреса обрывается ошибкой сериализации.
func (l *postgresLedger) Atomic(
	ctx context.Context,
	fn func(ctx context.Context, accounts AccountRepository) error,
) error {
	tx, err := l.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}

	if err = fn(ctx, &postgresAccounts{q: tx, forUpdate: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("[LedgerRepo] Ошибка отката транзакции", "error", rbErr)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// postgresAccounts реализует AccountRepository поверх *sqlx.DB или *sqlx.Tx.
type postgresAccounts struct {
	q         sqlx.ExtContext
	forUpdate bool
}

// accountRow - строка таблицы accounts.
type accountRow struct {
	Address  models.Pubkey `db:"address"`
	Owner    models.Pubkey `db:"owner"`
	Lamports uint64        `db:"lamports"`
	Data     []byte        `db:"data"`
}

// GetAccount находит аккаунт по адресу.
func (r *postgresAccounts) GetAccount(ctx context.Context, address models.Pubkey) (*models.Account, error) {
	query := `SELECT address, owner, lamports, data FROM accounts WHERE address=$1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}
	var row accountRow

	err := sqlx.GetContext(ctx, r.q, &row, query, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		slog.Error("[LedgerRepo] Ошибка при поиске аккаунта", "address", address, "error", err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение аккаунта: %w", err)
	}

	return &models.Account{
		Address:  row.Address,
		Owner:    row.Owner,
		Lamports: row.Lamports,
		Data:     row.Data,
	}, nil
}

// SaveAccount создает или обновляет аккаунт.
func (r *postgresAccounts) SaveAccount(ctx context.Context, account *models.Account) error {
	query := `INSERT INTO accounts (address, owner, lamports, data) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (address) DO UPDATE
	          SET owner = EXCLUDED.owner, lamports = EXCLUDED.lamports, data = EXCLUDED.data, updated_at = now()`

	data := account.Data
	if data == nil {
		data = []byte{}
	}
	_, err := r.q.ExecContext(ctx, query,
		account.Address, account.Owner, strconv.FormatUint(account.Lamports, 10), data,
	)
	if err != nil {
		slog.Error("[LedgerRepo] Ошибка сохранения аккаунта", "address", account.Address, "error", err)
		return fmt.Errorf("ошибка выполнения запроса на сохранение аккаунта: %w", err)
	}

	slog.Debug("[LedgerRepo] Аккаунт сохранен", "address", account.Address, "lamports", account.Lamports)
	return nil
}

// DeleteAccount удаляет аккаунт. Удаление несуществующего аккаунта - ErrAccountNotFound.
func (r *postgresAccounts) DeleteAccount(ctx context.Context, address models.Pubkey) error {
	query := `DELETE FROM accounts WHERE address=$1`

	res, err := r.q.ExecContext(ctx, query, address)
	if err != nil {
		slog.Error("[LedgerRepo] Ошибка удаления аккаунта", "address", address, "error", err)
		return fmt.Errorf("ошибка выполнения запроса на удаление аккаунта: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества удаленных строк: %w", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	slog.Debug("[LedgerRepo] Аккаунт удален", "address", address)
	return nil
}

// Кастомные ошибки репозитория.
var (
	ErrAccountNotFound = errors.New("аккаунт не найден")
)
