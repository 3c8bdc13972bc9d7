package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/maynagashev/tokenvault/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Вспомогательная функция для создания мока БД и реестра.
func setupLedgerMock(t *testing.T) (repository.Ledger, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return repository.NewPostgresLedger(sqlxDB), mock
}

var (
	selectAccountQuery = regexp.QuoteMeta(`SELECT address, owner, lamports, data FROM accounts WHERE address=$1`)
	upsertAccountQuery = regexp.QuoteMeta(`INSERT INTO accounts (address, owner, lamports, data) VALUES ($1, $2, $3, $4)`)
	deleteAccountQuery = regexp.QuoteMeta(`DELETE FROM accounts WHERE address=$1`)
)

func TestPostgresLedger_GetAccount(t *testing.T) {
	address := models.NewUniquePubkey()
	owner := models.NewUniquePubkey()

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expected    *models.Account
		expectedErr error
	}{
		{
			name: "Успешный поиск",
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows([]string{"address", "owner", "lamports", "data"}).
					AddRow(address[:], owner[:], "2039280", []byte{1, 2, 3})
				mock.ExpectQuery(selectAccountQuery).WithArgs(address).WillReturnRows(rows)
			},
			expected: &models.Account{Address: address, Owner: owner, Lamports: 2039280, Data: []byte{1, 2, 3}},
		},
		{
			name: "Аккаунт не найден",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(selectAccountQuery).WithArgs(address).WillReturnError(sql.ErrNoRows)
			},
			expectedErr: repository.ErrAccountNotFound,
		},
		{
			name: "Ошибка базы данных",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(selectAccountQuery).WithArgs(address).WillReturnError(errors.New("connection error"))
			},
			expectedErr: errors.New("ошибка выполнения запроса на получение аккаунта"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, mock := setupLedgerMock(t)
			tt.mockSetup(mock)

			acc, err := ledger.GetAccount(context.Background(), address)

			if tt.expectedErr != nil {
				require.Error(t, err)
				if errors.Is(tt.expectedErr, repository.ErrAccountNotFound) {
					require.ErrorIs(t, err, repository.ErrAccountNotFound)
				} else {
					assert.Contains(t, err.Error(), tt.expectedErr.Error())
				}
				assert.Nil(t, acc)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, acc)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "Не все ожидания мока были выполнены")
		})
	}
}

func TestPostgresLedger_SaveAccount(t *testing.T) {
	ledger, mock := setupLedgerMock(t)
	acc := &models.Account{Address: models.NewUniquePubkey(), Owner: models.NewUniquePubkey(), Lamports: 42}

	mock.ExpectExec(upsertAccountQuery).
		WithArgs(acc.Address, acc.Owner, "42", []byte{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ledger.SaveAccount(context.Background(), acc))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedger_DeleteAccount(t *testing.T) {
	address := models.NewUniquePubkey()

	t.Run("Успешное удаление", func(t *testing.T) {
		ledger, mock := setupLedgerMock(t)
		mock.ExpectExec(deleteAccountQuery).WithArgs(address).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, ledger.DeleteAccount(context.Background(), address))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Аккаунт не найден", func(t *testing.T) {
		ledger, mock := setupLedgerMock(t)
		mock.ExpectExec(deleteAccountQuery).WithArgs(address).WillReturnResult(sqlmock.NewResult(0, 0))

		err := ledger.DeleteAccount(context.Background(), address)
		require.ErrorIs(t, err, repository.ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresLedger_Atomic(t *testing.T) {
	address := models.NewUniquePubkey()
	owner := models.NewUniquePubkey()

	t.Run("Фиксация при успехе", func(t *testing.T) {
		ledger, mock := setupLedgerMock(t)
		mock.ExpectBegin()
		rows := sqlmock.NewRows([]string{"address", "owner", "lamports", "data"}).
			AddRow(address[:], owner[:], "10", []byte{})
		mock.ExpectQuery(selectAccountQuery + ` FOR UPDATE`).WithArgs(address).WillReturnRows(rows)
		mock.ExpectExec(upsertAccountQuery).
			WithArgs(address, owner, "15", []byte{}).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := ledger.Atomic(context.Background(), func(ctx context.Context, accounts repository.AccountRepository) error {
			acc, err := accounts.GetAccount(ctx, address)
			if err != nil {
				return err
			}
			acc.Lamports += 5
			return accounts.SaveAccount(ctx, acc)
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Откат при ошибке", func(t *testing.T) {
		ledger, mock := setupLedgerMock(t)
		fnErr := errors.New("операция отклонена")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := ledger.Atomic(context.Background(), func(context.Context, repository.AccountRepository) error {
			return fnErr
		})

		require.ErrorIs(t, err, fnErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
