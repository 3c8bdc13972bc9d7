// Package ledger реализует сервис выделения аккаунтов реестра: резервирование
// баланса под хранение данных, обнаружение коллизий адресов и возврат резерва при закрытии.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/maynagashev/tokenvault/models"
)

// Параметры резерва под хранение (значения по умолчанию реестра).
const (
	AccountStorageOverhead = 128  // Служебные байты на каждый аккаунт
	LamportsPerByteYear    = 3480 // Стоимость байта в год
	ExemptionThreshold     = 2    // Сколько лет оплачивается вперед для освобождения от платы
)

// SystemProgramID - владелец "пустых" аккаунтов с нативным балансом.
var SystemProgramID = models.Pubkey{}

// MinimumBalance возвращает минимальный резерв для аккаунта с dataLen байт данных.
func MinimumBalance(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * ExemptionThreshold
}

// CreateAccount выделяет аккаунт по адресу address с space байт данных и владельцем owner.
// Резерв списывается с payer. Если адрес уже занят - ErrAccountInUse.
func CreateAccount(
	ctx context.Context,
	accounts repository.AccountRepository,
	payer, address models.Pubkey,
	space int,
	owner models.Pubkey,
) (*models.Account, error) {
	if _, err := accounts.GetAccount(ctx, address); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountInUse, address)
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	payerAcc, err := accounts.GetAccount(ctx, payer)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: плательщик %s не найден", ErrInsufficientLamports, payer)
		}
		return nil, err
	}

	rent := MinimumBalance(space)
	if payerAcc.Lamports < rent {
		return nil, fmt.Errorf("%w: нужно %d, доступно %d", ErrInsufficientLamports, rent, payerAcc.Lamports)
	}
	payerAcc.Lamports -= rent
	if err = accounts.SaveAccount(ctx, payerAcc); err != nil {
		return nil, err
	}

	acc := &models.Account{
		Address:  address,
		Owner:    owner,
		Lamports: rent,
		Data:     make([]byte, space),
	}
	if err = accounts.SaveAccount(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// CloseAccount переводит весь нативный баланс аккаунта на destination и удаляет аккаунт.
// Возвращает возвращенную сумму.
func CloseAccount(
	ctx context.Context,
	accounts repository.AccountRepository,
	address, destination models.Pubkey,
) (uint64, error) {
	if address == destination {
		return 0, ErrSelfClose
	}
	acc, err := accounts.GetAccount(ctx, address)
	if err != nil {
		return 0, err
	}
	if err = Credit(ctx, accounts, destination, acc.Lamports); err != nil {
		return 0, err
	}
	if err = accounts.DeleteAccount(ctx, address); err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// Credit зачисляет lamports на адрес, создавая системный аккаунт при необходимости.
func Credit(ctx context.Context, accounts repository.AccountRepository, address models.Pubkey, lamports uint64) error {
	acc, err := accounts.GetAccount(ctx, address)
	if err != nil {
		if !errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}
		acc = &models.Account{Address: address, Owner: SystemProgramID}
	}
	if acc.Lamports > math.MaxUint64-lamports {
		return ErrLamportsOverflow
	}
	acc.Lamports += lamports
	return accounts.SaveAccount(ctx, acc)
}

// Ошибки сервиса выделения аккаунтов.
var (
	ErrAccountInUse         = errors.New("адрес уже занят")
	ErrInsufficientLamports = errors.New("недостаточно средств для резерва")
	ErrLamportsOverflow     = errors.New("переполнение нативного баланса")
	ErrSelfClose            = errors.New("нельзя закрыть аккаунт на самого себя")
)
