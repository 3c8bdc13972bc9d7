package services

import (
	"errors"
	"fmt"

	"github.com/maynagashev/tokenvault/internal/custody"
)

// VaultError - ошибка хранилища с числовым кодом программы.
type VaultError struct {
	Code uint32 // Код ошибки программы
	Name string // Имя ошибки, стабильное для клиентов
	Msg  string
}

func (e *VaultError) Error() string {
	return e.Msg
}

// Ошибки хранилища. Сравниваются через errors.Is, детали добавляются оборачиванием.
var (
	ErrVaultAlreadyExists  = &VaultError{Code: 6000, Name: "VaultAlreadyExists", Msg: "хранилище уже существует"}
	ErrUnauthorized        = &VaultError{Code: 6001, Name: "Unauthorized", Msg: "подписант не является владельцем"}
	ErrInvalidAsset        = &VaultError{Code: 6002, Name: "InvalidMint", Msg: "актив не инициализирован"}
	ErrInsufficientBalance = &VaultError{Code: 6003, Name: "InsufficientBalance", Msg: "недостаточно средств"}
	ErrNonZeroBalance      = &VaultError{Code: 6004, Name: "NonZeroBalance", Msg: "хранилище не пусто"}
	ErrMathOverflow        = &VaultError{Code: 6005, Name: "MathOverflow", Msg: "арифметическое переполнение"}
	ErrInvalidArgument     = &VaultError{Code: 6006, Name: "InvalidArgument", Msg: "неверный аргумент"}
	ErrVaultNotFound       = &VaultError{Code: 3012, Name: "AccountNotInitialized", Msg: "хранилище не найдено"}
)

// custodyError переводит ошибку сервиса переводов в ошибку хранилища.
// Неизвестные ошибки возвращаются как есть.
func custodyError(err error) error {
	var kind error
	switch {
	case errors.Is(err, custody.ErrInsufficientFunds):
		kind = ErrInsufficientBalance
	case errors.Is(err, custody.ErrOwnerMismatch), errors.Is(err, custody.ErrMissingSignature):
		kind = ErrUnauthorized
	case errors.Is(err, custody.ErrOverflow):
		kind = ErrMathOverflow
	case errors.Is(err, custody.ErrNonZeroBalance):
		kind = ErrNonZeroBalance
	case errors.Is(err, custody.ErrMintMismatch),
		errors.Is(err, custody.ErrMintDecimals),
		errors.Is(err, custody.ErrUninitializedState),
		errors.Is(err, custody.ErrIncorrectProgramID),
		errors.Is(err, custody.ErrInvalidAccountData),
		errors.Is(err, custody.ErrAccountFrozen):
		kind = ErrInvalidAsset
	default:
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
