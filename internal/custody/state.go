package custody

import (
	"encoding/binary"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/maynagashev/tokenvault/models"
)

// TokenProgramID - владелец аккаунтов эмиссий и токен-аккаунтов.
var TokenProgramID = models.Pubkey(solana.TokenProgramID)

// Размеры упакованных структур (совместимы с раскладкой SPL Token).
const (
	MintLen    = 82
	AccountLen = 165
)

// AccountState - состояние токен-аккаунта.
type AccountState uint8

const (
	AccountUninitialized AccountState = iota
	AccountInitialized
	AccountFrozen
)

// Mint описывает класс взаимозаменяемого актива.
type Mint struct {
	MintAuthority   *models.Pubkey
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *models.Pubkey
}

// TokenAccount - баланс одного владельца в одном активе.
type TokenAccount struct {
	Mint            models.Pubkey
	Owner           models.Pubkey // Полномочие на перевод и закрытие
	Amount          uint64
	Delegate        *models.Pubkey
	State           AccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *models.Pubkey
}

// Pack упаковывает эмиссию в MintLen байт.
func (m *Mint) Pack() []byte {
	buf := make([]byte, MintLen)
	packOptionPubkey(buf[0:36], m.MintAuthority)
	binary.LittleEndian.PutUint64(buf[36:44], m.Supply)
	buf[44] = m.Decimals
	if m.IsInitialized {
		buf[45] = 1
	}
	packOptionPubkey(buf[46:82], m.FreezeAuthority)
	return buf
}

// UnpackMint распаковывает эмиссию. Неинициализированная эмиссия - ErrUninitializedState.
func UnpackMint(data []byte) (*Mint, error) {
	if len(data) != MintLen {
		return nil, fmt.Errorf("%w: эмиссия %d байт", ErrInvalidAccountData, len(data))
	}
	m := &Mint{
		MintAuthority:   unpackOptionPubkey(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] == 1,
		FreezeAuthority: unpackOptionPubkey(data[46:82]),
	}
	if !m.IsInitialized {
		return nil, ErrUninitializedState
	}
	return m, nil
}

// Pack упаковывает токен-аккаунт в AccountLen байт. Баланс лежит по смещению 64.
func (a *TokenAccount) Pack() []byte {
	buf := make([]byte, AccountLen)
	copy(buf[0:32], a.Mint[:])
	copy(buf[32:64], a.Owner[:])
	binary.LittleEndian.PutUint64(buf[64:72], a.Amount)
	packOptionPubkey(buf[72:108], a.Delegate)
	buf[108] = byte(a.State)
	if a.IsNative != nil {
		binary.LittleEndian.PutUint32(buf[109:113], 1)
		binary.LittleEndian.PutUint64(buf[113:121], *a.IsNative)
	}
	binary.LittleEndian.PutUint64(buf[121:129], a.DelegatedAmount)
	packOptionPubkey(buf[129:165], a.CloseAuthority)
	return buf
}

// UnpackTokenAccount распаковывает токен-аккаунт.
func UnpackTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) != AccountLen {
		return nil, fmt.Errorf("%w: токен-аккаунт %d байт", ErrInvalidAccountData, len(data))
	}
	a := &TokenAccount{
		Amount:          binary.LittleEndian.Uint64(data[64:72]),
		Delegate:        unpackOptionPubkey(data[72:108]),
		State:           AccountState(data[108]),
		DelegatedAmount: binary.LittleEndian.Uint64(data[121:129]),
		CloseAuthority:  unpackOptionPubkey(data[129:165]),
	}
	copy(a.Mint[:], data[0:32])
	copy(a.Owner[:], data[32:64])
	if binary.LittleEndian.Uint32(data[109:113]) == 1 {
		native := binary.LittleEndian.Uint64(data[113:121])
		a.IsNative = &native
	}
	if a.State == AccountUninitialized {
		return nil, ErrUninitializedState
	}
	return a, nil
}

// packOptionPubkey пишет COption<Pubkey>: 4 байта тега + 32 байта ключа.
func packOptionPubkey(dst []byte, pk *models.Pubkey) {
	if pk == nil {
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	copy(dst[4:36], pk[:])
}

func unpackOptionPubkey(src []byte) *models.Pubkey {
	if binary.LittleEndian.Uint32(src[0:4]) != 1 {
		return nil
	}
	var pk models.Pubkey
	copy(pk[:], src[4:36])
	return &pk
}

// Ошибки сервиса переводов.
var (
	ErrInvalidAccountData = errors.New("неверные данные аккаунта")
	ErrUninitializedState = errors.New("аккаунт не инициализирован")
	ErrIncorrectProgramID = errors.New("аккаунт не принадлежит токен-программе")
	ErrInsufficientFunds  = errors.New("недостаточно средств")
	ErrMintMismatch       = errors.New("актив аккаунта не совпадает")
	ErrMintDecimals       = errors.New("неверное количество знаков после запятой")
	ErrOwnerMismatch      = errors.New("полномочие не совпадает с владельцем аккаунта")
	ErrMissingSignature   = errors.New("отсутствует подпись полномочия")
	ErrAccountFrozen      = errors.New("аккаунт заморожен")
	ErrNonZeroBalance     = errors.New("нельзя закрыть аккаунт с ненулевым балансом")
	ErrOverflow           = errors.New("переполнение баланса")
	ErrMintHasNoAuthority = errors.New("у актива нет полномочия выпуска")
)
