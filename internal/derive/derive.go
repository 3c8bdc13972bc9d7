// Package derive вычисляет производные адреса (адреса без приватного ключа).
//
// Адрес получается как sha256(seeds... || programID || "ProgramDerivedAddress") и
// обязан не лежать на кривой ed25519: тогда для него не существует приватного ключа,
// и "подписать" от его имени может только программа, повторно предъявив сиды.
package derive

import (
	"errors"
	"fmt"
	"slices"

	solana "github.com/gagliardetto/solana-go"
	"github.com/maynagashev/tokenvault/models"
)

const (
	// MaxSeeds - максимальное количество сидов (включая bump).
	MaxSeeds = 16
	// MaxSeedLen - максимальная длина одного сида в байтах.
	MaxSeedLen = 32
)

// Теги производных адресов хранилища.
var (
	VaultSeed   = []byte("vault")
	CustodySeed = []byte("vault_account")
)

// checkSeeds проверяет ограничения до обращения к solana-go,
// чтобы вызывающий код различал причины отказа.
func checkSeeds(seeds [][]byte, limit int) error {
	if len(seeds) > limit {
		return fmt.Errorf("%w: %d сидов", ErrMaxSeedsExceeded, len(seeds))
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return fmt.Errorf("%w: сид %d длиной %d", ErrMaxSeedLenExceeded, i, len(seed))
		}
	}
	return nil
}

// CreateProgramAddress вычисляет адрес для полного набора сидов (bump уже включен).
// Возвращает ErrOnCurve, если адрес лежит на кривой.
func CreateProgramAddress(seeds [][]byte, programID models.Pubkey) (models.Pubkey, error) {
	if err := checkSeeds(seeds, MaxSeeds); err != nil {
		return models.Pubkey{}, err
	}
	addr, err := solana.CreateProgramAddress(seeds, solana.PublicKey(programID))
	if err != nil {
		return models.Pubkey{}, fmt.Errorf("%w: %w", ErrOnCurve, err)
	}
	return models.Pubkey(addr), nil
}

// FindProgramAddress перебирает bump от 255 вниз и возвращает первый адрес вне кривой.
func FindProgramAddress(seeds [][]byte, programID models.Pubkey) (models.Pubkey, uint8, error) {
	if err := checkSeeds(seeds, MaxSeeds-1); err != nil {
		return models.Pubkey{}, 0, err
	}
	// solana-go дописывает bump через append к переданному срезу.
	addr, bump, err := solana.FindProgramAddress(slices.Clone(seeds), solana.PublicKey(programID))
	if err != nil {
		return models.Pubkey{}, 0, fmt.Errorf("%w: %w", ErrNoViableBump, err)
	}
	return models.Pubkey(addr), bump, nil
}

// IsOnCurve сообщает, является ли b корректной точкой ed25519.
func IsOnCurve(b []byte) bool {
	return solana.IsOnCurve(b)
}

// Ошибки деривации.
var (
	ErrMaxSeedsExceeded   = errors.New("превышено количество сидов")
	ErrMaxSeedLenExceeded = errors.New("превышена длина сида")
	ErrOnCurve            = errors.New("адрес лежит на кривой ed25519")
	ErrNoViableBump       = errors.New("не найден подходящий bump")
)
