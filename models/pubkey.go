package models

import (
	"crypto/rand"
	"database/sql/driver"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// PubkeyLength - длина публичного ключа (адреса) в байтах.
const PubkeyLength = 32

// Pubkey представляет адрес аккаунта в реестре (32 байта).
// В текстовом виде (JSON, URL, логи) кодируется в base58.
type Pubkey [PubkeyLength]byte

// ParsePubkey разбирает адрес из base58-строки.
func ParsePubkey(s string) (Pubkey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return Pubkey{}, fmt.Errorf("%w: %w", ErrInvalidPubkey, err)
	}
	return Pubkey(pk), nil
}

// MustParsePubkey то же, что ParsePubkey, но паникует при ошибке.
// Используется для констант (ID программ).
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes копирует адрес из среза байт.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLength {
		return pk, fmt.Errorf("%w: длина %d байт", ErrInvalidPubkey, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// NewUniquePubkey генерирует случайный адрес (для тестов и фикстур).
func NewUniquePubkey() Pubkey {
	var pk Pubkey
	if _, err := rand.Read(pk[:]); err != nil {
		panic(fmt.Sprintf("не удалось сгенерировать адрес: %v", err))
	}
	return pk
}

// String возвращает base58-представление адреса.
func (p Pubkey) String() string {
	return solana.PublicKey(p).String()
}

// IsZero сообщает, что адрес не задан.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Bytes возвращает адрес как срез.
func (p Pubkey) Bytes() []byte {
	return p[:]
}

// MarshalText реализует encoding.TextMarshaler (используется encoding/json).
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Value реализует driver.Valuer: адрес хранится в БД как BYTEA.
func (p Pubkey) Value() (driver.Value, error) {
	return p[:], nil
}

// Scan реализует sql.Scanner.
func (p *Pubkey) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		parsed, err := PubkeyFromBytes(v)
		if err != nil {
			return err
		}
		*p = parsed
		return nil
	case string:
		return p.UnmarshalText([]byte(v))
	case nil:
		*p = Pubkey{}
		return nil
	default:
		return fmt.Errorf("%w: неподдерживаемый тип %T", ErrInvalidPubkey, src)
	}
}

// Кастомные ошибки моделей.
var (
	ErrInvalidPubkey = errors.New("некорректный адрес")
)
