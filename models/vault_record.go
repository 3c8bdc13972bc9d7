package models

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

// Раскладка записи хранилища (смещения внутри полезной нагрузки, без дискриминатора).
const (
	vaultOwnerOffset       = 0
	vaultAssetOffset       = 32
	vaultDepositedOffset   = 64
	vaultRecordBumpOffset  = 72
	vaultCustodyBumpOffset = 73
	vaultReservedOffset    = 74

	// VaultRecordReserved - количество зарезервированных (нулевых) байт в конце записи.
	VaultRecordReserved = 6
	// VaultRecordPayloadSize - размер полезной нагрузки записи.
	VaultRecordPayloadSize = vaultReservedOffset + VaultRecordReserved
	// DiscriminatorSize - размер заголовка-дискриминатора типа аккаунта.
	DiscriminatorSize = 8
	// VaultRecordSpace - полный размер данных аккаунта записи.
	VaultRecordSpace = DiscriminatorSize + VaultRecordPayloadSize
)

// VaultRecordDiscriminator - первые 8 байт sha256("account:VaultState").
var VaultRecordDiscriminator = accountDiscriminator("VaultState")

// VaultRecord - метаданные хранилища одной пары (владелец, актив).
// Deposited обязан совпадать с живым балансом кастодиального субаккаунта.
type VaultRecord struct {
	Owner       Pubkey
	Asset       Pubkey
	Deposited   uint64
	RecordBump  uint8
	CustodyBump uint8
	Reserved    [VaultRecordReserved]byte
}

// MarshalBinary сериализует запись вместе с дискриминатором.
func (v *VaultRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, VaultRecordSpace)
	copy(buf, VaultRecordDiscriminator[:])
	p := buf[DiscriminatorSize:]
	copy(p[vaultOwnerOffset:], v.Owner[:])
	copy(p[vaultAssetOffset:], v.Asset[:])
	binary.LittleEndian.PutUint64(p[vaultDepositedOffset:], v.Deposited)
	p[vaultRecordBumpOffset] = v.RecordBump
	p[vaultCustodyBumpOffset] = v.CustodyBump
	copy(p[vaultReservedOffset:], v.Reserved[:])
	return buf, nil
}

// UnmarshalBinary восстанавливает запись из данных аккаунта.
func (v *VaultRecord) UnmarshalBinary(data []byte) error {
	if len(data) != VaultRecordSpace {
		return fmt.Errorf("%w: ожидалось %d байт, получено %d", ErrRecordLayout, VaultRecordSpace, len(data))
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != VaultRecordDiscriminator {
		return ErrRecordDiscriminator
	}
	p := data[DiscriminatorSize:]
	copy(v.Owner[:], p[vaultOwnerOffset:vaultAssetOffset])
	copy(v.Asset[:], p[vaultAssetOffset:vaultDepositedOffset])
	v.Deposited = binary.LittleEndian.Uint64(p[vaultDepositedOffset:])
	v.RecordBump = p[vaultRecordBumpOffset]
	v.CustodyBump = p[vaultCustodyBumpOffset]
	copy(v.Reserved[:], p[vaultReservedOffset:])
	return nil
}

// accountDiscriminator вычисляет 8-байтовый префикс типа аккаунта.
func accountDiscriminator(name string) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// VaultView - представление хранилища для клиентов API.
type VaultView struct {
	Address        Pubkey `json:"address"`
	CustodyAccount Pubkey `json:"custody_account"`
	Owner          Pubkey `json:"owner"`
	Asset          Pubkey `json:"asset"`
	Deposited      uint64 `json:"deposited"`
	CustodyBalance uint64 `json:"custody_balance"`
	RecordBump     uint8  `json:"record_bump"`
	CustodyBump    uint8  `json:"custody_bump"`
}

// VaultAddresses - производные адреса хранилища для пары (владелец, актив).
type VaultAddresses struct {
	Owner          Pubkey `json:"owner"`
	Asset          Pubkey `json:"asset"`
	Record         Pubkey `json:"record"`
	RecordBump     uint8  `json:"record_bump"`
	CustodyAccount Pubkey `json:"custody_account"`
	CustodyBump    uint8  `json:"custody_bump"`
}

// Ошибки формата записи.
var (
	ErrRecordLayout        = errors.New("неверный размер записи хранилища")
	ErrRecordDiscriminator = errors.New("неверный дискриминатор записи хранилища")
)
