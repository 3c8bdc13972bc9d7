package derive

import (
	"fmt"

	"github.com/maynagashev/tokenvault/models"
)

// VaultRecordSeeds возвращает сиды записи хранилища ("vault", owner, asset[, bump]).
// Без bump - для поиска адреса, с bump - для подписи от имени записи.
func VaultRecordSeeds(owner, asset models.Pubkey, bump ...uint8) [][]byte {
	seeds := [][]byte{VaultSeed, owner.Bytes(), asset.Bytes()}
	if len(bump) > 0 {
		seeds = append(seeds, []byte{bump[0]})
	}
	return seeds
}

// CustodySeeds возвращает сиды кастодиального субаккаунта ("vault_account", record[, bump]).
func CustodySeeds(record models.Pubkey, bump ...uint8) [][]byte {
	seeds := [][]byte{CustodySeed, record.Bytes()}
	if len(bump) > 0 {
		seeds = append(seeds, []byte{bump[0]})
	}
	return seeds
}

// VaultRecordAddress вычисляет адрес записи хранилища для пары (владелец, актив).
func VaultRecordAddress(programID, owner, asset models.Pubkey) (models.Pubkey, uint8, error) {
	return FindProgramAddress(VaultRecordSeeds(owner, asset), programID)
}

// CustodyAddress вычисляет адрес кастодиального субаккаунта по адресу записи.
func CustodyAddress(programID, record models.Pubkey) (models.Pubkey, uint8, error) {
	return FindProgramAddress(CustodySeeds(record), programID)
}

// VaultAddresses вычисляет оба адреса хранилища цепочкой: запись, затем субаккаунт.
func VaultAddresses(programID, owner, asset models.Pubkey) (*models.VaultAddresses, error) {
	record, recordBump, err := VaultRecordAddress(programID, owner, asset)
	if err != nil {
		return nil, fmt.Errorf("ошибка вычисления адреса записи: %w", err)
	}
	custody, custodyBump, err := CustodyAddress(programID, record)
	if err != nil {
		return nil, fmt.Errorf("ошибка вычисления адреса субаккаунта: %w", err)
	}
	return &models.VaultAddresses{
		Owner:          owner,
		Asset:          asset,
		Record:         record,
		RecordBump:     recordBump,
		CustodyAccount: custody,
		CustodyBump:    custodyBump,
	}, nil
}
