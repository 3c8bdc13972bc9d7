package models

// Account представляет запись в реестре аккаунтов.
// Тэги `db` используются для маппинга с полями БД с помощью sqlx.
type Account struct {
	Address  Pubkey `db:"address" json:"address"`
	Owner    Pubkey `db:"owner" json:"owner"`       // Программа, которой разрешено менять Data
	Lamports uint64 `db:"lamports" json:"lamports"` // Нативный баланс (резерв под хранение)
	Data     []byte `db:"data" json:"-"`
}

// Clone возвращает глубокую копию аккаунта.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Data != nil {
		cp.Data = append([]byte(nil), a.Data...)
	}
	return &cp
}
