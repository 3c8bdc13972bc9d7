package repository

import (
	"context"
	"sync"

	"github.com/maynagashev/tokenvault/models"
)

// MemoryLedger - реестр аккаунтов в памяти (локальный запуск без БД и тесты).
// Atomic удерживает блокировку на все время выполнения fn, поэтому операции
// выполняются строго последовательно; вложенный вызов Atomic приведет к взаимоблокировке.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[models.Pubkey]*models.Account
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger создает пустой реестр в памяти.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[models.Pubkey]*models.Account)}
}

// GetAccount возвращает копию аккаунта.
func (l *MemoryLedger) GetAccount(_ context.Context, address models.Pubkey) (*models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[address]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// SaveAccount сохраняет копию аккаунта.
func (l *MemoryLedger) SaveAccount(_ context.Context, account *models.Account) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[account.Address] = account.Clone()
	return nil
}

// DeleteAccount удаляет аккаунт.
func (l *MemoryLedger) DeleteAccount(_ context.Context, address models.Pubkey) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[address]; !ok {
		return ErrAccountNotFound
	}
	delete(l.accounts, address)
	return nil
}

// Atomic выполняет fn над копией-наложением и применяет изменения только при успехе.
func (l *MemoryLedger) Atomic(
	ctx context.Context,
	fn func(ctx context.Context, accounts AccountRepository) error,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	overlay := &memoryOverlay{
		base:    l.accounts,
		writes:  make(map[models.Pubkey]*models.Account),
		deleted: make(map[models.Pubkey]struct{}),
	}
	if err := fn(ctx, overlay); err != nil {
		return err
	}

	for addr := range overlay.deleted {
		delete(l.accounts, addr)
	}
	for addr, acc := range overlay.writes {
		l.accounts[addr] = acc
	}
	return nil
}

// memoryOverlay - незафиксированные изменения одной атомарной операции.
type memoryOverlay struct {
	base    map[models.Pubkey]*models.Account
	writes  map[models.Pubkey]*models.Account
	deleted map[models.Pubkey]struct{}
}

func (o *memoryOverlay) GetAccount(_ context.Context, address models.Pubkey) (*models.Account, error) {
	if acc, ok := o.writes[address]; ok {
		return acc.Clone(), nil
	}
	if _, ok := o.deleted[address]; ok {
		return nil, ErrAccountNotFound
	}
	acc, ok := o.base[address]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (o *memoryOverlay) SaveAccount(_ context.Context, account *models.Account) error {
	delete(o.deleted, account.Address)
	o.writes[account.Address] = account.Clone()
	return nil
}

func (o *memoryOverlay) DeleteAccount(ctx context.Context, address models.Pubkey) error {
	if _, err := o.GetAccount(ctx, address); err != nil {
		return err
	}
	delete(o.writes, address)
	o.deleted[address] = struct{}{}
	return nil
}
