package custody

import (
	"context"

	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/maynagashev/tokenvault/models"
)

// Custodian - граница между хранилищем и сервисом переводов.
// Все вызовы выполняются в рамках переданного представления реестра,
// чтобы перевод и изменение записи хранилища фиксировались вместе.
type Custodian interface {
	// Asset возвращает состояние эмиссии актива.
	Asset(ctx context.Context, accounts repository.AccountRepository, mint models.Pubkey) (*Mint, error)
	// Holding возвращает состояние токен-аккаунта.
	Holding(ctx context.Context, accounts repository.AccountRepository, address models.Pubkey) (*TokenAccount, error)
	// OpenCustody выделяет токен-аккаунт актива asset с полномочием authority, резерв платит payer.
	OpenCustody(ctx context.Context, accounts repository.AccountRepository, payer, address, asset, authority models.Pubkey) error
	// Transfer переводит amount единиц актива asset с from на to.
	Transfer(ctx context.Context, accounts repository.AccountRepository, asset, from, to models.Pubkey, authority Authority, amount uint64) error
	// Close закрывает пустой токен-аккаунт, резерв уходит на destination.
	Close(ctx context.Context, accounts repository.AccountRepository, account, destination models.Pubkey, authority Authority) error
}

// Adapter реализует Custodian поверх TokenService.
type Adapter struct {
	tokens *TokenService
}

var _ Custodian = (*Adapter)(nil)

// NewAdapter создает адаптер хранилища.
func NewAdapter(tokens *TokenService) *Adapter {
	return &Adapter{tokens: tokens}
}

// Asset возвращает состояние эмиссии актива.
func (a *Adapter) Asset(ctx context.Context, accounts repository.AccountRepository, mint models.Pubkey) (*Mint, error) {
	return a.tokens.GetMint(ctx, accounts, mint)
}

// Holding возвращает состояние токен-аккаунта.
func (a *Adapter) Holding(
	ctx context.Context,
	accounts repository.AccountRepository,
	address models.Pubkey,
) (*TokenAccount, error) {
	return a.tokens.GetTokenAccount(ctx, accounts, address)
}

// OpenCustody выделяет токен-аккаунт хранения.
func (a *Adapter) OpenCustody(
	ctx context.Context,
	accounts repository.AccountRepository,
	payer, address, asset, authority models.Pubkey,
) error {
	return a.tokens.CreateTokenAccount(ctx, accounts, payer, address, asset, authority)
}

// Transfer переводит средства с проверкой точности актива.
func (a *Adapter) Transfer(
	ctx context.Context,
	accounts repository.AccountRepository,
	asset, from, to models.Pubkey,
	authority Authority,
	amount uint64,
) error {
	mint, err := a.tokens.GetMint(ctx, accounts, asset)
	if err != nil {
		return err
	}
	return a.tokens.TransferChecked(ctx, accounts, TransferParams{
		Source:      from,
		Mint:        asset,
		Destination: to,
		Authority:   authority,
		Amount:      amount,
		Decimals:    mint.Decimals,
	})
}

// Close закрывает токен-аккаунт.
func (a *Adapter) Close(
	ctx context.Context,
	accounts repository.AccountRepository,
	account, destination models.Pubkey,
	authority Authority,
) error {
	return a.tokens.CloseAccount(ctx, accounts, account, destination, authority)
}
