// Package custody реализует внешний сервис переводов взаимозаменяемых активов
// и адаптер, через который хранилище двигает средства.
package custody

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/maynagashev/tokenvault/internal/derive"
	"github.com/maynagashev/tokenvault/internal/ledger"
	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/maynagashev/tokenvault/models"
)

// Authority - подтверждение полномочия для одного вызова сервиса переводов.
// Либо ключ, подпись которого уже проверена, либо набор сидов производного адреса:
// адрес восстанавливается из сидов в момент вызова и действует только в нем.
type Authority struct {
	key       models.Pubkey
	seeds     [][]byte
	programID models.Pubkey
}

// UserAuthority - полномочие владельца ключа, подпись которого проверена снаружи.
func UserAuthority(key models.Pubkey) Authority {
	return Authority{key: key}
}

// DerivedAuthority - полномочие производного адреса программы programID.
// seeds должны включать bump.
func DerivedAuthority(programID models.Pubkey, seeds ...[]byte) Authority {
	return Authority{seeds: seeds, programID: programID}
}

// IsDerived сообщает, что полномочие подтверждается сидами.
func (a Authority) IsDerived() bool {
	return a.seeds != nil
}

// Resolve возвращает адрес, от имени которого подписан вызов.
func (a Authority) Resolve() (models.Pubkey, error) {
	if !a.IsDerived() {
		if a.key.IsZero() {
			return models.Pubkey{}, ErrMissingSignature
		}
		return a.key, nil
	}
	addr, err := derive.CreateProgramAddress(a.seeds, a.programID)
	if err != nil {
		return models.Pubkey{}, fmt.Errorf("%w: %w", ErrMissingSignature, err)
	}
	return addr, nil
}

// TransferParams - параметры перевода с проверкой актива и точности.
type TransferParams struct {
	Source      models.Pubkey
	Mint        models.Pubkey
	Destination models.Pubkey
	Authority   Authority
	Amount      uint64
	Decimals    uint8
}

// TokenService - сервис эмиссий и токен-аккаунтов поверх реестра аккаунтов.
type TokenService struct{}

// NewTokenService создает сервис переводов.
func NewTokenService() *TokenService {
	return &TokenService{}
}

// CreateMint выделяет и инициализирует эмиссию.
func (s *TokenService) CreateMint(
	ctx context.Context,
	accounts repository.AccountRepository,
	payer, mint, authority models.Pubkey,
	decimals uint8,
) error {
	acc, err := ledger.CreateAccount(ctx, accounts, payer, mint, MintLen, TokenProgramID)
	if err != nil {
		return fmt.Errorf("ошибка выделения аккаунта эмиссии: %w", err)
	}
	state := &Mint{MintAuthority: &authority, Decimals: decimals, IsInitialized: true}
	acc.Data = state.Pack()
	return accounts.SaveAccount(ctx, acc)
}

// CreateTokenAccount выделяет и инициализирует токен-аккаунт актива mint с владельцем owner.
func (s *TokenService) CreateTokenAccount(
	ctx context.Context,
	accounts repository.AccountRepository,
	payer, address, mint, owner models.Pubkey,
) error {
	if _, err := s.GetMint(ctx, accounts, mint); err != nil {
		return err
	}
	acc, err := ledger.CreateAccount(ctx, accounts, payer, address, AccountLen, TokenProgramID)
	if err != nil {
		return fmt.Errorf("ошибка выделения токен-аккаунта: %w", err)
	}
	state := &TokenAccount{Mint: mint, Owner: owner, State: AccountInitialized}
	acc.Data = state.Pack()
	return accounts.SaveAccount(ctx, acc)
}

// MintTo выпускает amount единиц актива на токен-аккаунт destination.
func (s *TokenService) MintTo(
	ctx context.Context,
	accounts repository.AccountRepository,
	mint, destination models.Pubkey,
	authority Authority,
	amount uint64,
) error {
	mintAcc, mintState, err := s.loadMint(ctx, accounts, mint)
	if err != nil {
		return err
	}
	if mintState.MintAuthority == nil {
		return ErrMintHasNoAuthority
	}
	if err = checkAuthority(authority, *mintState.MintAuthority); err != nil {
		return err
	}
	destAcc, dest, err := s.loadTokenAccount(ctx, accounts, destination)
	if err != nil {
		return err
	}
	if dest.Mint != mint {
		return ErrMintMismatch
	}
	if mintState.Supply > math.MaxUint64-amount || dest.Amount > math.MaxUint64-amount {
		return ErrOverflow
	}

	mintState.Supply += amount
	dest.Amount += amount
	mintAcc.Data = mintState.Pack()
	destAcc.Data = dest.Pack()
	if err = accounts.SaveAccount(ctx, mintAcc); err != nil {
		return err
	}
	return accounts.SaveAccount(ctx, destAcc)
}

// TransferChecked переводит единицы актива с проверкой актива и точности.
func (s *TokenService) TransferChecked(
	ctx context.Context,
	accounts repository.AccountRepository,
	p TransferParams,
) error {
	srcAcc, src, err := s.loadTokenAccount(ctx, accounts, p.Source)
	if err != nil {
		return fmt.Errorf("источник: %w", err)
	}
	dstAcc, dst, err := s.loadTokenAccount(ctx, accounts, p.Destination)
	if err != nil {
		return fmt.Errorf("получатель: %w", err)
	}
	if src.State == AccountFrozen || dst.State == AccountFrozen {
		return ErrAccountFrozen
	}
	if src.Mint != p.Mint || dst.Mint != p.Mint {
		return ErrMintMismatch
	}
	_, mintState, err := s.loadMint(ctx, accounts, p.Mint)
	if err != nil {
		return err
	}
	if mintState.Decimals != p.Decimals {
		return ErrMintDecimals
	}
	if err = checkAuthority(p.Authority, src.Owner); err != nil {
		return err
	}
	if src.Amount < p.Amount {
		return fmt.Errorf("%w: доступно %d, запрошено %d", ErrInsufficientFunds, src.Amount, p.Amount)
	}
	if p.Source == p.Destination {
		return nil
	}
	if dst.Amount > math.MaxUint64-p.Amount {
		return ErrOverflow
	}

	src.Amount -= p.Amount
	dst.Amount += p.Amount
	srcAcc.Data = src.Pack()
	dstAcc.Data = dst.Pack()
	if err = accounts.SaveAccount(ctx, srcAcc); err != nil {
		return err
	}
	if err = accounts.SaveAccount(ctx, dstAcc); err != nil {
		return err
	}

	slog.Debug("[TokenService] Перевод выполнен",
		"source", p.Source, "destination", p.Destination, "amount", p.Amount, "derived", p.Authority.IsDerived())
	return nil
}

// CloseAccount закрывает токен-аккаунт с нулевым балансом и возвращает резерв на destination.
func (s *TokenService) CloseAccount(
	ctx context.Context,
	accounts repository.AccountRepository,
	account, destination models.Pubkey,
	authority Authority,
) error {
	_, state, err := s.loadTokenAccount(ctx, accounts, account)
	if err != nil {
		return err
	}
	if state.IsNative == nil && state.Amount != 0 {
		return fmt.Errorf("%w: %d", ErrNonZeroBalance, state.Amount)
	}
	closer := state.Owner
	if state.CloseAuthority != nil {
		closer = *state.CloseAuthority
	}
	if err = checkAuthority(authority, closer); err != nil {
		return err
	}
	if _, err = ledger.CloseAccount(ctx, accounts, account, destination); err != nil {
		return fmt.Errorf("ошибка закрытия токен-аккаунта: %w", err)
	}
	return nil
}

// GetMint возвращает состояние эмиссии.
func (s *TokenService) GetMint(
	ctx context.Context,
	accounts repository.AccountRepository,
	mint models.Pubkey,
) (*Mint, error) {
	_, state, err := s.loadMint(ctx, accounts, mint)
	return state, err
}

// GetTokenAccount возвращает состояние токен-аккаунта.
func (s *TokenService) GetTokenAccount(
	ctx context.Context,
	accounts repository.AccountRepository,
	address models.Pubkey,
) (*TokenAccount, error) {
	_, state, err := s.loadTokenAccount(ctx, accounts, address)
	return state, err
}

func (s *TokenService) loadMint(
	ctx context.Context,
	accounts repository.AccountRepository,
	address models.Pubkey,
) (*models.Account, *Mint, error) {
	acc, err := accounts.GetAccount(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil, fmt.Errorf("%w: эмиссия %s", ErrUninitializedState, address)
		}
		return nil, nil, err
	}
	if acc.Owner != TokenProgramID {
		return nil, nil, ErrIncorrectProgramID
	}
	state, err := UnpackMint(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, state, nil
}

func (s *TokenService) loadTokenAccount(
	ctx context.Context,
	accounts repository.AccountRepository,
	address models.Pubkey,
) (*models.Account, *TokenAccount, error) {
	acc, err := accounts.GetAccount(ctx, address)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil, fmt.Errorf("%w: токен-аккаунт %s", ErrUninitializedState, address)
		}
		return nil, nil, err
	}
	if acc.Owner != TokenProgramID {
		return nil, nil, ErrIncorrectProgramID
	}
	state, err := UnpackTokenAccount(acc.Data)
	if err != nil {
		return nil, nil, err
	}
	return acc, state, nil
}

// checkAuthority сверяет подписанта вызова с ожидаемым полномочием.
func checkAuthority(authority Authority, expected models.Pubkey) error {
	signer, err := authority.Resolve()
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("%w: ожидалось %s, подписано %s", ErrOwnerMismatch, expected, signer)
	}
	return nil
}
