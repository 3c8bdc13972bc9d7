package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maynagashev/tokenvault/internal/custody"
	"github.com/maynagashev/tokenvault/internal/ledger"
	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/maynagashev/tokenvault/models"
)

// FaucetService - служебные операции для локальных стендов: нативные средства,
// выпуск активов и токен-аккаунты. В рабочем окружении выключен.
type FaucetService interface {
	Airdrop(ctx context.Context, to models.Pubkey, lamports uint64) error
	CreateMint(ctx context.Context, authority models.Pubkey, decimals uint8) (models.Pubkey, error)
	OpenHolding(ctx context.Context, owner, mint models.Pubkey) (models.Pubkey, error)
	MintTo(ctx context.Context, authority, mint, destination models.Pubkey, amount uint64) error
}

var _ FaucetService = (*faucetService)(nil)

type faucetService struct {
	ledger repository.Ledger
	tokens *custody.TokenService
}

// NewFaucetService создает сервис стенда.
func NewFaucetService(accounts repository.Ledger, tokens *custody.TokenService) FaucetService {
	return &faucetService{ledger: accounts, tokens: tokens}
}

// Airdrop зачисляет нативные средства на адрес to.
func (s *faucetService) Airdrop(ctx context.Context, to models.Pubkey, lamports uint64) error {
	if lamports == 0 {
		return fmt.Errorf("%w: сумма должна быть положительной", ErrInvalidArgument)
	}
	err := s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		return ledger.Credit(ctx, accounts, to, lamports)
	})
	if err != nil {
		return fmt.Errorf("ошибка зачисления: %w", err)
	}
	slog.InfoContext(ctx, "[Faucet] Зачислены нативные средства", "to", to, "lamports", lamports)
	return nil
}

// CreateMint создает актив с полномочием выпуска authority. Резерв платит authority.
func (s *faucetService) CreateMint(ctx context.Context, authority models.Pubkey, decimals uint8) (models.Pubkey, error) {
	mint := models.NewUniquePubkey()
	err := s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		return s.tokens.CreateMint(ctx, accounts, authority, mint, authority, decimals)
	})
	if err != nil {
		return models.Pubkey{}, reserveError(err)
	}
	slog.InfoContext(ctx, "[Faucet] Создан актив", "mint", mint, "authority", authority, "decimals", decimals)
	return mint, nil
}

// OpenHolding создает токен-аккаунт владельца owner для актива mint. Резерв платит owner.
func (s *faucetService) OpenHolding(ctx context.Context, owner, mint models.Pubkey) (models.Pubkey, error) {
	address := models.NewUniquePubkey()
	err := s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		return s.tokens.CreateTokenAccount(ctx, accounts, owner, address, mint, owner)
	})
	if err != nil {
		return models.Pubkey{}, reserveError(custodyError(err))
	}
	return address, nil
}

// MintTo выпускает amount единиц актива на токен-аккаунт destination.
func (s *faucetService) MintTo(ctx context.Context, authority, mint, destination models.Pubkey, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("%w: сумма должна быть положительной", ErrInvalidArgument)
	}
	err := s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		return s.tokens.MintTo(ctx, accounts, mint, destination, custody.UserAuthority(authority), amount)
	})
	if err != nil {
		return custodyError(err)
	}
	slog.InfoContext(ctx, "[Faucet] Выпущены единицы актива", "mint", mint, "destination", destination, "amount", amount)
	return nil
}
