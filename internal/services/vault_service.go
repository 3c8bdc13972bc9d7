// Package services содержит бизнес-логику хранилищ.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/maynagashev/tokenvault/internal/custody"
	"github.com/maynagashev/tokenvault/internal/derive"
	"github.com/maynagashev/tokenvault/internal/events"
	"github.com/maynagashev/tokenvault/internal/ledger"
	"github.com/maynagashev/tokenvault/internal/repository"
	"github.com/maynagashev/tokenvault/models"
)

// VaultService определяет операции над хранилищами.
// signer - ключ, подпись которого уже проверена вызывающей стороной.
type VaultService interface {
	Initialize(ctx context.Context, signer models.Pubkey, req models.InitializeRequest) (*models.VaultView, error)
	Deposit(ctx context.Context, signer models.Pubkey, req models.AmountRequest) (*models.VaultView, error)
	Withdraw(ctx context.Context, signer models.Pubkey, req models.AmountRequest) (*models.VaultView, error)
	Close(ctx context.Context, signer models.Pubkey, req models.CloseRequest) error
	GetVault(ctx context.Context, owner, asset models.Pubkey) (*models.VaultView, error)
	DeriveAddresses(owner, asset models.Pubkey) (*models.VaultAddresses, error)
}

// Options - параметры сервиса хранилищ.
type Options struct {
	ProgramID models.Pubkey
	// CloseRequireEmpty запрещает закрытие хранилища с ненулевым балансом.
	CloseRequireEmpty bool
}

var _ VaultService = (*vaultService)(nil)

type vaultService struct {
	ledger  repository.Ledger
	custody custody.Custodian
	emitter events.Emitter
	opts    Options
}

// NewVaultService создает сервис хранилищ.
func NewVaultService(
	accounts repository.Ledger,
	custodian custody.Custodian,
	emitter events.Emitter,
	opts Options,
) VaultService {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &vaultService{ledger: accounts, custody: custodian, emitter: emitter, opts: opts}
}

// Initialize создает хранилище подписанта для актива req.Asset: запись и кастодиальный субаккаунт.
func (s *vaultService) Initialize(
	ctx context.Context,
	signer models.Pubkey,
	req models.InitializeRequest,
) (*models.VaultView, error) {
	addrs, err := s.DeriveAddresses(signer, req.Asset)
	if err != nil {
		return nil, err
	}

	var view *models.VaultView
	err = s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		for _, addr := range []models.Pubkey{addrs.Record, addrs.CustodyAccount} {
			if _, getErr := accounts.GetAccount(ctx, addr); getErr == nil {
				return fmt.Errorf("%w: адрес %s занят", ErrVaultAlreadyExists, addr)
			} else if !errors.Is(getErr, repository.ErrAccountNotFound) {
				return getErr
			}
		}

		mint, assetErr := s.custody.Asset(ctx, accounts, req.Asset)
		if assetErr != nil {
			return custodyError(assetErr)
		}
		if mint.Supply == 0 {
			return fmt.Errorf("%w: нулевая эмиссия %s", ErrInvalidAsset, req.Asset)
		}

		recordAcc, allocErr := ledger.CreateAccount(
			ctx, accounts, signer, addrs.Record, models.VaultRecordSpace, s.opts.ProgramID)
		if allocErr != nil {
			return reserveError(allocErr)
		}
		if allocErr = s.custody.OpenCustody(
			ctx, accounts, signer, addrs.CustodyAccount, req.Asset, addrs.Record); allocErr != nil {
			return reserveError(custodyError(allocErr))
		}

		record := &models.VaultRecord{
			Owner:       signer,
			Asset:       req.Asset,
			RecordBump:  addrs.RecordBump,
			CustodyBump: addrs.CustodyBump,
		}
		if saveErr := s.saveRecord(ctx, accounts, recordAcc, record); saveErr != nil {
			return saveErr
		}
		view = newView(addrs, record, 0)
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "[VaultService] Инициализация отклонена", "owner", signer, "asset", req.Asset, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "[VaultService] Хранилище создано", "owner", signer, "asset", req.Asset, "record", addrs.Record)
	s.emitter.Emit(ctx, models.NewInitializeEvent(signer, req.Asset))
	return view, nil
}

// Deposit переводит req.Amount единиц с токен-аккаунта владельца в хранилище.
func (s *vaultService) Deposit(
	ctx context.Context,
	signer models.Pubkey,
	req models.AmountRequest,
) (*models.VaultView, error) {
	owner := ownerOrSigner(req.Owner, signer)
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: сумма должна быть положительной", ErrInvalidArgument)
	}
	addrs, err := s.DeriveAddresses(owner, req.Asset)
	if err != nil {
		return nil, err
	}

	var view *models.VaultView
	err = s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		recordAcc, record, loadErr := s.loadAuthorized(ctx, accounts, addrs, signer)
		if loadErr != nil {
			return loadErr
		}
		holding, holdErr := s.ownerHolding(ctx, accounts, record, signer, req.TokenAccount)
		if holdErr != nil {
			return holdErr
		}
		// Баланс проверяется раньше переполнения, как и в самом переводе.
		if holding.Amount < req.Amount {
			return fmt.Errorf("%w: на токен-аккаунте %d, требуется %d", ErrInsufficientBalance, holding.Amount, req.Amount)
		}
		if record.Deposited > math.MaxUint64-req.Amount {
			return fmt.Errorf("%w: на счету %d, пополнение %d", ErrMathOverflow, record.Deposited, req.Amount)
		}

		if trErr := s.custody.Transfer(ctx, accounts, record.Asset, req.TokenAccount, addrs.CustodyAccount,
			custody.UserAuthority(signer), req.Amount); trErr != nil {
			return custodyError(trErr)
		}

		if record.Deposited > math.MaxUint64-req.Amount {
			return ErrMathOverflow
		}
		record.Deposited += req.Amount
		if saveErr := s.saveRecord(ctx, accounts, recordAcc, record); saveErr != nil {
			return saveErr
		}

		var viewErr error
		view, viewErr = s.view(ctx, accounts, addrs, record)
		return viewErr
	})
	if err != nil {
		slog.WarnContext(ctx, "[VaultService] Пополнение отклонено",
			"owner", owner, "asset", req.Asset, "amount", req.Amount, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "[VaultService] Пополнение выполнено",
		"owner", owner, "asset", req.Asset, "amount", req.Amount, "deposited", view.Deposited)
	s.emitter.Emit(ctx, models.NewDepositEvent(owner, req.Asset, req.Amount))
	return view, nil
}

// Withdraw переводит req.Amount единиц из хранилища на токен-аккаунт владельца.
// Перевод подписывается сидами записи хранилища.
func (s *vaultService) Withdraw(
	ctx context.Context,
	signer models.Pubkey,
	req models.AmountRequest,
) (*models.VaultView, error) {
	owner := ownerOrSigner(req.Owner, signer)
	if req.Amount == 0 {
		return nil, fmt.Errorf("%w: сумма должна быть положительной", ErrInvalidArgument)
	}
	addrs, err := s.DeriveAddresses(owner, req.Asset)
	if err != nil {
		return nil, err
	}

	var view *models.VaultView
	err = s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		recordAcc, record, loadErr := s.loadAuthorized(ctx, accounts, addrs, signer)
		if loadErr != nil {
			return loadErr
		}
		if _, holdErr := s.ownerHolding(ctx, accounts, record, signer, req.TokenAccount); holdErr != nil {
			return holdErr
		}
		vault, vaultErr := s.custody.Holding(ctx, accounts, addrs.CustodyAccount)
		if vaultErr != nil {
			return custodyError(vaultErr)
		}
		if req.Amount > record.Deposited || req.Amount > vault.Amount {
			return fmt.Errorf("%w: в хранилище %d, запрошено %d", ErrInsufficientBalance, record.Deposited, req.Amount)
		}

		if trErr := s.custody.Transfer(ctx, accounts, record.Asset, addrs.CustodyAccount, req.TokenAccount,
			s.recordAuthority(record), req.Amount); trErr != nil {
			return custodyError(trErr)
		}

		if record.Deposited < req.Amount {
			return ErrMathOverflow
		}
		record.Deposited -= req.Amount
		if saveErr := s.saveRecord(ctx, accounts, recordAcc, record); saveErr != nil {
			return saveErr
		}

		var viewErr error
		view, viewErr = s.view(ctx, accounts, addrs, record)
		return viewErr
	})
	if err != nil {
		slog.WarnContext(ctx, "[VaultService] Вывод отклонен",
			"owner", owner, "asset", req.Asset, "amount", req.Amount, "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "[VaultService] Вывод выполнен",
		"owner", owner, "asset", req.Asset, "amount", req.Amount, "deposited", view.Deposited)
	s.emitter.Emit(ctx, models.NewWithdrawEvent(owner, req.Asset, req.Amount))
	return view, nil
}

// Close выводит весь остаток владельцу, закрывает субаккаунт и запись.
// Резервы обоих аккаунтов возвращаются владельцу.
func (s *vaultService) Close(ctx context.Context, signer models.Pubkey, req models.CloseRequest) error {
	owner := ownerOrSigner(req.Owner, signer)
	addrs, err := s.DeriveAddresses(owner, req.Asset)
	if err != nil {
		return err
	}

	var swept uint64
	err = s.ledger.Atomic(ctx, func(ctx context.Context, accounts repository.AccountRepository) error {
		_, record, loadErr := s.loadAuthorized(ctx, accounts, addrs, signer)
		if loadErr != nil {
			return loadErr
		}
		if _, holdErr := s.ownerHolding(ctx, accounts, record, signer, req.TokenAccount); holdErr != nil {
			return holdErr
		}
		vault, vaultErr := s.custody.Holding(ctx, accounts, addrs.CustodyAccount)
		if vaultErr != nil {
			return custodyError(vaultErr)
		}
		swept = vault.Amount
		if s.opts.CloseRequireEmpty && swept > 0 {
			return fmt.Errorf("%w: в хранилище %d", ErrNonZeroBalance, swept)
		}

		authority := s.recordAuthority(record)
		if swept > 0 {
			if trErr := s.custody.Transfer(ctx, accounts, record.Asset, addrs.CustodyAccount, req.TokenAccount,
				authority, swept); trErr != nil {
				return custodyError(trErr)
			}
		}
		if closeErr := s.custody.Close(ctx, accounts, addrs.CustodyAccount, record.Owner, authority); closeErr != nil {
			return custodyError(closeErr)
		}
		if _, closeErr := ledger.CloseAccount(ctx, accounts, addrs.Record, record.Owner); closeErr != nil {
			return fmt.Errorf("ошибка закрытия записи хранилища: %w", closeErr)
		}
		return nil
	})
	if err != nil {
		slog.WarnContext(ctx, "[VaultService] Закрытие отклонено", "owner", owner, "asset", req.Asset, "error", err)
		return err
	}

	slog.InfoContext(ctx, "[VaultService] Хранилище закрыто", "owner", owner, "asset", req.Asset, "swept", swept)
	s.emitter.Emit(ctx, models.NewCloseEvent(owner, req.Asset))
	return nil
}

// GetVault возвращает состояние хранилища (owner, asset) вместе с живым балансом субаккаунта.
func (s *vaultService) GetVault(ctx context.Context, owner, asset models.Pubkey) (*models.VaultView, error) {
	addrs, err := s.DeriveAddresses(owner, asset)
	if err != nil {
		return nil, err
	}
	_, record, err := s.loadRecord(ctx, s.ledger, addrs)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, s.ledger, addrs, record)
}

// DeriveAddresses вычисляет адреса записи и субаккаунта хранилища.
func (s *vaultService) DeriveAddresses(owner, asset models.Pubkey) (*models.VaultAddresses, error) {
	addrs, err := derive.VaultAddresses(s.opts.ProgramID, owner, asset)
	if err != nil {
		return nil, fmt.Errorf("ошибка вычисления адресов хранилища: %w", err)
	}
	return addrs, nil
}

// loadRecord читает запись хранилища по производному адресу.
func (s *vaultService) loadRecord(
	ctx context.Context,
	accounts repository.AccountRepository,
	addrs *models.VaultAddresses,
) (*models.Account, *models.VaultRecord, error) {
	acc, err := accounts.GetAccount(ctx, addrs.Record)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrVaultNotFound, addrs.Record)
		}
		return nil, nil, err
	}
	if acc.Owner != s.opts.ProgramID {
		return nil, nil, fmt.Errorf("%w: аккаунт %s принадлежит другой программе", ErrVaultNotFound, addrs.Record)
	}
	var record models.VaultRecord
	if err = record.UnmarshalBinary(acc.Data); err != nil {
		return nil, nil, fmt.Errorf("ошибка чтения записи хранилища: %w", err)
	}
	return acc, &record, nil
}

// loadAuthorized читает запись и проверяет, что подписант - ее владелец.
func (s *vaultService) loadAuthorized(
	ctx context.Context,
	accounts repository.AccountRepository,
	addrs *models.VaultAddresses,
	signer models.Pubkey,
) (*models.Account, *models.VaultRecord, error) {
	acc, record, err := s.loadRecord(ctx, accounts, addrs)
	if err != nil {
		return nil, nil, err
	}
	if record.Owner != signer {
		return nil, nil, fmt.Errorf("%w: владелец %s, подписант %s", ErrUnauthorized, record.Owner, signer)
	}
	return acc, record, nil
}

// ownerHolding проверяет токен-аккаунт владельца: актив хранилища и полномочие подписанта.
func (s *vaultService) ownerHolding(
	ctx context.Context,
	accounts repository.AccountRepository,
	record *models.VaultRecord,
	signer, address models.Pubkey,
) (*custody.TokenAccount, error) {
	holding, err := s.custody.Holding(ctx, accounts, address)
	if err != nil {
		return nil, custodyError(err)
	}
	if holding.Mint != record.Asset {
		return nil, fmt.Errorf("%w: токен-аккаунт %s другого актива", ErrInvalidAsset, address)
	}
	if holding.Owner != signer {
		return nil, fmt.Errorf("%w: токен-аккаунт %s не принадлежит подписанту", ErrUnauthorized, address)
	}
	return holding, nil
}

// recordAuthority восстанавливает полномочие записи хранилища из сохраненного bump.
func (s *vaultService) recordAuthority(record *models.VaultRecord) custody.Authority {
	return custody.DerivedAuthority(s.opts.ProgramID, derive.VaultRecordSeeds(record.Owner, record.Asset, record.RecordBump)...)
}

func (s *vaultService) saveRecord(
	ctx context.Context,
	accounts repository.AccountRepository,
	acc *models.Account,
	record *models.VaultRecord,
) error {
	data, err := record.MarshalBinary()
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи хранилища: %w", err)
	}
	acc.Data = data
	return accounts.SaveAccount(ctx, acc)
}

func (s *vaultService) view(
	ctx context.Context,
	accounts repository.AccountRepository,
	addrs *models.VaultAddresses,
	record *models.VaultRecord,
) (*models.VaultView, error) {
	vault, err := s.custody.Holding(ctx, accounts, addrs.CustodyAccount)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения субаккаунта хранилища: %w", err)
	}
	return newView(addrs, record, vault.Amount), nil
}

func newView(addrs *models.VaultAddresses, record *models.VaultRecord, balance uint64) *models.VaultView {
	return &models.VaultView{
		Address:        addrs.Record,
		CustodyAccount: addrs.CustodyAccount,
		Owner:          record.Owner,
		Asset:          record.Asset,
		Deposited:      record.Deposited,
		CustodyBalance: balance,
		RecordBump:     record.RecordBump,
		CustodyBump:    record.CustodyBump,
	}
}

func ownerOrSigner(owner, signer models.Pubkey) models.Pubkey {
	if owner.IsZero() {
		return signer
	}
	return owner
}

// reserveError переводит нехватку средств на резерв в ErrInsufficientBalance.
func reserveError(err error) error {
	if errors.Is(err, ledger.ErrInsufficientLamports) {
		return fmt.Errorf("%w: %w", ErrInsufficientBalance, err)
	}
	if errors.Is(err, ledger.ErrAccountInUse) {
		return fmt.Errorf("%w: %w", ErrVaultAlreadyExists, err)
	}
	return err
}
