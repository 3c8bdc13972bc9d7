// Package handlers содержит HTTP-обработчики сервера хранилищ.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maynagashev/tokenvault/internal/middleware"
	"github.com/maynagashev/tokenvault/internal/services"
	"github.com/maynagashev/tokenvault/models"
)

// maxBodyBytes ограничивает размер тела запроса.
const maxBodyBytes = 1 << 16

// HistorySource отдает архив событий хранилища.
type HistorySource interface {
	History(ctx context.Context, owner, asset models.Pubkey) ([]models.Event, error)
}

// VaultHandler обрабатывает HTTP-запросы к хранилищам.
type VaultHandler struct {
	vaultService services.VaultService
	history      HistorySource
}

// NewVaultHandler создает обработчик. history может быть nil, если архив событий выключен.
func NewVaultHandler(vs services.VaultService, history HistorySource) *VaultHandler {
	return &VaultHandler{vaultService: vs, history: history}
}

// Initialize обрабатывает POST /api/vault/initialize.
func (h *VaultHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:Initialize"
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		writeError(w, r, op, unauthorized())
		return
	}
	var req models.InitializeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}

	view, err := h.vaultService.Initialize(r.Context(), signer, req)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, view)
}

// Deposit обрабатывает POST /api/vault/deposit.
func (h *VaultHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "VaultHandler:Deposit", h.vaultService.Deposit)
}

// Withdraw обрабатывает POST /api/vault/withdraw.
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "VaultHandler:Withdraw", h.vaultService.Withdraw)
}

type moveFunc func(ctx context.Context, signer models.Pubkey, req models.AmountRequest) (*models.VaultView, error)

func (h *VaultHandler) move(w http.ResponseWriter, r *http.Request, op string, fn moveFunc) {
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		writeError(w, r, op, unauthorized())
		return
	}
	var req models.AmountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}

	view, err := fn(r.Context(), signer, req)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// Close обрабатывает POST /api/vault/close.
func (h *VaultHandler) Close(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:Close"
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		writeError(w, r, op, unauthorized())
		return
	}
	var req models.CloseRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}

	if err := h.vaultService.Close(r.Context(), signer, req); err != nil {
		writeError(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetVault обрабатывает GET /api/vault/{owner}/{asset}.
func (h *VaultHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:GetVault"
	owner, asset, err := vaultParams(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	view, err := h.vaultService.GetVault(r.Context(), owner, asset)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// GetAddresses обрабатывает GET /api/vault/{owner}/{asset}/addresses.
func (h *VaultHandler) GetAddresses(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:GetAddresses"
	owner, asset, err := vaultParams(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	addrs, err := h.vaultService.DeriveAddresses(owner, asset)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusOK, addrs)
}

// GetHistory обрабатывает GET /api/vault/{owner}/{asset}/events.
func (h *VaultHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "VaultHandler:GetHistory"
	if h.history == nil {
		writeError(w, r, op, unavailable("архив событий выключен"))
		return
	}
	owner, asset, err := vaultParams(r)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	history, err := h.history.History(r.Context(), owner, asset)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	slog.DebugContext(r.Context(), "["+op+"] История получена", "owner", owner, "asset", asset, "count", len(history))
	writeJSON(w, r, http.StatusOK, history)
}

func vaultParams(r *http.Request) (models.Pubkey, models.Pubkey, error) {
	owner, err := models.ParsePubkey(chi.URLParam(r, "owner"))
	if err != nil {
		return models.Pubkey{}, models.Pubkey{}, badInput("неверный ключ владельца")
	}
	asset, err := models.ParsePubkey(chi.URLParam(r, "asset"))
	if err != nil {
		return models.Pubkey{}, models.Pubkey{}, badInput("неверный ключ актива")
	}
	return owner, asset, nil
}

// decodeBody читает JSON-тело запроса. Неизвестные поля отклоняются.
// Сумма вне диапазона u64 считается неверным аргументом, как и нулевая.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "amount" {
			return fmt.Errorf("%w: сумма должна быть целым числом от 1 до 2^64-1", services.ErrInvalidArgument)
		}
		return badInput("неверный формат запроса: " + err.Error())
	}
	return nil
}
