package handlers

import (
	"net/http"

	"github.com/maynagashev/tokenvault/internal/middleware"
	"github.com/maynagashev/tokenvault/internal/services"
	"github.com/maynagashev/tokenvault/models"
)

// FaucetHandler обрабатывает служебные запросы стенда (/api/dev).
type FaucetHandler struct {
	service services.FaucetService
}

// NewFaucetHandler создает обработчик стенда.
func NewFaucetHandler(s services.FaucetService) *FaucetHandler {
	return &FaucetHandler{service: s}
}

// Airdrop зачисляет нативные средства подписанту.
func (h *FaucetHandler) Airdrop(w http.ResponseWriter, r *http.Request) {
	const op = "FaucetHandler:Airdrop"
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		writeError(w, r, op, unauthorized())
		return
	}
	var req models.AirdropRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}
	if err := h.service.Airdrop(r.Context(), signer, req.Lamports); err != nil {
		writeError(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateMint создает актив с полномочием выпуска у подписанта.
func (h *FaucetHandler) CreateMint(w http.ResponseWriter, r *http.Request) {
	const op = "FaucetHandler:CreateMint"
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		writeError(w, r, op, unauthorized())
		return
	}
	var req models.CreateMintRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}
	mint, err := h.service.CreateMint(r.Context(), signer, req.Decimals)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, models.AddressResponse{Address: mint})
}

// OpenHolding создает токен-аккаунт подписанта.
func (h *FaucetHandler) OpenHolding(w http.ResponseWriter, r *http.Request) {
	const op = "FaucetHandler:OpenHolding"
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		writeError(w, r, op, unauthorized())
		return
	}
	var req models.OpenHoldingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}
	holding, err := h.service.OpenHolding(r.Context(), signer, req.Mint)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, models.AddressResponse{Address: holding})
}

// MintTo выпускает единицы актива. Подписант должен быть полномочием выпуска.
func (h *FaucetHandler) MintTo(w http.ResponseWriter, r *http.Request) {
	const op = "FaucetHandler:MintTo"
	signer, ok := middleware.GetSignerFromContext(r.Context())
	if !ok {
		writeError(w, r, op, unauthorized())
		return
	}
	var req models.MintToRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}
	if err := h.service.MintTo(r.Context(), signer, req.Mint, req.Destination, req.Amount); err != nil {
		writeError(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
