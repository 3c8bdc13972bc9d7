package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/maynagashev/tokenvault/internal/services"
	"github.com/maynagashev/tokenvault/models"
)

// Текстовые коды ошибок, не относящихся к программе хранилища.
const (
	textCodeBadInput     = "BAD_INPUT"
	textCodeUnauthorized = "UNAUTHORIZED"
	textCodeUnavailable  = "UNAVAILABLE"
	textCodeInternal     = "INTERNAL"
)

const metaVaultCode = "vault_code"

// toHTTPError переводит ошибку сервиса в конверт go-errors с HTTP-статусом в Code.
func toHTTPError(err error) *goerrors.Error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich
	}

	var vaultErr *services.VaultError
	if !errors.As(err, &vaultErr) {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "внутренняя ошибка сервера").
			WithCode(http.StatusInternalServerError).
			WithTextCode(textCodeInternal)
	}

	category, status := classify(vaultErr)
	return goerrors.Wrap(err, category, err.Error()).
		WithCode(status).
		WithTextCode(vaultErr.Name).
		WithMetadata(map[string]any{metaVaultCode: vaultErr.Code})
}

func classify(vaultErr *services.VaultError) (goerrors.Category, int) {
	switch vaultErr {
	case services.ErrInvalidArgument, services.ErrInvalidAsset:
		return goerrors.CategoryBadInput, http.StatusBadRequest
	case services.ErrUnauthorized:
		return goerrors.CategoryAuthz, http.StatusForbidden
	case services.ErrVaultNotFound:
		return goerrors.CategoryNotFound, http.StatusNotFound
	case services.ErrVaultAlreadyExists, services.ErrNonZeroBalance:
		return goerrors.CategoryConflict, http.StatusConflict
	case services.ErrInsufficientBalance, services.ErrMathOverflow:
		return goerrors.CategoryValidation, http.StatusUnprocessableEntity
	default:
		return goerrors.CategoryOperation, http.StatusInternalServerError
	}
}

func badInput(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(textCodeBadInput)
}

func unauthorized() *goerrors.Error {
	return goerrors.New("подписант не определен", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(textCodeUnauthorized)
}

func unavailable(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryExternal).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(textCodeUnavailable)
}

// writeError пишет ошибку в формате models.ErrorResponse.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	rich := toHTTPError(err)
	status := rich.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}

	resp := models.ErrorResponse{Error: rich.Message, TextCode: rich.TextCode}
	var vaultErr *services.VaultError
	if errors.As(err, &vaultErr) {
		resp.Code = vaultErr.Code
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "["+op+"] Внутренняя ошибка", "error", err)
	} else {
		slog.InfoContext(r.Context(), "["+op+"] Запрос отклонен",
			"status", status, "text_code", rich.TextCode, "error", err)
	}
	writeJSON(w, r, status, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "[Handlers] Ошибка кодирования ответа", "error", err)
	}
}
