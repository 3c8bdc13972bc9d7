// Package middleware содержит HTTP middleware сервера хранилищ.
package middleware

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maynagashev/tokenvault/models"
)

// Тип для ключа контекста.
type contextKey string

// SignerKey - ключ контекста, под которым хранится проверенный подписант запроса.
const SignerKey contextKey = "signer"

// Допустимый разброс часов клиента и сервера.
const clockSkew = 30 * time.Second

// MaxTokenLifetime - наибольший допустимый срок действия токена (exp - iat).
const MaxTokenLifetime = time.Hour

// Authenticator проверяет, что запрос подписан владельцем ключа.
// Токен - JWT с алгоритмом EdDSA, sub - base58 публичного ключа подписанта;
// подпись проверяется этим же ключом, поэтому токен может выпустить только владелец
// закрытого ключа. Время выпуска (iat) и срок действия (exp) обязательны,
// срок действия не длиннее MaxTokenLifetime.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			slog.Debug("[AuthMiddleware] Заголовок Authorization отсутствует")
			http.Error(w, "Требуется подпись запроса", http.StatusUnauthorized)
			return
		}

		scheme, tokenString, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || tokenString == "" || strings.Contains(tokenString, " ") {
			slog.Debug("[AuthMiddleware] Неверный формат заголовка Authorization")
			http.Error(w, "Неверный формат токена", http.StatusUnauthorized)
			return
		}

		signer, err := ParseSignerToken(tokenString)
		if err != nil {
			slog.Warn("[AuthMiddleware] Подпись запроса не прошла проверку", "error", err)
			http.Error(w, "Невалидный токен", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SignerKey, signer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ParseSignerToken проверяет токен и возвращает ключ подписанта.
func ParseSignerToken(tokenString string) (models.Pubkey, error) {
	var signer models.Pubkey
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		subject, subErr := token.Claims.GetSubject()
		if subErr != nil {
			return nil, subErr
		}
		pk, parseErr := models.ParsePubkey(subject)
		if parseErr != nil {
			return nil, fmt.Errorf("неверный sub: %w", parseErr)
		}
		signer = pk
		return ed25519.PublicKey(pk.Bytes()), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return models.Pubkey{}, err
	}
	if !token.Valid {
		return models.Pubkey{}, ErrInvalidToken
	}
	if claims.IssuedAt == nil {
		return models.Pubkey{}, fmt.Errorf("%w: нет времени выпуска", ErrTokenLifetime)
	}
	if lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time); lifetime > MaxTokenLifetime {
		return models.Pubkey{}, fmt.Errorf("%w: %s", ErrTokenLifetime, lifetime)
	}
	return signer, nil
}

// NewSignerToken выпускает токен подписанта на ttl. Используется клиентами и тестами.
func NewSignerToken(priv ed25519.PrivateKey, ttl time.Duration) (string, error) {
	if ttl > MaxTokenLifetime {
		return "", fmt.Errorf("%w: %s", ErrTokenLifetime, ttl)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return "", ErrInvalidToken
	}
	signer, err := models.PubkeyFromBytes(pub)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   signer.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
}

// GetSignerFromContext извлекает проверенного подписанта из контекста запроса.
func GetSignerFromContext(ctx context.Context) (models.Pubkey, bool) {
	if ctx == nil {
		return models.Pubkey{}, false
	}
	signer, ok := ctx.Value(SignerKey).(models.Pubkey)
	return signer, ok
}

// Ошибки проверки подписи.
var (
	ErrInvalidToken  = errors.New("невалидный токен подписанта")
	ErrTokenLifetime = errors.New("недопустимый срок действия токена")
)
