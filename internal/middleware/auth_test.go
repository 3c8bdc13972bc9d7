package middleware_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/maynagashev/tokenvault/internal/middleware"
	"github.com/maynagashev/tokenvault/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (models.Pubkey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pk, err := models.PubkeyFromBytes(pub)
	require.NoError(t, err)
	return pk, priv
}

// forgedToken подписывает токен ключом priv, но указывает в sub чужой ключ.
func forgedToken(t *testing.T, subject models.Pubkey, priv ed25519.PrivateKey, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	require.NoError(t, err)
	return token
}

func TestGetSignerFromContext(t *testing.T) {
	signer, _ := newKey(t)

	tests := []struct {
		name       string
		ctx        context.Context
		expected   models.Pubkey
		expectedOK bool
	}{
		{
			name:       "Контекст с подписантом",
			ctx:        context.WithValue(context.Background(), middleware.SignerKey, signer),
			expected:   signer,
			expectedOK: true,
		},
		{
			name:       "Пустой контекст",
			ctx:        context.Background(),
			expectedOK: false,
		},
		{
			name:       "Значение неверного типа",
			ctx:        context.WithValue(context.Background(), middleware.SignerKey, signer.String()),
			expectedOK: false,
		},
		{
			name:       "Nil контекст",
			ctx:        nil,
			expectedOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := middleware.GetSignerFromContext(tt.ctx)
			assert.Equal(t, tt.expectedOK, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAuthenticator(t *testing.T) {
	signer, priv := newKey(t)
	other, otherPriv := newKey(t)

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := middleware.GetSignerFromContext(r.Context())
		assert.True(t, ok, "Подписант должен быть в контексте")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK for " + got.String()))
	})
	server := httptest.NewServer(middleware.Authenticator(nextHandler))
	defer server.Close()

	validToken, err := middleware.NewSignerToken(priv, time.Hour)
	require.NoError(t, err)
	expiredToken, err := middleware.NewSignerToken(priv, -time.Hour)
	require.NoError(t, err)
	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   signer.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Успешная проверка подписи",
			header:         "Bearer " + validToken,
			expectedStatus: http.StatusOK,
			expectedBody:   "OK for " + signer.String(),
		},
		{
			name:           "Нет заголовка Authorization",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Требуется подпись запроса",
		},
		{
			name:           "Нет схемы Bearer",
			header:         validToken,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Неверный формат токена",
		},
		{
			name:           "Лишнее слово в заголовке",
			header:         "Bearer extra " + validToken,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Неверный формат токена",
		},
		{
			name:           "Подпись чужим ключом",
			header:         "Bearer " + forgedToken(t, other, priv, time.Now().Add(time.Hour)),
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Истекший токен",
			header:         "Bearer " + expiredToken,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Алгоритм HS256 не принимается",
			header:         "Bearer " + hmacToken,
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Слишком долгий срок действия",
			header:         "Bearer " + forgedToken(t, signer, priv, time.Now().AddDate(100, 0, 0)),
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Мусор вместо токена",
			header:         "Bearer garbage",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Токен другого подписанта",
			header:         "Bearer " + forgedToken(t, other, otherPriv, time.Now().Add(time.Hour)),
			expectedStatus: http.StatusOK,
			expectedBody:   "OK for " + other.String(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.expectedBody)
		})
	}
}

func TestParseSignerToken_WithoutExpiration(t *testing.T) {
	signer, priv := newKey(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Subject: signer.String(),
	}).SignedString(priv)
	require.NoError(t, err)

	_, err = middleware.ParseSignerToken(token)
	require.Error(t, err, "Токен без срока действия не принимается")
}

func TestParseSignerToken_Lifetime(t *testing.T) {
	signer, priv := newKey(t)
	sign := func(claims jwt.RegisteredClaims) string {
		t.Helper()
		claims.Subject = signer.String()
		token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
		require.NoError(t, err)
		return token
	}
	now := time.Now()

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{
			name:  "Срок ровно максимальный",
			token: sign(jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(middleware.MaxTokenLifetime))}),
		},
		{
			name:    "Срок на секунду больше максимального",
			token:   sign(jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now), ExpiresAt: jwt.NewNumericDate(now.Add(middleware.MaxTokenLifetime + time.Second))}),
			wantErr: middleware.ErrTokenLifetime,
		},
		{
			name:    "Нет времени выпуска",
			token:   sign(jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))}),
			wantErr: middleware.ErrTokenLifetime,
		},
		{
			name:    "Выпущен в будущем",
			token:   sign(jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now.Add(time.Hour)), ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour + time.Minute))}),
			wantErr: jwt.ErrTokenUsedBeforeIssued,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := middleware.ParseSignerToken(tt.token)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, signer, got)
		})
	}
}

func TestNewSignerToken_TooLong(t *testing.T) {
	_, priv := newKey(t)
	_, err := middleware.NewSignerToken(priv, middleware.MaxTokenLifetime+time.Minute)
	require.ErrorIs(t, err, middleware.ErrTokenLifetime)
}
