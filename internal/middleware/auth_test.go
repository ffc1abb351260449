package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/fintrack/backend/internal/config"
	"github.com/fintrack/backend/internal/models"
	"github.com/fintrack/backend/internal/token"
)

func newTokenService() *token.Service {
	return token.NewService(config.JWTConfig{SecretKey: "test-secret", ExpiryMinutes: 30})
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "email", "is_active", "created_at"})
}

func TestAuthGuard_Middleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	tokens := newTokenService()
	guard := NewAuthGuard(db, nil, tokens)

	var seenUser *models.User
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/users/me", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	})

	t.Run("malformed header", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/users/me", nil)
		r.Header.Set("Authorization", "Token abc123")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/users/me", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	})

	t.Run("valid token resolves user", func(t *testing.T) {
		tok, err := tokens.Issue(7)
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, username, email, is_active, created_at FROM users WHERE id = \\$1").
			WithArgs(7).
			WillReturnRows(userRows().AddRow(7, "janedoe", "jane@example.com", true, time.Now()))

		r := httptest.NewRequest("GET", "/api/users/me", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotNil(t, seenUser)
		assert.Equal(t, 7, seenUser.ID)
		assert.Equal(t, "janedoe", seenUser.Username)
	})

	t.Run("inactive user rejected", func(t *testing.T) {
		tok, err := tokens.Issue(8)
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, username, email, is_active, created_at FROM users WHERE id = \\$1").
			WithArgs(8).
			WillReturnRows(userRows().AddRow(8, "gone", "gone@example.com", false, time.Now()))

		r := httptest.NewRequest("GET", "/api/users/me", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown user rejected", func(t *testing.T) {
		tok, err := tokens.Issue(9)
		assert.NoError(t, err)

		mock.ExpectQuery("SELECT id, username, email, is_active, created_at FROM users WHERE id = \\$1").
			WithArgs(9).
			WillReturnRows(userRows())

		r := httptest.NewRequest("GET", "/api/users/me", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthGuard_BlacklistedToken(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	tokens := newTokenService()
	guard := NewAuthGuard(db, redisClient, tokens)

	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tok, err := tokens.Issue(7)
	assert.NoError(t, err)

	redisMock.ExpectExists("blacklist:" + tok).SetVal(1)

	r := httptest.NewRequest("GET", "/api/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
