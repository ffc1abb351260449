package middleware

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/fintrack/backend/internal/models"
	"github.com/fintrack/backend/internal/token"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// AuthGuard resolves bearer tokens to active user records. Handlers
// behind the guard never see raw tokens, only the resolved user.
type AuthGuard struct {
	db     *sql.DB
	redis  *redis.Client
	tokens *token.Service
}

// NewAuthGuard builds the guard. The Redis client may be nil, in which
// case the logout blacklist is skipped.
func NewAuthGuard(db *sql.DB, redisClient *redis.Client, tokens *token.Service) *AuthGuard {
	return &AuthGuard{db: db, redis: redisClient, tokens: tokens}
}

// Middleware authenticates the request and injects the resolved user
// into the request context.
func (g *AuthGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Authorization header required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(w, "Invalid authorization header format")
			return
		}
		tokenString := parts[1]

		if g.isBlacklisted(r.Context(), tokenString) {
			unauthorized(w, "Token has been revoked")
			return
		}

		userID, err := g.tokens.Validate(tokenString)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		user, err := g.lookupUser(userID)
		if err != nil {
			if err != sql.ErrNoRows {
				log.Printf("[AUTH] User lookup failed for ID %d: %v", userID, err)
			}
			unauthorized(w, "Invalid or expired token")
			return
		}

		if !user.IsActive {
			unauthorized(w, "Account is inactive")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (g *AuthGuard) isBlacklisted(ctx context.Context, tokenString string) bool {
	if g.redis == nil {
		return false
	}
	exists, err := g.redis.Exists(ctx, "blacklist:"+tokenString).Result()
	if err != nil {
		log.Printf("[AUTH] Blacklist check failed: %v", err)
		return false
	}
	return exists > 0
}

func (g *AuthGuard) lookupUser(userID int) (*models.User, error) {
	var user models.User
	err := g.db.QueryRow(
		"SELECT id, username, email, is_active, created_at FROM users WHERE id = $1",
		userID,
	).Scan(&user.ID, &user.Username, &user.Email, &user.IsActive, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserFromContext returns the authenticated user placed in the context
// by the guard, or nil if the request was not authenticated.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// WithUser returns a context carrying the given user. Exposed for
// handler tests that bypass the middleware.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, message, http.StatusUnauthorized)
}
