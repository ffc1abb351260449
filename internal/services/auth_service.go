package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/fintrack/backend/internal/middleware"
	"github.com/fintrack/backend/internal/models"
	"github.com/fintrack/backend/internal/token"
)

// AuthService handles registration, login and logout.
type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	tokens    *token.Service
	validator *ValidationHelper
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,username" example:"janedoe"` // Unique username
	Email    string `json:"email" validate:"required,email" example:"jane@example.com"`           // Unique email address
	Password string `json:"password" validate:"required,min=8,max=100" example:"s3cretpass"`      // Plaintext password
}

// TokenResponse represents the login response
// @Description Bearer token response structure
type TokenResponse struct {
	AccessToken string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // Signed JWT
	TokenType   string `json:"token_type" example:"bearer"`                                    // Token scheme
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, tokens *token.Service) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		tokens:    tokens,
		validator: NewValidationHelper(),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user with username, email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} models.User "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request or duplicate username/email"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req RegisterRequest
	if err := dec.Decode(&req); err != nil {
		log.Printf("[AUTH] Registration failed - invalid request: %v", err)
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	username := strings.ToLower(req.Username)
	email := strings.ToLower(req.Email)

	var exists bool
	if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username).Scan(&exists); err != nil {
		log.Printf("[AUTH] Username check failed for %s: %v", username, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendErrorResponse(w, "Username already registered", http.StatusBadRequest, nil)
		return
	}

	if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", email).Scan(&exists); err != nil {
		log.Printf("[AUTH] Email check failed for %s: %v", email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	if exists {
		SendErrorResponse(w, "Email already registered", http.StatusBadRequest, nil)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", username, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	user := models.User{Username: username, Email: email}
	err = s.db.QueryRow(
		"INSERT INTO users (username, email, hashed_password) VALUES ($1, $2, $3) RETURNING id, is_active, created_at",
		username, email, string(hashedPassword),
	).Scan(&user.ID, &user.IsActive, &user.CreatedAt)
	if err != nil {
		// Unique constraints close the race the two EXISTS checks leave open.
		log.Printf("[AUTH] User creation failed for %s: %v", username, err)
		SendErrorResponse(w, "Username or email already registered", http.StatusBadRequest, nil)
		return
	}

	log.Printf("[AUTH] User created successfully - ID: %d, Username: %s", user.ID, user.Username)
	sendJSON(w, http.StatusCreated, user)
}

// Token handles user login
// @Summary Login and get access token
// @Description Authenticate with form-encoded username and password
// @Tags auth
// @Accept x-www-form-urlencoded
// @Produce json
// @Param username formData string true "Username"
// @Param password formData string true "Password"
// @Success 200 {object} TokenResponse "Login successful"
// @Failure 401 {object} ErrorResponse "Incorrect username or password"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /token [post]
func (s *AuthService) Token(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	if err := r.ParseForm(); err != nil {
		SendErrorResponse(w, "Invalid form data", http.StatusBadRequest, nil)
		return
	}

	username := strings.ToLower(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		SendErrorResponse(w, "Username and password are required", http.StatusBadRequest, nil)
		return
	}

	var userID int
	var hashedPassword string
	err := s.db.QueryRow(
		"SELECT id, hashed_password FROM users WHERE username = $1",
		username,
	).Scan(&userID, &hashedPassword)
	if err != nil {
		// Unknown user and wrong password are deliberately
		// indistinguishable.
		log.Printf("[AUTH] Login failed for username: %s", username)
		s.loginRejected(w)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) != nil {
		log.Printf("[AUTH] Login failed for username: %s", username)
		s.loginRejected(w)
		return
	}

	accessToken, err := s.tokens.Issue(userID)
	if err != nil {
		log.Printf("[AUTH] Token issuance failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %d", userID)
	sendJSON(w, http.StatusOK, TokenResponse{AccessToken: accessToken, TokenType: "bearer"})
}

func (s *AuthService) loginRejected(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	SendErrorResponse(w, "Incorrect username or password", http.StatusUnauthorized, nil)
}

// Me returns the current user
// @Summary Get current user
// @Description Get the authenticated user's account information
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User "Current user"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /users/me [get]
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sendJSON(w, http.StatusOK, user)
}

// Logout revokes the presented token
// @Summary Logout user
// @Description Blacklist the presented bearer token for its remaining lifetime
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]string "Logout successful"
// @Router /logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		tokenString := authHeader[7:]
		if s.redis != nil {
			key := "blacklist:" + tokenString
			if err := s.redis.Set(r.Context(), key, "1", s.tokens.TTL()).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	sendJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}
