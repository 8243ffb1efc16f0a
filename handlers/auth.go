package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classlens/backend/config"
	"github.com/classlens/backend/models"
	"github.com/classlens/backend/repository"
)

type AuthHandler struct {
	UserRepo repository.UserRepository
	Cfg      config.Config
}

func NewAuthHandler(userRepo repository.UserRepository, cfg config.Config) *AuthHandler {
	return &AuthHandler{UserRepo: userRepo, Cfg: cfg}
}

type SignupPayload struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	InstitutionName string `json:"institution_name"`
}

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Signup registers a new dashboard account.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var payload SignupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_payload", "Invalid request payload")
		return
	}

	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))
	if payload.Email == "" || payload.Password == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_fields", "Email and password are required")
		return
	}
	if !strings.Contains(payload.Email, "@") {
		WriteAPIError(w, http.StatusBadRequest, "invalid_email", "Email address is not valid")
		return
	}
	if len(payload.Password) < 8 {
		WriteAPIError(w, http.StatusBadRequest, "weak_password", "Password must be at least 8 characters")
		return
	}

	if _, err := h.UserRepo.GetByEmail(payload.Email); err == nil {
		WriteAPIError(w, http.StatusConflict, "email_taken", "An account with this email already exists")
		return
	}

	newUser := &models.User{
		Email:           payload.Email,
		InstitutionName: payload.InstitutionName,
		Active:          true,
	}
	if err := newUser.SetPassword(payload.Password); err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "hash_failed", "Failed to process password")
		return
	}

	if err := h.UserRepo.Create(newUser); err != nil {
		log.Printf("auth: failed to create user %s: %v", payload.Email, err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "Failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Account created. Please log in."})
}

// Login verifies credentials and issues a signed token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload LoginPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_payload", "Invalid request payload")
		return
	}

	payload.Email = strings.ToLower(strings.TrimSpace(payload.Email))

	user, err := h.UserRepo.GetByEmail(payload.Email)
	if err != nil || !user.CheckPassword(payload.Password) {
		// same message for unknown email and wrong password
		WriteAPIError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}
	if !user.Active {
		WriteAPIError(w, http.StatusUnauthorized, "account_disabled", "This account has been disabled")
		return
	}

	expirationTime := time.Now().Add(time.Duration(h.Cfg.TokenExpiryHours) * time.Hour)
	claims := &jwt.RegisteredClaims{
		Subject:   fmt.Sprint(user.ID),
		ExpiresAt: jwt.NewNumericDate(expirationTime),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		Issuer:    "classlens",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(h.Cfg.JWTSecret))
	if err != nil {
		WriteAPIError(w, http.StatusInternalServerError, "token_failed", "Failed to generate token")
		return
	}

	userForResponse := *user
	userForResponse.PasswordHash = ""

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     tokenString,
		User:      userForResponse,
		ExpiresAt: expirationTime,
	})
}

// CurrentUser retrieves the authenticated user from the request context.
// This handler should be protected by the AuthMiddleware.
func (h *AuthHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok || user == nil {
		WriteAPIError(w, http.StatusInternalServerError, "context_error", "Could not retrieve user from context")
		return
	}

	userForResponse := *user
	userForResponse.PasswordHash = ""

	writeJSON(w, http.StatusOK, userForResponse)
}
