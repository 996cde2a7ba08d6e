package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"dealflow/internal/pkg/errors"
	"dealflow/internal/pkg/validator"
	"dealflow/internal/platform/audit"
	"dealflow/internal/platform/auth"
	"dealflow/internal/platform/models"
	"dealflow/internal/platform/repositories"
)

// dummyHash keeps the cost of an unknown-email login close to a wrong-password one.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dealflow-dummy-password"), bcrypt.DefaultCost)

type AuthHandler struct {
	userRepo *repositories.UserRepository
	tokenSvc *auth.TokenService
	audit    *audit.Logger
	log      zerolog.Logger
}

func NewAuthHandler(userRepo *repositories.UserRepository, tokenSvc *auth.TokenService, auditLog *audit.Logger, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{userRepo: userRepo, tokenSvc: tokenSvc, audit: auditLog, log: log}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	email, err := validator.NormalizeEmail(req.Email)
	if err != nil || req.Password == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Email and password are required")
		return
	}

	user, err := h.userRepo.GetByEmail(r.Context(), email)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load user")
		errors.Internal(w)
		return
	}

	hash := dummyHash
	if user != nil {
		hash = []byte(user.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) != nil || user == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid email or password")
		return
	}

	token, err := h.tokenSvc.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue session token")
		errors.Internal(w)
		return
	}

	now := time.Now().Unix()
	if err := h.userRepo.UpdateLastLogin(r.Context(), user.ID, now); err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	h.audit.Log(r, user.ID, audit.ActionLogin, "user", user.ID, nil)
	writeJSON(w, http.StatusOK, LoginResponse{
		User:        user,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenSvc.TTL().Seconds()),
	})
}
