package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tutorbase/tutorbase/libs/auth"
	"github.com/tutorbase/tutorbase/libs/db"
	"github.com/tutorbase/tutorbase/libs/outbox"
	"github.com/tutorbase/tutorbase/services/api/internal/storage"
)

type AuthHandler struct {
	pool       *db.Pool
	users      *storage.UserRepository
	tokens     *storage.TokenRepository
	outbox     *outbox.Repository
	logger     *slog.Logger
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthHandler(
	pool *db.Pool,
	users *storage.UserRepository,
	tokens *storage.TokenRepository,
	outboxRepo *outbox.Repository,
	logger *slog.Logger,
	secret string,
	accessTTL, refreshTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		pool:       pool,
		users:      users,
		tokens:     tokens,
		outbox:     outboxRepo,
		logger:     logger,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type meResponse struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	PhotoURL string `json:"photo_url,omitempty"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	if !user.Active {
		http.Error(w, "account disabled", http.StatusForbidden)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	resp, err := h.issueTokens(r, user.ID, user.Role)
	if err != nil {
		http.Error(w, "failed to issue tokens", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	token, err := h.tokens.GetRefreshByHash(ctx, storage.HashToken(req.RefreshToken))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to load refresh token", http.StatusInternalServerError)
		return
	}
	if token.RevokedAt != nil || time.Now().After(token.ExpiresAt) {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	user, err := h.users.GetByID(ctx, token.UserID)
	if err != nil || !user.Active {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	// Rotate: the presented token is spent regardless of what follows.
	if err := h.tokens.RevokeRefresh(ctx, token.ID); err != nil {
		http.Error(w, "failed to rotate refresh token", http.StatusInternalServerError)
		return
	}
	resp, err := h.issueTokens(r, user.ID, user.Role)
	if err != nil {
		http.Error(w, "failed to issue tokens", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token required", http.StatusBadRequest)
		return
	}

	token, err := h.tokens.GetRefreshByHash(r.Context(), storage.HashToken(req.RefreshToken))
	if err == nil {
		_ = h.tokens.RevokeRefresh(r.Context(), token.ID)
	}
	// Unknown tokens get the same answer as revoked ones.
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	user, ok := CurrentUser(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Role:     user.Role,
		PhotoURL: user.PhotoURL,
	})
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// RequestPasswordReset always answers 202; whether the email exists is not
// observable. The reset code reaches the user via the notifier consuming
// auth.password_reset.requested.v1.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if !storage.IsNotFound(err) {
			h.logger.Error("password reset lookup failed", "err", err)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	code, err := randomCode()
	if err != nil {
		http.Error(w, "failed to generate reset code", http.StatusInternalServerError)
		return
	}
	expiresAt := time.Now().UTC().Add(30 * time.Minute)
	if err := h.tokens.CreateResetCode(ctx, user.ID, code, expiresAt); err != nil {
		http.Error(w, "failed to store reset code", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"user_id":    user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"code":       code,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := h.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "user",
		AggregateID:   user.ID,
		EventType:     "auth.password_reset.requested.v1",
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to enqueue reset event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Code = strings.TrimSpace(req.Code)
	if req.Email == "" || req.Code == "" || len(req.NewPassword) < 8 {
		http.Error(w, "email, code and a password of at least 8 characters required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		http.Error(w, "invalid code", http.StatusUnauthorized)
		return
	}
	if err := h.tokens.ConsumeResetCode(ctx, user.ID, req.Code); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid code", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to verify code", http.StatusInternalServerError)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}
	if err := h.users.SetPasswordHash(ctx, user.ID, string(hash)); err != nil {
		http.Error(w, "failed to update password", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) issueTokens(r *http.Request, userID, role string) (tokenResponse, error) {
	now := time.Now().UTC()
	access, err := auth.SignHS256(auth.Claims{
		Sub:  userID,
		Role: role,
		Iat:  now.Unix(),
		Exp:  now.Add(h.accessTTL).Unix(),
	}, h.secret)
	if err != nil {
		return tokenResponse{}, err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return tokenResponse{}, err
	}
	refresh := hex.EncodeToString(raw)
	if _, err := h.tokens.CreateRefresh(r.Context(), userID, refresh, now.Add(h.refreshTTL)); err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}, nil
}

func randomCode() (string, error) {
	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	n := uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])
	return fmt.Sprintf("%06d", n%1000000), nil
}
