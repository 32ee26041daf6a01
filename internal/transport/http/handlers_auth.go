package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"scanhub/internal/legacy"
	"scanhub/pkg/platform/sentinel"
)

// TokenIssuer mints bearer tokens for resolved identities.
type TokenIssuer interface {
	Issue(identityKey string) (string, error)
}

type AuthHandler struct {
	directory legacy.Directory
	tokens    TokenIssuer
	logger    *slog.Logger
}

func NewAuthHandler(directory legacy.Directory, tokens TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{directory: directory, tokens: tokens, logger: logger}
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

type loginRequest struct {
	Identity string `json:"identity"`
}

type loginResponse struct {
	Identity string `json:"identity"`
	Token    string `json:"token"`
}

// HandleLogin handles POST /auth/login requests. The identity must be known
// to the legacy directory before a token is issued.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Identity == "" {
		writeBadRequest(w, "identity is required")
		return
	}

	if _, err := h.directory.LookupByUsername(ctx, req.Identity); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown identity"})
			return
		}
		h.logger.ErrorContext(ctx, "directory lookup failed", "identity", req.Identity, "error", err)
		writeError(w, err)
		return
	}

	tok, err := h.tokens.Issue(req.Identity)
	if err != nil {
		h.logger.ErrorContext(ctx, "token issue failed", "identity", req.Identity, "error", err)
		writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "login succeeded", "identity", req.Identity)
	writeJSON(w, http.StatusOK, loginResponse{Identity: req.Identity, Token: tok})
}
