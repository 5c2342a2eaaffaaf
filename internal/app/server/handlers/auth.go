package handlers

import (
	"encoding/json"
	"net/http"

	"civicstream/internal/core/domain"
	"civicstream/internal/core/services"
	"civicstream/pkg/middleware"
)

// AuthHandler issues development tokens. Production deployments put a
// real identity provider in front of the gateway; the realtime layer
// only ever validates tokens, it never mints them for end users.
type AuthHandler struct {
	tokenSvc *services.TokenService
}

func NewAuthHandler(t *services.TokenService) *AuthHandler {
	return &AuthHandler{tokenSvc: t}
}

func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context())
	var req struct {
		UserID   string `json:"user_id"`
		UserName string `json:"user_name"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.ErrorContext(r.Context(), "auth handler - bad request")
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = domain.RoleCitizen
	}
	token, err := h.tokenSvc.GenerateToken(req.UserID, req.UserName, req.Role)
	if err != nil {
		log.ErrorContext(r.Context(), "auth handler - token generation failed", "user_id", req.UserID)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
	log.InfoContext(r.Context(), "auth handler - token issued", "user_id", req.UserID)
}
