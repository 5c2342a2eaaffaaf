package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"civicstream/internal/core/domain"
	"civicstream/internal/core/services"
	"civicstream/pkg/logging"
	"civicstream/pkg/middleware"
)

// NotificationHandler is the REST surface the client reconciler
// consumes: baseline fetch plus the three authoritative mutations.
type NotificationHandler struct {
	svc *services.NotificationService
}

func NewNotificationHandler(svc *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context())
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	items, err := h.svc.List(r.Context(), ident.UserID)
	if err != nil {
		log.ErrorContext(r.Context(), "notification handler - list failed",
			logging.User(ident.UserID), logging.Err(err))
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []domain.Notification{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"notifications": items})
}

// MarkRead handles PATCH /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.mutateOne(w, r, h.svc.MarkRead)
}

// Delete handles DELETE /api/notifications/{id}
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutateOne(w, r, h.svc.Delete)
}

// MarkAllRead handles PATCH /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context())
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.svc.MarkAllRead(r.Context(), ident.UserID); err != nil {
		log.ErrorContext(r.Context(), "notification handler - mark all read failed",
			logging.User(ident.UserID), logging.Err(err))
		http.Error(w, "failed to mark all read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) mutateOne(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, userID, id string) error,
) {
	log := middleware.Logger(r.Context())
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	if err := op(r.Context(), ident.UserID, id); err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.ErrorContext(r.Context(), "notification handler - mutation failed",
			logging.User(ident.UserID), logging.NotificationID(id), logging.Err(err))
		http.Error(w, "mutation failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
