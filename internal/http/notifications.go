package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListNotifications lista as notificações do usuário.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	items, err := h.notifications.List(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, items)
}

// MarkNotificationAsRead marca uma notificação como lida.
func (h *Handler) MarkNotificationAsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, CodeValidation, "id inválido", nil)
		return
	}

	n, err := h.notifications.MarkAsRead(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, n)
}

// MarkAllNotificationsAsRead marca todas como lidas.
func (h *Handler) MarkAllNotificationsAsRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	changed, err := h.notifications.MarkAllAsRead(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int64{"marcadas": changed})
}
