package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/buildrite/siteops/internal/notify"
)

type NotificationLister interface {
	ListRecent(ctx context.Context, limit int) ([]notify.Record, error)
}

type NotificationHandler struct {
	store NotificationLister
}

func NewNotificationHandler(store NotificationLister) *NotificationHandler {
	return &NotificationHandler{store: store}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": records})
}
