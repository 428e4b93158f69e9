package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/models"
	"starter/internal/service"
)

type notificationHandlers struct {
	responder
	svc *service.NotificationService
}

func (h *notificationHandlers) register(r *mux.Router) {
	r.Handle("/mine", gate("", h.mine)).Methods(http.MethodGet)
	r.Handle("/mine/unread-count", gate("", h.unreadCount)).Methods(http.MethodGet)
	r.Handle("/mine/read-all", gate("", h.readAll)).Methods(http.MethodPost)
	r.Handle("/{id:[0-9]+}/read", gate("", h.read)).Methods(http.MethodPost)

	NewController[models.NotificationDTO](h.svc, auth.ResNotifications, "Notification", h.responder).Register(r)
}

// mine отдаёт уведомления текущего пользователя, с ?unreadOnly=true только непрочитанные.
func (h *notificationHandlers) mine(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Mine(r.Context(), actorFrom(r).ID(), pageRequest(r), queryBool(r, "unreadOnly"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, page)
}

func (h *notificationHandlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.UnreadCount(r.Context(), actorFrom(r).ID())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, models.CountResponse{Count: n})
}

func (h *notificationHandlers) read(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.svc.MarkAsRead(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, n)
}

func (h *notificationHandlers) readAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.MarkAllAsRead(r.Context(), actorFrom(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, models.CountResponse{Count: n})
}
