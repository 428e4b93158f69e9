package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/models"
	"starter/internal/service"
)

type userHandlers struct {
	responder
	svc *service.UserService
}

func (h *userHandlers) register(r *mux.Router) {
	read := auth.Perm(auth.ResUsers, auth.ActRead)
	update := auth.Perm(auth.ResUsers, auth.ActUpdate)

	r.Handle("/by-email/{email}", gate(read, h.byEmail)).Methods(http.MethodGet)
	r.Handle("/by-username/{username}", gate(read, h.byUserName)).Methods(http.MethodGet)
	r.Handle("/change-password", gate("", h.changePassword)).Methods(http.MethodPost)
	r.Handle("/{id:[0-9]+}/roles", gate(read, h.roles)).Methods(http.MethodGet)
	r.Handle("/{id:[0-9]+}/roles", gate(update, h.setRoles)).Methods(http.MethodPut)
	r.Handle("/{id:[0-9]+}/roles/{roleId:[0-9]+}", gate(update, h.addRole)).Methods(http.MethodPost)
	r.Handle("/{id:[0-9]+}/roles/{roleId:[0-9]+}", gate(update, h.removeRole)).Methods(http.MethodDelete)
	r.Handle("/{id:[0-9]+}/permissions", gate(read, h.permissions)).Methods(http.MethodGet)

	NewController[models.UserDTO](h.svc, auth.ResUsers, "User", h.responder).Register(r)
}

func (h *userHandlers) byEmail(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, u)
}

func (h *userHandlers) byUserName(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.GetByUserName(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, u)
}

// changePassword меняет пароль текущего пользователя.
func (h *userHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var in models.ChangePasswordRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	actor := actorFrom(r)
	if err := h.svc.ChangePassword(r.Context(), actor, actor.ID(), in.CurrentPassword, in.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, models.MessageResponse{Message: "Password changed"})
}

func (h *userHandlers) roles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles, err := h.svc.Roles(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, roles)
}

func (h *userHandlers) permissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	perms, err := h.svc.Permissions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, perms)
}

func (h *userHandlers) setRoles(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var in models.IDsRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.SetRoles(r.Context(), actorFrom(r), id, in.IDs); err != nil {
		h.fail(w, r, err)
		return
	}
	h.roles(w, r)
}

func (h *userHandlers) addRole(w http.ResponseWriter, r *http.Request) {
	h.roleLink(w, r, h.svc.AddRole)
}

func (h *userHandlers) removeRole(w http.ResponseWriter, r *http.Request) {
	h.roleLink(w, r, h.svc.RemoveRole)
}

func (h *userHandlers) roleLink(w http.ResponseWriter, r *http.Request, fn linkFunc) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roleID, err := pathID(r, "roleId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := fn(r.Context(), actorFrom(r), id, roleID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, true)
}
