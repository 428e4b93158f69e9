package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/models"
	"starter/internal/service"
)

// linkFunc: добавление/снятие связи owner -> target (роль пользователя, право роли).
type linkFunc func(ctx context.Context, actor service.Actor, ownerID, targetID uint) error

type roleHandlers struct {
	responder
	svc *service.RoleService
}

func (h *roleHandlers) register(r *mux.Router) {
	read := auth.Perm(auth.ResRoles, auth.ActRead)
	update := auth.Perm(auth.ResRoles, auth.ActUpdate)

	r.Handle("/{id:[0-9]+}/permissions", gate(read, h.permissions)).Methods(http.MethodGet)
	r.Handle("/{id:[0-9]+}/permissions", gate(update, h.setPermissions)).Methods(http.MethodPut)
	r.Handle("/{id:[0-9]+}/permissions/{permissionId:[0-9]+}", gate(update, h.link(h.svc.AddPermission))).Methods(http.MethodPost)
	r.Handle("/{id:[0-9]+}/permissions/{permissionId:[0-9]+}", gate(update, h.link(h.svc.RemovePermission))).Methods(http.MethodDelete)

	NewController[models.RoleDTO](h.svc, auth.ResRoles, "Role", h.responder).Register(r)
}

func (h *roleHandlers) permissions(w http.ResponseWriter, r *http.Request) {
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

func (h *roleHandlers) setPermissions(w http.ResponseWriter, r *http.Request) {
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
	if err := h.svc.SetPermissions(r.Context(), actorFrom(r), id, in.IDs); err != nil {
		h.fail(w, r, err)
		return
	}
	h.permissions(w, r)
}

func (h *roleHandlers) link(fn linkFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		permID, err := pathID(r, "permissionId")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := fn(r.Context(), actorFrom(r), id, permID); err != nil {
			h.fail(w, r, err)
			return
		}
		h.json(w, http.StatusOK, true)
	}
}

type permissionHandlers struct {
	responder
	svc *service.PermissionService
}

func (h *permissionHandlers) register(r *mux.Router) {
	r.Handle("/by-resource/{resource}", gate(auth.Perm(auth.ResPermissions, auth.ActRead), h.byResource)).Methods(http.MethodGet)
	NewController[models.PermissionDTO](h.svc, auth.ResPermissions, "Permission", h.responder).Register(r)
}

func (h *permissionHandlers) byResource(w http.ResponseWriter, r *http.Request) {
	perms, err := h.svc.ByResource(r.Context(), mux.Vars(r)["resource"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, perms)
}
