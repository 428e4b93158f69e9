package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"starter/internal/auth"
	"starter/internal/metrics"
	"starter/internal/models"
	"starter/internal/service"
)

type authHandlers struct {
	responder
	svc     *service.AuthService
	metrics *metrics.Metrics
}

func (h *authHandlers) register(r *mux.Router) {
	r.Handle("/login", tokens(h, "login", h.login)).Methods(http.MethodPost)
	r.Handle("/register", tokens(h, "register", h.signup)).Methods(http.MethodPost)
	r.Handle("/refresh", tokens(h, "refresh", h.refresh)).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", h.resetPassword).Methods(http.MethodPost)
	r.Handle("/validate", gate("", h.validate)).Methods(http.MethodGet)
	r.Handle("/me", gate("", h.me)).Methods(http.MethodGet)
}

func (h *authHandlers) event(name string, err error) {
	if h.metrics != nil {
		h.metrics.AuthEvent(name, err == nil)
	}
}

// tokens: общий обработчик login/register/refresh, тело -> пара токенов.
func tokens[In any](h *authHandlers, event string, call func(*http.Request, In) (models.AuthResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := decode(r, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		resp, err := call(r, in)
		h.event(event, err)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		h.json(w, http.StatusOK, resp)
	}
}

func (h *authHandlers) login(r *http.Request, in models.LoginRequest) (models.AuthResponse, error) {
	return h.svc.Login(r.Context(), in, actorFrom(r))
}

func (h *authHandlers) signup(r *http.Request, in models.RegisterRequest) (models.AuthResponse, error) {
	return h.svc.Register(r.Context(), in, actorFrom(r))
}

func (h *authHandlers) refresh(r *http.Request, in models.RefreshRequest) (models.AuthResponse, error) {
	return h.svc.Refresh(r.Context(), in.RefreshToken, actorFrom(r))
}

func (h *authHandlers) logout(w http.ResponseWriter, r *http.Request) {
	var in models.RefreshRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.svc.Logout(r.Context(), in.RefreshToken, actorFrom(r))
	h.event("logout", err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, models.MessageResponse{Message: "Logged out"})
}

func (h *authHandlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in models.ForgotPasswordRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, h.svc.ForgotPassword(r.Context(), in.Email, actorFrom(r)))
}

func (h *authHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in models.ResetPasswordRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	err := h.svc.ResetPassword(r.Context(), in, actorFrom(r))
	h.event("reset", err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, models.MessageResponse{Message: "Password has been reset"})
}

// validate: токен уже проверен Authenticate, отвечаем его содержимым.
func (h *authHandlers) validate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	h.json(w, http.StatusOK, models.ValidateResponse{
		Valid:    true,
		UserID:   p.UserID,
		UserName: p.UserName,
		Roles:    p.Roles,
	})
}

func (h *authHandlers) me(w http.ResponseWriter, r *http.Request) {
	u, perms, err := h.svc.Me(r.Context(), actorFrom(r).ID())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, models.MeResponse{User: u, Permissions: perms})
}
