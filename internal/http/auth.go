package http

import (
	"net/http"

	httpmiddleware "github.com/manutencao/requisicoes/internal/http/middleware"
)

// Login autentica por username e senha e devolve token mais usuário.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &payload, false) {
		return
	}

	result, err := h.auth.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// Logout revoga o token usado na chamada.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), httpmiddleware.GetToken(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me devolve o perfil do usuário autenticado.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, CodeAuth, "identificação inválida", nil)
		return
	}

	profile, err := h.auth.Me(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, profile)
}

// ListProfiles lista perfis visíveis ao usuário.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, CodeAuth, "identificação inválida", nil)
		return
	}

	profiles, err := h.profiles.ListProfiles(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, profiles)
}
