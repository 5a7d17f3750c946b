package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/manutencao/requisicoes/internal/http/middleware"
	"github.com/manutencao/requisicoes/internal/maintenance"
)

// ListRequests lista as requisições visíveis, com ?status=all|<STATUS>.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	filter, err := maintenance.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeFieldError(w, "status", "status inválido")
		return
	}

	reqs, err := h.requests.List(r.Context(), actor, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(reqs))
}

// MyRequests lista as requisições abertas pelo próprio usuário.
func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	reqs, err := h.requests.MyRequests(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, nonNil(reqs))
}

// Dashboard devolve contadores e requisições recentes.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	dash, err := h.requests.Dashboard(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	dash.RecentRequests = nonNil(dash.RecentRequests)
	WriteJSON(w, http.StatusOK, dash)
}

// CreateRequest abre nova requisição em nome do usuário.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var input maintenance.CreateInput
	if !decodeBody(w, r, &input, false) {
		return
	}

	req, err := h.requests.Create(r.Context(), actor, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, req)
}

// GetRequest devolve a requisição com histórico.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	req, err := h.requests.Get(r.Context(), actor, numero)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

// UpdateRequest aplica atualização parcial.
func (h *Handler) UpdateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	var input maintenance.UpdateInput
	if !decodeBody(w, r, &input, false) {
		return
	}
	if input.Status != nil {
		status, err := maintenance.ParseStatus(string(*input.Status))
		if err != nil {
			writeFieldError(w, "status", err.Error())
			return
		}
		input.Status = &status
	}

	req, err := h.requests.Update(r.Context(), actor, numero, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

// DeleteRequest remove a requisição.
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	if err := h.requests.Delete(r.Context(), actor, numero); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AcceptRequest assume a requisição.
func (h *Handler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	req, err := h.requests.Accept(r.Context(), actor, numero)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

// StartMaintenance coloca a requisição em atendimento.
func (h *Handler) StartMaintenance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	req, err := h.requests.StartMaintenance(r.Context(), actor, numero)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

// CompleteMaintenance conclui com descrição e materiais.
func (h *Handler) CompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	var input maintenance.CompleteInput
	if !decodeBody(w, r, &input, true) {
		return
	}

	req, err := h.requests.CompleteMaintenance(r.Context(), actor, numero, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, req)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (maintenance.Actor, bool) {
	actor, ok := httpmiddleware.GetActor(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, CodeAuth, "identificação inválida", nil)
		return maintenance.Actor{}, false
	}
	return actor, true
}

func requestNumber(w http.ResponseWriter, r *http.Request) (int64, bool) {
	numero, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || numero <= 0 {
		WriteError(w, http.StatusBadRequest, CodeValidation, "id inválido", nil)
		return 0, false
	}
	return numero, true
}

func nonNil(reqs []maintenance.Request) []maintenance.Request {
	if reqs == nil {
		return []maintenance.Request{}
	}
	return reqs
}
