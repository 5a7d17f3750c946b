package http

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/repo"
	"github.com/manutencao/requisicoes/internal/service"
	"github.com/manutencao/requisicoes/internal/storage"
)

// writeServiceError traduz erros de domínio para o envelope HTTP.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *maintenance.ValidationError
	switch {
	case errors.As(err, &verr):
		var details any
		if verr.Field != "" {
			details = map[string]string{"field": verr.Field}
		}
		WriteError(w, http.StatusBadRequest, CodeValidation, verr.Message, details)
	case errors.Is(err, maintenance.ErrForbidden):
		WriteError(w, http.StatusForbidden, CodeForbidden, err.Error(), nil)
	case errors.Is(err, maintenance.ErrNotFound), errors.Is(err, maintenance.ErrAttachmentNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, notification.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		WriteError(w, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, CodeAuth, err.Error(), nil)
	case errors.Is(err, service.ErrAccountDisabled):
		WriteError(w, http.StatusForbidden, CodeForbidden, err.Error(), nil)
	case errors.Is(err, storage.ErrUnavailable):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("armazenamento de anexos indisponível")
		WriteError(w, http.StatusServiceUnavailable, CodeInternal, "armazenamento indisponível", nil)
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("falha ao processar requisição")
		WriteError(w, http.StatusInternalServerError, CodeInternal, "erro interno", nil)
	}
}
