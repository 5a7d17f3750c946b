package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/service"
)

type contextKey string

const (
	ContextKeyActor contextKey = "actor"
	ContextKeyToken contextKey = "token"
)

// Authenticator resolve o token recebido no ator autenticado.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (maintenance.Actor, error)
}

// Auth aceita "Authorization: Token <t>" e "Bearer <t>" e injeta o ator no contexto.
func Auth(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := TokenFromHeader(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "AUTH", "token ausente")
				return
			}

			actor, err := authenticator.Authenticate(r.Context(), token)
			if errors.Is(err, service.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "AUTH", "token inválido")
				return
			}
			if err != nil {
				// só ErrUnauthorized encerra a sessão do cliente
				log.Error().Err(err).Str("path", r.URL.Path).Msg("falha ao validar token")
				writeError(w, http.StatusServiceUnavailable, "INTERNAL", "autenticação indisponível")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyActor, actor)
			ctx = context.WithValue(ctx, ContextKeyToken, token)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromHeader extrai o token dos esquemas Token ou Bearer.
func TokenFromHeader(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Token") && !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetActor recupera o ator do contexto.
func GetActor(ctx context.Context) (maintenance.Actor, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(maintenance.Actor)
	return actor, ok
}

// GetToken recupera o token bruto do contexto.
func GetToken(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeyToken).(string)
	return val
}

// GetSubject devolve o id do ator como texto, usado como chave de rate limit.
func GetSubject(ctx context.Context) string {
	actor, ok := GetActor(ctx)
	if !ok || actor.ID == 0 {
		return ""
	}
	return strconv.FormatInt(actor.ID, 10)
}

// RequireTransition restringe a rota a perfis que podem alterar status.
func RequireTransition(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := GetActor(r.Context())
		if !ok || !maintenance.CanTransition(actor.Role) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "perfil sem permissão para alterar status")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
