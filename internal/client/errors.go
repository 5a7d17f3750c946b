package client

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indica sessão expirada ou token inválido; a sessão local já foi limpa.
	ErrUnauthorized = errors.New("sessão expirada, faça login novamente")
	ErrForbidden    = errors.New("perfil sem permissão para esta ação")
	ErrNotFound     = errors.New("registro não encontrado")
	ErrRateLimited  = errors.New("muitas requisições, aguarde")
	// ErrNetwork cobre falhas de transporte e erros do servidor; a chamada pode ser repetida.
	ErrNetwork = errors.New("falha de comunicação com o servidor, tente novamente")
)

// ValidationError descreve um campo rejeitado pela API.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// APIError preserva status e mensagem da resposta. Unwrap devolve o erro de categoria.
type APIError struct {
	Status  int
	Code    string
	Message string
	kind    error
}

func (e *APIError) Error() string {
	kind := ErrNetwork
	if e.kind != nil {
		kind = e.kind
	}
	if e.Message == "" {
		return kind.Error()
	}
	return fmt.Sprintf("%s (%s)", kind.Error(), e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}
