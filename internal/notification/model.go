// Package notification guarda os avisos internos exibidos aos usuários.
package notification

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("notificação não encontrada")

// Notification é um aviso destinado a um único usuário.
type Notification struct {
	ID          int64     `json:"id"`
	UsuarioID   int64     `json:"usuario"`
	Numero      *int64    `json:"requisicao"`
	Titulo      string    `json:"titulo"`
	Mensagem    string    `json:"mensagem"`
	Lida        bool      `json:"lida"`
	DataCriacao time.Time `json:"data_criacao"`
}
