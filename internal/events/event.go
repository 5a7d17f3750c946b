// Package events define os eventos do ciclo de vida publicados no broker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Fila durável onde os eventos de requisição são publicados.
const QueueName = "requisicao.eventos"

const (
	TypeRequestCreated = "requisicao.criada"
	TypeStatusChanged  = "requisicao.status_alterado"
)

// RequestEvent carrega o suficiente para notificar sem consultar o banco.
type RequestEvent struct {
	ID          string    `json:"id"`
	Tipo        string    `json:"tipo"`
	Numero      int64     `json:"numero_requisicao"`
	Titulo      string    `json:"titulo_curto"`
	De          string    `json:"status_anterior,omitempty"`
	Para        string    `json:"status"`
	Ator        string    `json:"ator"`
	Solicitante string    `json:"solicitante"`
	Prioridade  int       `json:"prioridade"`
	OcorridoEm  time.Time `json:"ocorrido_em"`
}

// NewRequestEvent preenche id e horário.
func NewRequestEvent(kind string, numero int64, titulo string) RequestEvent {
	return RequestEvent{
		ID:         uuid.NewString(),
		Tipo:       kind,
		Numero:     numero,
		Titulo:     titulo,
		OcorridoEm: time.Now().UTC(),
	}
}

// Publisher envia eventos; falhas não devem interromper o fluxo principal.
type Publisher interface {
	Publish(ctx context.Context, ev RequestEvent) error
}

// NoopPublisher descarta eventos quando não há broker configurado.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, ev RequestEvent) error {
	return nil
}
