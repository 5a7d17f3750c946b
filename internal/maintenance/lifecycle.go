package maintenance

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError aponta o campo que impediu a operação.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// successors é a tabela usada apenas no modo estrito.
var successors = map[Status][]Status{
	StatusAberta:        {StatusVisualizada, StatusAceita, StatusCancelada},
	StatusVisualizada:   {StatusAceita, StatusCancelada},
	StatusAceita:        {StatusEmAtendimento, StatusCancelada},
	StatusEmAtendimento: {StatusParada, StatusConcluida, StatusCancelada},
	StatusParada:        {StatusEmAtendimento, StatusCancelada},
	StatusConcluida:     {},
	StatusCancelada:     {},
}

// Successors lista os próximos estados legais no modo estrito.
func Successors(from Status) []Status {
	return append([]Status(nil), successors[from]...)
}

// CanMove indica se from -> to é um avanço legal no modo estrito.
func CanMove(from, to Status) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition é o pedido de mudança de status.
type Transition struct {
	To     Status
	Reason string
}

// Engine aplica as regras de transição de status.
//
// Sem Strict qualquer status pode ser alcançado a partir de qualquer outro por
// um perfil autorizado, como no seletor original.
type Engine struct {
	Strict bool
	Now    func() time.Time
}

// NewEngine cria o motor com o relógio padrão.
func NewEngine(strict bool) *Engine {
	return &Engine{Strict: strict, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// ApplyTransition devolve uma nova requisição com o status alterado e
// exatamente uma entrada de histórico a mais. Em caso de erro req não muda.
func (e *Engine) ApplyTransition(req *Request, t Transition, actor Actor) (*Request, error) {
	if req == nil {
		return nil, ErrNotFound
	}
	if !CanTransition(actor.Role) {
		return nil, ErrForbidden
	}
	if !t.To.Valid() {
		return nil, &ValidationError{Field: "status", Message: ErrInvalidStatus.Error(), Err: ErrInvalidStatus}
	}
	if e != nil && e.Strict && !CanMove(req.Status, t.To) {
		return nil, invalid("status", fmt.Sprintf("transição de %s para %s não permitida", req.Status, t.To))
	}

	now := e.now()
	next := req.Clone()
	reason := strings.TrimSpace(t.Reason)

	switch t.To {
	case StatusAceita:
		if next.Responsavel == nil {
			resp := actor.UserRef
			next.Responsavel = &resp
		}
	case StatusEmAtendimento:
		if next.HoraInicio == nil {
			started := now
			next.HoraInicio = &started
		}
	case StatusConcluida:
		if strings.TrimSpace(next.DescricaoManutencao) == "" {
			return nil, invalid("descricao_manutencao", "descrição da manutenção obrigatória")
		}
		finished := now
		next.HoraTermino = &finished
	case StatusCancelada:
		if reason != "" {
			next.MotivoCancelamento = reason
		}
	case StatusParada:
		if reason != "" {
			next.MotivoParada = reason
		}
	}

	previous := next.Status
	next.Status = t.To
	next.DataAtualizacao = now
	next.Historico = append(next.Historico, HistoryEntry{
		Usuario:   actor.UserRef,
		Acao:      ActionStatusChanged,
		Descricao: fmt.Sprintf("Status alterado de %s para %s", previous, t.To),
		DataAcao:  now,
	})

	return next, nil
}
