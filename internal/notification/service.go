package notification

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/maintenance"
)

// Store abstrai a persistência para facilitar testes.
type Store interface {
	InsertForUser(ctx context.Context, userID int64, numero *int64, titulo, mensagem string) error
	InsertForProfile(ctx context.Context, profile string, numero *int64, titulo, mensagem string) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]Notification, error)
	MarkAsRead(ctx context.Context, userID, id int64) (Notification, error)
	MarkAllAsRead(ctx context.Context, userID int64) (int64, error)
}

// Service entrega e consulta notificações internas.
type Service struct {
	store Store
}

// NewService cria o serviço.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// NotifyRole implementa maintenance.Notifier.
func (s *Service) NotifyRole(ctx context.Context, role maintenance.Role, notice maintenance.Notice) error {
	n, err := s.store.InsertForProfile(ctx, string(role), requestRef(notice.Numero), notice.Titulo, notice.Mensagem)
	if err != nil {
		return err
	}
	log.Debug().Str("perfil", string(role)).Int64("destinatarios", n).Msg("notificação enviada ao perfil")
	return nil
}

// NotifyUser implementa maintenance.Notifier.
func (s *Service) NotifyUser(ctx context.Context, userID int64, notice maintenance.Notice) error {
	return s.store.InsertForUser(ctx, userID, requestRef(notice.Numero), notice.Titulo, notice.Mensagem)
}

func (s *Service) List(ctx context.Context, actor maintenance.Actor) ([]Notification, error) {
	return s.store.ListByUser(ctx, actor.ID)
}

func (s *Service) MarkAsRead(ctx context.Context, actor maintenance.Actor, id int64) (Notification, error) {
	return s.store.MarkAsRead(ctx, actor.ID, id)
}

func (s *Service) MarkAllAsRead(ctx context.Context, actor maintenance.Actor) (int64, error) {
	return s.store.MarkAllAsRead(ctx, actor.ID)
}

func requestRef(numero int64) *int64 {
	if numero == 0 {
		return nil
	}
	return &numero
}
