package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/events"
)

const (
	dashboardCacheKey = "dashboard:global"
	dashboardCacheTTL = 30 * time.Second
	recentLimit       = 5
)

// Store persiste requisições e histórico.
type Store interface {
	CreateRequest(ctx context.Context, solicitante UserRef, input CreateInput, entry HistoryEntry) (*Request, error)
	GetRequest(ctx context.Context, numero int64) (*Request, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
	// UpdateRequest executa fn com a requisição bloqueada e grava o resultado;
	// entradas de histórico com ID zero são inseridas.
	UpdateRequest(ctx context.Context, numero int64, fn func(current *Request) (*Request, error)) (*Request, error)
	DeleteRequest(ctx context.Context, numero int64) error
	CountRequests(ctx context.Context, solicitanteID *int64) (Counters, error)
}

// Notice é uma notificação destinada a usuários.
type Notice struct {
	Titulo   string
	Mensagem string
	Numero   int64
}

// Notifier entrega notificações internas.
type Notifier interface {
	NotifyRole(ctx context.Context, role Role, notice Notice) error
	NotifyUser(ctx context.Context, userID int64, notice Notice) error
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Service reúne regras de negócio das requisições de manutenção.
type Service struct {
	store     Store
	engine    *Engine
	notifier  Notifier
	publisher events.Publisher
	cache     redisCommander
	blobs     BlobStore
	logger    zerolog.Logger
}

// NewService cria o serviço; notifier, publisher e cache são opcionais.
func NewService(store Store, engine *Engine, notifier Notifier, publisher events.Publisher, cache redisCommander) *Service {
	if engine == nil {
		engine = NewEngine(false)
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		store:     store,
		engine:    engine,
		notifier:  notifier,
		publisher: publisher,
		cache:     cache,
		logger:    log.With().Str("component", "maintenance").Logger(),
	}
}

// Create abre uma nova requisição em nome do usuário.
func (s *Service) Create(ctx context.Context, actor Actor, input CreateInput) (*Request, error) {
	input.Normalize()
	if err := input.Validate(); err != nil {
		return nil, err
	}

	entry := HistoryEntry{
		Usuario:   actor.UserRef,
		Acao:      ActionCreated,
		Descricao: "Requisição criada",
		DataAcao:  s.engine.now(),
	}

	req, err := s.store.CreateRequest(ctx, actor.UserRef, input, entry)
	if err != nil {
		return nil, fmt.Errorf("criar requisição: %w", err)
	}

	s.notifyRole(ctx, RoleManutencao, Notice{
		Titulo:   "Nova Requisição de Manutenção",
		Mensagem: fmt.Sprintf("Nova requisição #%d: %s", req.Numero, req.TituloCurto),
		Numero:   req.Numero,
	})
	s.publish(ctx, events.TypeRequestCreated, req, actor, "")
	s.invalidateDashboard(ctx)

	return req, nil
}

// List devolve as requisições visíveis ao usuário, filtradas por status.
func (s *Service) List(ctx context.Context, actor Actor, filter StatusFilter) ([]Request, error) {
	var repoFilter RequestFilter
	if !IsStaff(actor.Role) {
		id := actor.ID
		repoFilter.SolicitanteID = &id
	}
	if filter != "" && filter != FilterAll {
		repoFilter.Status = []Status{Status(filter)}
	}

	reqs, err := s.store.ListRequests(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	return FilterByStatus(Visible(actor, reqs), filter), nil
}

// MyRequests lista as requisições abertas pelo próprio usuário.
func (s *Service) MyRequests(ctx context.Context, actor Actor) ([]Request, error) {
	id := actor.ID
	return s.store.ListRequests(ctx, RequestFilter{SolicitanteID: &id})
}

// Get carrega uma requisição; requisições invisíveis ao usuário são tratadas como inexistentes.
func (s *Service) Get(ctx context.Context, actor Actor, numero int64) (*Request, error) {
	req, err := s.store.GetRequest(ctx, numero)
	if err != nil {
		return nil, err
	}
	if !CanView(actor, req) {
		return nil, ErrNotFound
	}
	return req, nil
}

// Transition muda o status seguindo as regras do Engine.
func (s *Service) Transition(ctx context.Context, actor Actor, numero int64, t Transition) (*Request, error) {
	return s.update(ctx, actor, numero, func(current *Request) (*Request, error) {
		return s.engine.ApplyTransition(current, t, actor)
	})
}

// Accept assume a requisição; o responsável só é definido se ainda não houver um.
func (s *Service) Accept(ctx context.Context, actor Actor, numero int64) (*Request, error) {
	return s.Transition(ctx, actor, numero, Transition{To: StatusAceita})
}

// StartMaintenance coloca a requisição em atendimento.
func (s *Service) StartMaintenance(ctx context.Context, actor Actor, numero int64) (*Request, error) {
	return s.Transition(ctx, actor, numero, Transition{To: StatusEmAtendimento})
}

// CompleteMaintenance registra a execução e conclui a requisição.
func (s *Service) CompleteMaintenance(ctx context.Context, actor Actor, numero int64, input CompleteInput) (*Request, error) {
	return s.update(ctx, actor, numero, func(current *Request) (*Request, error) {
		staged := current.Clone()
		staged.DescricaoManutencao = strings.TrimSpace(input.DescricaoManutencao)
		staged.MateriaisUtilizados = strings.TrimSpace(input.MateriaisUtilizados)
		return s.engine.ApplyTransition(staged, Transition{To: StatusConcluida}, actor)
	})
}

// Update aplica o PATCH: campos livres e, opcionalmente, mudança de status.
func (s *Service) Update(ctx context.Context, actor Actor, numero int64, input UpdateInput) (*Request, error) {
	return s.update(ctx, actor, numero, func(current *Request) (*Request, error) {
		staged := current.Clone()
		if input.MotivoCancelamento != nil {
			staged.MotivoCancelamento = strings.TrimSpace(*input.MotivoCancelamento)
		}
		if input.MotivoParada != nil {
			staged.MotivoParada = strings.TrimSpace(*input.MotivoParada)
		}
		if input.DataPrevistaTermino != nil {
			if input.DataPrevistaTermino.IsZero() {
				staged.DataPrevistaTermino = nil
			} else {
				d := *input.DataPrevistaTermino
				staged.DataPrevistaTermino = &d
			}
		}
		if input.DescricaoManutencao != nil {
			staged.DescricaoManutencao = strings.TrimSpace(*input.DescricaoManutencao)
		}
		if input.MateriaisUtilizados != nil {
			staged.MateriaisUtilizados = strings.TrimSpace(*input.MateriaisUtilizados)
		}

		if input.Status == nil {
			staged.DataAtualizacao = s.engine.now()
			return staged, nil
		}
		return s.engine.ApplyTransition(staged, Transition{To: *input.Status}, actor)
	})
}

// update concentra a checagem de perfil e os efeitos pós-gravação.
func (s *Service) update(ctx context.Context, actor Actor, numero int64, fn func(*Request) (*Request, error)) (*Request, error) {
	if !CanTransition(actor.Role) {
		return nil, ErrForbidden
	}

	var (
		previous Status
		entries  int
	)
	updated, err := s.store.UpdateRequest(ctx, numero, func(current *Request) (*Request, error) {
		if !CanView(actor, current) {
			return nil, ErrNotFound
		}
		previous = current.Status
		entries = len(current.Historico)
		return fn(current)
	})
	if err != nil {
		return nil, err
	}

	if len(updated.Historico) > entries {
		s.afterStatusChange(ctx, actor, updated, previous)
	}
	s.invalidateDashboard(ctx)
	return updated, nil
}

func (s *Service) afterStatusChange(ctx context.Context, actor Actor, req *Request, previous Status) {
	switch req.Status {
	case StatusAceita:
		s.notifyUser(ctx, req.Solicitante.ID, Notice{
			Titulo:   "Requisição Aceita",
			Mensagem: fmt.Sprintf("Sua requisição #%d foi aceita", req.Numero),
			Numero:   req.Numero,
		})
	case StatusConcluida:
		s.notifyUser(ctx, req.Solicitante.ID, Notice{
			Titulo:   "Manutenção Concluída",
			Mensagem: fmt.Sprintf("A manutenção da requisição #%d foi concluída", req.Numero),
			Numero:   req.Numero,
		})
	}
	s.publish(ctx, events.TypeStatusChanged, req, actor, previous)
}

// Delete remove a requisição quando permitido.
func (s *Service) Delete(ctx context.Context, actor Actor, numero int64) error {
	req, err := s.Get(ctx, actor, numero)
	if err != nil {
		return err
	}
	if !CanDelete(actor, req) {
		return ErrForbidden
	}
	if err := s.store.DeleteRequest(ctx, numero); err != nil {
		return err
	}
	if s.blobs != nil {
		for _, a := range req.Anexos {
			if err := s.blobs.Delete(ctx, a.Chave); err != nil {
				s.logger.Warn().Err(err).Str("chave", a.Chave).Msg("objeto órfão no storage")
			}
		}
	}
	s.invalidateDashboard(ctx)
	return nil
}

// Dashboard monta os contadores; os globais só aparecem para a equipe.
func (s *Service) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	id := actor.ID
	mine, err := s.store.CountRequests(ctx, &id)
	if err != nil {
		return nil, err
	}

	dash := &Dashboard{
		MyRequestsCount: mine.Total,
		MyOpenRequests:  mine.Open,
	}

	recentFilter := RequestFilter{Limit: recentLimit}
	if IsStaff(actor.Role) {
		global, err := s.globalCounters(ctx)
		if err != nil {
			return nil, err
		}
		dash.TotalRequests = &global.Total
		dash.OpenRequests = &global.Open
		dash.CompletedRequests = &global.Completed
	} else {
		recentFilter.SolicitanteID = &id
	}

	recent, err := s.store.ListRequests(ctx, recentFilter)
	if err != nil {
		return nil, err
	}
	dash.RecentRequests = Visible(actor, recent)
	return dash, nil
}

func (s *Service) globalCounters(ctx context.Context) (Counters, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, dashboardCacheKey).Bytes(); err == nil {
			var c Counters
			if json.Unmarshal(data, &c) == nil {
				return c, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("cache do dashboard indisponível")
		}
	}

	c, err := s.store.CountRequests(ctx, nil)
	if err != nil {
		return Counters{}, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(c); err == nil {
			if err := s.cache.Set(ctx, dashboardCacheKey, payload, dashboardCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("falha ao gravar cache do dashboard")
			}
		}
	}
	return c, nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("falha ao invalidar cache do dashboard")
	}
}

func (s *Service) notifyRole(ctx context.Context, role Role, notice Notice) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyRole(ctx, role, notice); err != nil {
		s.logger.Error().Err(err).Int64("requisicao", notice.Numero).Msg("falha ao notificar equipe")
	}
}

func (s *Service) notifyUser(ctx context.Context, userID int64, notice Notice) {
	if s.notifier == nil || userID == 0 {
		return
	}
	if err := s.notifier.NotifyUser(ctx, userID, notice); err != nil {
		s.logger.Error().Err(err).Int64("requisicao", notice.Numero).Msg("falha ao notificar solicitante")
	}
}

func (s *Service) publish(ctx context.Context, kind string, req *Request, actor Actor, previous Status) {
	ev := events.NewRequestEvent(kind, req.Numero, req.TituloCurto)
	ev.De = string(previous)
	ev.Para = string(req.Status)
	ev.Ator = actor.Username
	ev.Solicitante = req.Solicitante.Username
	ev.Prioridade = int(req.Prioridade)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("tipo", kind).Int64("requisicao", req.Numero).Msg("evento não publicado")
	}
}
