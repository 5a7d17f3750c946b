package maintenance

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func fixedEngine(strict bool) *Engine {
	return &Engine{Strict: strict, Now: func() time.Time { return fixedNow }}
}

func actor(id int64, username string, role Role) Actor {
	return Actor{UserRef: UserRef{ID: id, Username: username}, Role: role}
}

func sampleRequest(status Status) *Request {
	created := fixedNow.Add(-48 * time.Hour)
	return &Request{
		Numero:                 1,
		DataCriacao:            created,
		DataAtualizacao:        created,
		Solicitante:            UserRef{ID: 10, Username: "joao.silva", FirstName: "João", LastName: "Silva"},
		SetorSolicitante:       "Produção",
		TipoManutencao:         TypeMecanica,
		StatusOperacional:      OperationalParcial,
		EquipamentosImpactados: []Equipment{EquipmentPrensa},
		TituloCurto:            "Vazamento na prensa",
		DescricaoProblema:      "Óleo escorrendo pela base",
		Prioridade:             4,
		Status:                 status,
		Historico: []HistoryEntry{{
			ID:        1,
			Usuario:   UserRef{ID: 10, Username: "joao.silva"},
			Acao:      ActionCreated,
			Descricao: "Requisição criada",
			DataAcao:  created,
		}},
	}
}

func TestApplyTransitionRejectsRolesWithoutPermission(t *testing.T) {
	engine := fixedEngine(false)
	for _, role := range []Role{RoleComum, RoleGestor, Role("VISITANTE")} {
		for _, target := range append(append([]Status{}, Statuses...), Status("ARQUIVADA"), Status("")) {
			t.Run(string(role)+"->"+string(target), func(t *testing.T) {
				req := sampleRequest(StatusAberta)
				req.DescricaoManutencao = "feito"
				before := req.Clone()

				updated, err := engine.ApplyTransition(req, Transition{To: target}, actor(20, "ana", role))
				if !errors.Is(err, ErrForbidden) {
					t.Fatalf("expected ErrForbidden, got %v", err)
				}
				if updated != nil {
					t.Fatalf("expected nil result on failure")
				}
				if !reflect.DeepEqual(req, before) {
					t.Fatalf("request mutated on forbidden transition")
				}
			})
		}
	}
}

func TestApplyTransitionAppendsExactlyOneEntry(t *testing.T) {
	engine := fixedEngine(false)
	staff := actor(30, "carlos.manut", RoleManutencao)

	for _, target := range []Status{StatusVisualizada, StatusAceita, StatusEmAtendimento, StatusParada, StatusCancelada, StatusAberta} {
		t.Run(string(target), func(t *testing.T) {
			req := sampleRequest(StatusAberta)
			updated, err := engine.ApplyTransition(req, Transition{To: target}, staff)
			if err != nil {
				t.Fatalf("transition failed: %v", err)
			}
			if updated.Status != target {
				t.Fatalf("expected status %s, got %s", target, updated.Status)
			}
			if len(updated.Historico) != len(req.Historico)+1 {
				t.Fatalf("expected history to grow by one, got %d -> %d", len(req.Historico), len(updated.Historico))
			}
			last := updated.Historico[len(updated.Historico)-1]
			if last.Acao != ActionStatusChanged || last.Usuario.ID != staff.ID || !last.DataAcao.Equal(fixedNow) {
				t.Fatalf("unexpected history entry: %+v", last)
			}
			if want := "Status alterado de ABERTA para " + string(target); last.Descricao != want {
				t.Fatalf("expected description %q, got %q", want, last.Descricao)
			}
			if req.Status != StatusAberta || len(req.Historico) != 1 {
				t.Fatalf("source request must not change")
			}
		})
	}
}

func TestApplyTransitionRejectsUnknownStatus(t *testing.T) {
	req := sampleRequest(StatusAberta)
	_, err := fixedEngine(false).ApplyTransition(req, Transition{To: Status("ARQUIVADA")}, actor(1, "ti", RoleTI))

	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected validation error for invalid status, got %v", err)
	}
	if len(req.Historico) != 1 {
		t.Fatalf("history must not grow on failure")
	}
}

func TestCompleteRequiresDescription(t *testing.T) {
	engine := fixedEngine(false)
	staff := actor(30, "carlos.manut", RoleManutencao)

	req := sampleRequest(StatusEmAtendimento)
	req.DescricaoManutencao = "   "
	_, err := engine.ApplyTransition(req, Transition{To: StatusConcluida}, staff)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "descricao_manutencao" {
		t.Fatalf("expected field descricao_manutencao, got %s", verr.Field)
	}
	if req.HoraTermino != nil || req.Status != StatusEmAtendimento || len(req.Historico) != 1 {
		t.Fatalf("request changed after failed completion")
	}

	req.DescricaoManutencao = "Troca da vedação do cilindro"
	done, err := engine.ApplyTransition(req, Transition{To: StatusConcluida}, staff)
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if done.Status != StatusConcluida {
		t.Fatalf("expected CONCLUIDA, got %s", done.Status)
	}
	if done.HoraTermino == nil || !done.HoraTermino.Equal(fixedNow) {
		t.Fatalf("expected hora_termino = %v, got %v", fixedNow, done.HoraTermino)
	}
	if len(done.Historico) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(done.Historico))
	}
}

func TestAcceptAssignsResponsibleOnce(t *testing.T) {
	engine := fixedEngine(false)
	first := actor(30, "carlos.manut", RoleManutencao)
	second := actor(31, "pedro.ti", RoleTI)

	req := sampleRequest(StatusAberta)
	accepted, err := engine.ApplyTransition(req, Transition{To: StatusAceita}, first)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if accepted.Responsavel == nil || accepted.Responsavel.ID != first.ID {
		t.Fatalf("expected responsible %d, got %+v", first.ID, accepted.Responsavel)
	}

	again, err := engine.ApplyTransition(accepted, Transition{To: StatusAceita}, second)
	if err != nil {
		t.Fatalf("second accept failed: %v", err)
	}
	if again.Responsavel.ID != first.ID {
		t.Fatalf("responsible must stay %d, got %d", first.ID, again.Responsavel.ID)
	}
	if len(again.Historico) != len(accepted.Historico)+1 {
		t.Fatalf("same-status transition should still be recorded")
	}
}

func TestStartSetsStartTimeOnce(t *testing.T) {
	engine := fixedEngine(false)
	staff := actor(30, "carlos.manut", RoleManutencao)

	req := sampleRequest(StatusAceita)
	earlier := fixedNow.Add(-time.Hour)
	req.HoraInicio = &earlier

	started, err := engine.ApplyTransition(req, Transition{To: StatusEmAtendimento}, staff)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !started.HoraInicio.Equal(earlier) {
		t.Fatalf("hora_inicio overwritten: %v", started.HoraInicio)
	}

	fresh, err := engine.ApplyTransition(sampleRequest(StatusAceita), Transition{To: StatusEmAtendimento}, staff)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if fresh.HoraInicio == nil || !fresh.HoraInicio.Equal(fixedNow) {
		t.Fatalf("expected hora_inicio = now, got %v", fresh.HoraInicio)
	}
}

func TestTransitionReasonStored(t *testing.T) {
	engine := fixedEngine(false)
	staff := actor(30, "carlos.manut", RoleManutencao)

	stopped, err := engine.ApplyTransition(sampleRequest(StatusEmAtendimento), Transition{To: StatusParada, Reason: " aguardando peça "}, staff)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if stopped.MotivoParada != "aguardando peça" {
		t.Fatalf("unexpected motivo_parada %q", stopped.MotivoParada)
	}

	cancelled, err := engine.ApplyTransition(stopped, Transition{To: StatusCancelada, Reason: "equipamento substituído"}, staff)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.MotivoCancelamento != "equipamento substituído" {
		t.Fatalf("unexpected motivo_cancelamento %q", cancelled.MotivoCancelamento)
	}
}

func TestUnconstrainedModeAllowsAnyJump(t *testing.T) {
	engine := fixedEngine(false)
	staff := actor(1, "ti", RoleTI)

	req := sampleRequest(StatusConcluida)
	reopened, err := engine.ApplyTransition(req, Transition{To: StatusAberta}, staff)
	if err != nil {
		t.Fatalf("unconstrained jump rejected: %v", err)
	}
	if reopened.Status != StatusAberta {
		t.Fatalf("expected ABERTA, got %s", reopened.Status)
	}
}

func TestStrictModeEnforcesSuccessors(t *testing.T) {
	engine := fixedEngine(true)
	staff := actor(30, "carlos.manut", RoleManutencao)

	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusAberta, StatusAceita, true},
		{StatusAberta, StatusConcluida, false},
		{StatusAceita, StatusEmAtendimento, true},
		{StatusEmAtendimento, StatusParada, true},
		{StatusParada, StatusEmAtendimento, true},
		{StatusConcluida, StatusAberta, false},
		{StatusCancelada, StatusAberta, false},
		{StatusVisualizada, StatusCancelada, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			req := sampleRequest(tc.from)
			_, err := engine.ApplyTransition(req, Transition{To: tc.to}, staff)
			if tc.ok && err != nil {
				t.Fatalf("expected transition allowed, got %v", err)
			}
			if !tc.ok {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
			}
		})
	}

	for _, terminal := range []Status{StatusConcluida, StatusCancelada} {
		if len(Successors(terminal)) != 0 {
			t.Fatalf("terminal %s must have no successors", terminal)
		}
	}
}
