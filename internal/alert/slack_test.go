package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/manutencao/requisicoes/internal/events"
)

func TestSlackNotifierPostsText(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	if err := n.Notify(context.Background(), Message{Title: "Teste", Text: "corpo", Severity: "critical"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["text"] != ":rotating_light: *Teste*\ncorpo" {
		t.Fatalf("unexpected payload %q", got["text"])
	}
}

func TestSlackNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if err := NewSlackNotifier(srv.URL).Notify(context.Background(), Message{Text: "x"}); err == nil {
		t.Fatalf("expected error on 403")
	}
}

func TestNilNotifier(t *testing.T) {
	n := NewSlackNotifier("")
	if n != nil {
		t.Fatalf("expected nil notifier for empty url")
	}
	if err := n.Notify(context.Background(), Message{}); err == nil {
		t.Fatalf("nil notifier must return error")
	}
}

func TestFromEvent(t *testing.T) {
	created := FromEvent(events.RequestEvent{Tipo: events.TypeRequestCreated, Numero: 7, Titulo: "Prensa", Solicitante: "joao.silva", Prioridade: 5})
	if created.Severity != "critical" || !strings.Contains(created.Title, "#7") || !strings.Contains(created.Text, "Crítica") {
		t.Fatalf("unexpected created message %+v", created)
	}

	changed := FromEvent(events.RequestEvent{Tipo: events.TypeStatusChanged, Numero: 7, De: "EM_ATENDIMENTO", Para: "PARADA", Ator: "carlos.manut"})
	if changed.Severity != "warning" || !strings.Contains(changed.Text, "carlos.manut") {
		t.Fatalf("unexpected status message %+v", changed)
	}
}
