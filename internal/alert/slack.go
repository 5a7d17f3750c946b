// Package alert encaminha eventos de requisição para canais externos.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/manutencao/requisicoes/internal/events"
	"github.com/manutencao/requisicoes/internal/maintenance"
)

// Notifier envia alertas para canais externos.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

type Message struct {
	Title    string
	Text     string
	Severity string
}

type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

func NewSlackNotifier(webhookURL string) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	if s == nil || s.webhookURL == "" {
		return errors.New("slack notifier não configurado")
	}

	body, err := json.Marshal(map[string]any{"text": formatSlackMessage(msg)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack: status %d", resp.StatusCode)
	}
	return nil
}

// FromEvent monta o alerta de um evento do ciclo de vida.
func FromEvent(ev events.RequestEvent) Message {
	msg := Message{Severity: severity(ev)}
	switch ev.Tipo {
	case events.TypeRequestCreated:
		msg.Title = fmt.Sprintf("Nova requisição #%d", ev.Numero)
		msg.Text = fmt.Sprintf("%s\nSolicitante: %s | Prioridade: %s", ev.Titulo, ev.Solicitante, maintenance.Priority(ev.Prioridade).Label())
	case events.TypeStatusChanged:
		msg.Title = fmt.Sprintf("Requisição #%d: %s", ev.Numero, statusLabel(ev.Para))
		msg.Text = fmt.Sprintf("%s\n%s → %s por %s", ev.Titulo, statusLabel(ev.De), statusLabel(ev.Para), ev.Ator)
	default:
		msg.Title = fmt.Sprintf("Requisição #%d", ev.Numero)
		msg.Text = ev.Titulo
	}
	return msg
}

func severity(ev events.RequestEvent) string {
	switch {
	case ev.Tipo == events.TypeRequestCreated && ev.Prioridade >= 5:
		return "critical"
	case ev.Tipo == events.TypeRequestCreated && ev.Prioridade == 4:
		return "warning"
	case ev.Para == string(maintenance.StatusParada):
		return "warning"
	}
	return "info"
}

func statusLabel(raw string) string {
	s := maintenance.Status(raw)
	if !s.Valid() {
		return raw
	}
	return s.Label()
}

func formatSlackMessage(msg Message) string {
	emoji := ":information_source:"
	switch msg.Severity {
	case "warning":
		emoji = ":warning:"
	case "critical":
		emoji = ":rotating_light:"
	}
	if msg.Title != "" {
		return emoji + " *" + msg.Title + "*\n" + msg.Text
	}
	return emoji + " " + msg.Text
}
