// Command worker consome os eventos de requisição e os encaminha ao Slack.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/manutencao/requisicoes/internal/alert"
	"github.com/manutencao/requisicoes/internal/events"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("worker encerrado com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	_ = godotenv.Load()

	amqpURL := flag.String("amqp-url", os.Getenv("AMQP_URL"), "URL do RabbitMQ")
	webhook := flag.String("slack-webhook", os.Getenv("SLACK_WEBHOOK_URL"), "incoming webhook do Slack (opcional)")
	flag.Parse()

	if *amqpURL == "" {
		return errors.New("AMQP_URL obrigatório")
	}

	slack := alert.NewSlackNotifier(*webhook)
	if slack == nil {
		log.Info().Msg("webhook do Slack não configurado; eventos apenas registrados em log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("fila", events.QueueName).Msg("worker iniciado")
	err := events.Consume(ctx, *amqpURL, func(ctx context.Context, ev events.RequestEvent) error {
		log.Info().
			Str("tipo", ev.Tipo).
			Int64("requisicao", ev.Numero).
			Str("de", ev.De).
			Str("para", ev.Para).
			Str("ator", ev.Ator).
			Msg("evento recebido")

		if slack == nil {
			return nil
		}
		if err := slack.Notify(ctx, alert.FromEvent(ev)); err != nil {
			return fmt.Errorf("slack: %w", err)
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("worker encerrado")
		return nil
	}
	return err
}
