// Command mrs é o cliente de terminal das requisições de manutenção.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/manutencao/requisicoes/internal/client"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/session"
)

type app struct {
	client *client.Client
	out    io.Writer
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":         {"autentica e grava a sessão local", runLogin},
	"logout":        {"encerra a sessão", runLogout},
	"whoami":        {"mostra o usuário autenticado", runWhoami},
	"dashboard":     {"contadores e requisições recentes", runDashboard},
	"list":          {"lista requisições visíveis", runList},
	"show":          {"detalhe de uma requisição com histórico", runShow},
	"create":        {"abre nova requisição", runCreate},
	"status":        {"altera o status de uma requisição", runStatus},
	"accept":        {"assume a requisição", runAccept},
	"start":         {"inicia o atendimento", runStart},
	"complete":      {"conclui a manutenção", runComplete},
	"delete":        {"remove uma requisição", runDelete},
	"attach":        {"anexa um arquivo à requisição", runAttach},
	"attachments":   {"lista, baixa ou remove anexos", runAttachments},
	"notifications": {"lista ou marca notificações", runNotifications},
	"profiles":      {"lista perfis de usuário visíveis", runProfiles},
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	global := pflag.NewFlagSet("mrs", pflag.ContinueOnError)
	global.SetInterspersed(false)
	apiURL := global.String("api", envOr("MRS_API_URL", client.DefaultBaseURL), "URL base da API")
	sessionFile := global.String("session-file", "", "arquivo de sessão (padrão: $XDG_CONFIG_HOME/requisicoes/session.json)")
	global.Usage = func() { usage(out, global) }
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(out, global)
		return nil
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("comando desconhecido: %s", rest[0])
	}

	holder, err := session.NewHolder(session.NewFileStore(*sessionFile))
	if err != nil {
		return err
	}
	c, err := client.New(client.Config{BaseURL: *apiURL, Session: holder})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cmd.run(ctx, &app{client: c, out: out}, rest[1:])
}

func usage(out io.Writer, global *pflag.FlagSet) {
	fmt.Fprintln(out, "uso: mrs [--api URL] [--session-file PATH] <comando> [flags]")
	fmt.Fprintln(out)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, global.FlagUsages())
}

// describeError traduz erros do cliente em mensagens para o terminal.
func describeError(err error) string {
	var (
		verr   *client.ValidationError
		domain *maintenance.ValidationError
	)
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		return "Você não está autenticado. Execute: mrs login -u <usuario>"
	case errors.Is(err, client.ErrUnauthorized):
		return "Sessão expirada. Execute mrs login novamente."
	case errors.As(err, &verr):
		return "Dados inválidos: " + verr.Error()
	case errors.As(err, &domain):
		return "Dados inválidos: " + domain.Message + " (" + domain.Field + ")"
	case errors.Is(err, client.ErrForbidden), errors.Is(err, errLocalForbidden):
		return "Acesso negado: " + err.Error()
	case errors.Is(err, client.ErrNotFound):
		return "Requisição não encontrada."
	case errors.Is(err, client.ErrNetwork):
		return "Erro de rede. Verifique a conexão e tente novamente."
	case errors.Is(err, pflag.ErrHelp):
		return ""
	}
	return "Erro: " + err.Error()
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
