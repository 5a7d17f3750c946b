package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/manutencao/requisicoes/internal/client"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/session"
)

// errLocalForbidden é devolvido quando o perfil da sessão não permite a ação,
// antes de qualquer chamada à API.
var errLocalForbidden = errors.New("seu perfil não permite esta ação")

func flagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flagSet("login")
	username := fs.StringP("username", "u", "", "usuário")
	passwordFile := fs.String("password-file", "", "lê a senha de um arquivo ('-' para stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("--username obrigatório")
	}

	password, err := readPassword(*passwordFile)
	if err != nil {
		return err
	}

	user, err := a.client.Login(ctx, *username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Bem-vindo, %s (%s)\n", user.DisplayName(), roleBadge(user.ProfileType))
	return nil
}

func readPassword(path string) (string, error) {
	switch path {
	case "":
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("sem terminal para digitar a senha (use --password-file)")
		}
		fmt.Fprint(os.Stderr, "Senha: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("ler senha: %w", err)
		}
		return string(raw), nil
	case "-":
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("ler senha: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	default:
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("ler senha: %w", err)
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Sessão encerrada.")
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	profile, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s %s (%s)\n", profile.FirstName, profile.LastName, profile.Username)
	fmt.Fprintf(a.out, "Perfil: %s\n", roleBadge(profile.ProfileType))
	if profile.Setor != "" {
		fmt.Fprintf(a.out, "Setor:  %s\n", profile.Setor)
	}
	if profile.Email != "" {
		fmt.Fprintf(a.out, "Email:  %s\n", profile.Email)
	}
	return nil
}

func runDashboard(ctx context.Context, a *app, args []string) error {
	user, err := a.client.Session().Require()
	if err != nil {
		return err
	}
	dash, err := a.client.Dashboard(ctx)
	if err != nil {
		return err
	}
	renderDashboard(a.out, user, dash)
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := flagSet("list")
	status := fs.String("status", "all", "filtro de status (all, ABERTA, EM_ATENDIMENTO, ...)")
	mine := fs.Bool("mine", false, "somente as minhas requisições")
	watch := fs.Duration("watch", 0, "atualiza a lista a cada intervalo")
	if err := fs.Parse(args); err != nil {
		return err
	}

	filter, err := maintenance.ParseStatusFilter(*status)
	if err != nil {
		return err
	}
	if _, err := a.client.Session().Require(); err != nil {
		return err
	}

	fetch := func(ctx context.Context) ([]maintenance.Request, error) {
		if *mine {
			reqs, err := a.client.MyRequests(ctx)
			if err != nil {
				return nil, err
			}
			return maintenance.FilterByStatus(reqs, filter), nil
		}
		return a.client.ListRequests(ctx, filter)
	}

	if *watch <= 0 {
		reqs, err := fetch(ctx)
		if err != nil {
			return err
		}
		renderList(a.out, reqs)
		return nil
	}
	return watchList(ctx, a, *watch, fetch)
}

// watchList redesenha a lista periodicamente. Cada ciclo é uma tela própria:
// ao começar o próximo, a resposta atrasada do anterior é descartada.
func watchList(ctx context.Context, a *app, every time.Duration, fetch func(context.Context) ([]maintenance.Request, error)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var scope *session.Scope
	lastErr := make(chan error, 1)
	refresh := func() {
		if scope != nil {
			scope.Close()
		}
		scope = session.NewScope(ctx)
		session.Run(scope, fetch, func(reqs []maintenance.Request, err error) {
			if err != nil {
				select {
				case lastErr <- err:
				default:
				}
				return
			}
			fmt.Fprint(a.out, "\033[H\033[2J")
			fmt.Fprintf(a.out, "Atualizado em %s\n\n", time.Now().Format("15:04:05"))
			renderList(a.out, reqs)
		})
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			scope.Close()
			return nil
		case err := <-lastErr:
			scope.Close()
			return err
		case <-ticker.C:
			refresh()
		}
	}
}

func runShow(ctx context.Context, a *app, args []string) error {
	numero, err := requestArg(args)
	if err != nil {
		return err
	}
	req, err := a.client.GetRequest(ctx, numero)
	if err != nil {
		return err
	}
	renderDetail(a.out, req)
	return nil
}

func runCreate(ctx context.Context, a *app, args []string) error {
	fs := flagSet("create")
	title := fs.String("title", "", "título curto (até 200 caracteres)")
	description := fs.String("description", "", "descrição do problema")
	sector := fs.String("sector", "", "setor solicitante")
	kind := fs.String("type", string(maintenance.TypeMecanica), "ELETRICA, MECANICA ou OUTROS")
	operational := fs.String("operational", string(maintenance.OperationalFuncionando), "FUNCIONANDO, PARCIAL ou INOPERANTE")
	equipment := fs.StringSlice("equipment", nil, "equipamentos impactados (PRENSA,ROSQUEADEIRA,RECORTADOR,FRESA,OUTROS)")
	other := fs.String("other", "", "outros equipamentos")
	priority := fs.Int("priority", int(maintenance.PriorityMin), "prioridade de 1 a 5")
	due := fs.String("due", "", "prazo limite AAAA-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := maintenance.CreateInput{
		SetorSolicitante:   *sector,
		TipoManutencao:     maintenance.MaintenanceType(*kind),
		StatusOperacional:  maintenance.OperationalStatus(*operational),
		OutrosEquipamentos: *other,
		TituloCurto:        *title,
		DescricaoProblema:  *description,
		Prioridade:         maintenance.Priority(*priority),
	}
	if *due != "" {
		date, err := maintenance.ParseDate(*due)
		if err != nil {
			return fmt.Errorf("--due inválido: %w", err)
		}
		input.PrazoLimite = date
	}
	for _, e := range *equipment {
		input.EquipamentosImpactados = append(input.EquipamentosImpactados, maintenance.Equipment(e))
	}

	input.Normalize()
	if err := input.Validate(); err != nil {
		return err
	}

	req, err := a.client.CreateRequest(ctx, input)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requisição #%d criada %s\n", req.Numero, statusBadge(req.Status))
	return nil
}

func runStatus(ctx context.Context, a *app, args []string) error {
	fs := flagSet("status")
	reason := fs.String("reason", "", "motivo (para PARADA ou CANCELADA)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("uso: mrs status ID STATUS [--reason TEXTO]")
	}
	if err := requireTransition(a); err != nil {
		return err
	}

	numero, err := requestArg(fs.Args()[:1])
	if err != nil {
		return err
	}
	target, err := maintenance.ParseStatus(fs.Arg(1))
	if err != nil {
		return err
	}

	input := maintenance.UpdateInput{Status: &target}
	if r := strings.TrimSpace(*reason); r != "" {
		switch target {
		case maintenance.StatusCancelada:
			input.MotivoCancelamento = &r
		case maintenance.StatusParada:
			input.MotivoParada = &r
		}
	}

	req, err := a.client.UpdateRequest(ctx, numero, input)
	var verr *client.ValidationError
	if errors.As(err, &verr) && verr.Field == "status" {
		if current, gerr := a.client.GetRequest(ctx, numero); gerr == nil {
			renderSuccessors(a.out, current.Status)
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requisição #%d agora está %s\n", req.Numero, statusBadge(req.Status))
	return nil
}

func runProfiles(ctx context.Context, a *app, args []string) error {
	profiles, err := a.client.Profiles(ctx)
	if err != nil {
		return err
	}
	renderProfiles(a.out, profiles)
	return nil
}

func runAccept(ctx context.Context, a *app, args []string) error {
	return transitionCommand(ctx, a, args, a.client.Accept)
}

func runStart(ctx context.Context, a *app, args []string) error {
	return transitionCommand(ctx, a, args, a.client.StartMaintenance)
}

func transitionCommand(ctx context.Context, a *app, args []string, call func(context.Context, int64) (*maintenance.Request, error)) error {
	if err := requireTransition(a); err != nil {
		return err
	}
	numero, err := requestArg(args)
	if err != nil {
		return err
	}
	req, err := call(ctx, numero)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requisição #%d agora está %s\n", req.Numero, statusBadge(req.Status))
	return nil
}

func runComplete(ctx context.Context, a *app, args []string) error {
	fs := flagSet("complete")
	description := fs.String("description", "", "descrição da manutenção realizada")
	materials := fs.String("materials", "", "materiais utilizados")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireTransition(a); err != nil {
		return err
	}
	numero, err := requestArg(fs.Args())
	if err != nil {
		return err
	}
	if strings.TrimSpace(*description) == "" {
		return &maintenance.ValidationError{Field: "descricao_manutencao", Message: "descrição da manutenção obrigatória"}
	}

	req, err := a.client.CompleteMaintenance(ctx, numero, maintenance.CompleteInput{
		DescricaoManutencao: *description,
		MateriaisUtilizados: *materials,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requisição #%d concluída %s\n", req.Numero, statusBadge(req.Status))
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	user, err := a.client.Session().Require()
	if err != nil {
		return err
	}
	numero, err := requestArg(args)
	if err != nil {
		return err
	}
	req, err := a.client.GetRequest(ctx, numero)
	if err != nil {
		return err
	}
	if !maintenance.CanDelete(user.Actor(), req) {
		return errLocalForbidden
	}
	if err := a.client.DeleteRequest(ctx, numero); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Requisição #%d removida.\n", numero)
	return nil
}

func runNotifications(ctx context.Context, a *app, args []string) error {
	fs := flagSet("notifications")
	read := fs.Int64("read", 0, "marca a notificação como lida")
	readAll := fs.Bool("read-all", false, "marca todas como lidas")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *readAll:
		n, err := a.client.MarkAllNotificationsAsRead(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%d notificações marcadas como lidas.\n", n)
		return nil
	case *read > 0:
		if _, err := a.client.MarkNotificationAsRead(ctx, *read); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Notificação %d marcada como lida.\n", *read)
		return nil
	}

	items, err := a.client.Notifications(ctx)
	if err != nil {
		return err
	}
	renderNotifications(a.out, items)
	return nil
}

func runAttach(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("uso: mrs attach ID ARQUIVO")
	}
	numero, err := requestArg(args[:1])
	if err != nil {
		return err
	}
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	att, err := a.client.UploadAttachment(ctx, numero, args[1], f)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Anexo %d (%s) adicionado à requisição #%d.\n", att.ID, att.NomeOriginal, numero)
	return nil
}

func runAttachments(ctx context.Context, a *app, args []string) error {
	fs := flagSet("attachments")
	get := fs.Int64("get", 0, "baixa o anexo com este id")
	output := fs.String("out", "", "arquivo de destino para --get (padrão: nome original)")
	remove := fs.Int64("delete", 0, "remove o anexo com este id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	numero, err := requestArg(fs.Args())
	if err != nil {
		return err
	}

	switch {
	case *get > 0:
		d, err := a.client.DownloadAttachment(ctx, numero, *get)
		if err != nil {
			return err
		}
		path := *output
		if path == "" {
			path = d.Nome
		}
		if err := os.WriteFile(path, d.Data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Anexo salvo em %s (%s).\n", path, humanSize(int64(len(d.Data))))
		return nil
	case *remove > 0:
		if err := a.client.DeleteAttachment(ctx, numero, *remove); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Anexo %d removido.\n", *remove)
		return nil
	}

	items, err := a.client.Attachments(ctx, numero)
	if err != nil {
		return err
	}
	renderAttachments(a.out, items)
	return nil
}

// requireTransition aplica localmente a mesma regra de perfil da API.
func requireTransition(a *app) error {
	user, err := a.client.Session().Require()
	if err != nil {
		return err
	}
	if !maintenance.CanTransition(user.ProfileType) {
		return fmt.Errorf("%w: perfil %s não altera status", errLocalForbidden, user.ProfileType.Label())
	}
	return nil
}

func requestArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("informe o número da requisição")
	}
	numero, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || numero <= 0 {
		return 0, fmt.Errorf("número de requisição inválido: %s", args[0])
	}
	return numero, nil
}
