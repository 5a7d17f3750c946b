// Command seed cria usuários e requisições de exemplo a partir de um
// arquivo YAML. Com --hash apenas imprime o hash argon2id de uma senha.
package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/manutencao/requisicoes/internal/auth"
	"github.com/manutencao/requisicoes/internal/db"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/repo"
)

//go:embed fixture.yaml
var defaultFixture []byte

type fixture struct {
	SenhaPadrao string           `yaml:"senha_padrao"`
	Usuarios    []fixtureUser    `yaml:"usuarios"`
	Requisicoes []fixtureRequest `yaml:"requisicoes"`
}

type fixtureUser struct {
	Username    string `yaml:"username"`
	Senha       string `yaml:"senha"`
	FirstName   string `yaml:"first_name"`
	LastName    string `yaml:"last_name"`
	Email       string `yaml:"email"`
	ProfileType string `yaml:"profile_type"`
	Setor       string `yaml:"setor"`
	Telefone    string `yaml:"telefone"`
}

type fixtureRequest struct {
	TituloCurto         string   `yaml:"titulo_curto"`
	DescricaoProblema   string   `yaml:"descricao_problema"`
	Solicitante         string   `yaml:"solicitante"`
	SetorSolicitante    string   `yaml:"setor_solicitante"`
	TipoManutencao      string   `yaml:"tipo_manutencao"`
	StatusOperacional   string   `yaml:"status_operacional"`
	Equipamentos        []string `yaml:"equipamentos"`
	OutrosEquipamentos  string   `yaml:"outros_equipamentos"`
	Prioridade          int      `yaml:"prioridade"`
	PrazoLimite         string   `yaml:"prazo_limite"`
	Status              string   `yaml:"status"`
	Responsavel         string   `yaml:"responsavel"`
	DescricaoManutencao string   `yaml:"descricao_manutencao"`
	MateriaisUtilizados string   `yaml:"materiais_utilizados"`
	Motivo              string   `yaml:"motivo"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("seed falhou")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	_ = godotenv.Load()

	dsn := flag.String("dsn", os.Getenv("DB_DSN"), "DSN do Postgres")
	file := flag.String("file", "", "fixture YAML (padrão: embutida)")
	hash := flag.String("hash", "", "imprime o hash argon2id da senha e sai")
	migrateFirst := flag.Bool("migrate", true, "aplica as migrations antes do seed")
	flag.Parse()

	if *hash != "" {
		out, err := auth.Hash(*hash)
		if err != nil {
			return fmt.Errorf("hash: %w", err)
		}
		fmt.Println(out)
		return nil
	}

	if *dsn == "" {
		return errors.New("DB_DSN obrigatório")
	}

	data := defaultFixture
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("ler fixture: %w", err)
		}
		data = raw
	}
	fx, err := parseFixture(data)
	if err != nil {
		return err
	}

	if *migrateFirst {
		if err := db.Migrate(*dsn); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, *dsn)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	actors, err := seedUsers(ctx, repo.New(pool), fx)
	if err != nil {
		return err
	}

	store := maintenance.NewRepository(pool)
	counters, err := store.CountRequests(ctx, nil)
	if err != nil {
		return fmt.Errorf("contar requisições: %w", err)
	}
	if counters.Total > 0 {
		log.Info().Int("existentes", counters.Total).Msg("requisições já existem; seed de requisições ignorado")
		return nil
	}

	svc := maintenance.NewService(store, maintenance.NewEngine(false), notification.NewService(notification.NewRepository(pool)), nil, nil)
	for _, fr := range fx.Requisicoes {
		if err := seedRequest(ctx, svc, actors, fr); err != nil {
			return fmt.Errorf("requisição %q: %w", fr.TituloCurto, err)
		}
	}
	log.Info().Int("usuarios", len(actors)).Int("requisicoes", len(fx.Requisicoes)).Msg("seed concluído")
	return nil
}

func parseFixture(data []byte) (*fixture, error) {
	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("fixture inválida: %w", err)
	}
	for _, u := range fx.Usuarios {
		if _, err := maintenance.ParseRole(u.ProfileType); err != nil {
			return nil, fmt.Errorf("usuário %s: %w", u.Username, err)
		}
		if u.Senha == "" && fx.SenhaPadrao == "" {
			return nil, fmt.Errorf("usuário %s sem senha", u.Username)
		}
	}
	return &fx, nil
}

func seedUsers(ctx context.Context, q *repo.Queries, fx *fixture) (map[string]maintenance.Actor, error) {
	actors := make(map[string]maintenance.Actor, len(fx.Usuarios))
	for _, u := range fx.Usuarios {
		password := u.Senha
		if password == "" {
			password = fx.SenhaPadrao
		}
		hash, err := auth.Hash(password)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", u.Username, err)
		}
		role, _ := maintenance.ParseRole(u.ProfileType)

		saved, err := q.UpsertUsuario(ctx, repo.UpsertUsuarioParams{
			Username:    strings.ToLower(strings.TrimSpace(u.Username)),
			FirstName:   u.FirstName,
			LastName:    u.LastName,
			Email:       u.Email,
			SenhaHash:   hash,
			ProfileType: string(role),
			Setor:       u.Setor,
			Telefone:    u.Telefone,
		})
		if err != nil {
			return nil, fmt.Errorf("gravar usuário %s: %w", u.Username, err)
		}
		actors[saved.Username] = maintenance.Actor{
			UserRef: maintenance.UserRef{ID: saved.ID, Username: saved.Username, FirstName: saved.FirstName, LastName: saved.LastName, Email: saved.Email},
			Role:    role,
		}
		log.Info().Str("username", saved.Username).Str("perfil", string(role)).Msg("usuário gravado")
	}
	return actors, nil
}

// seedRequest cria a requisição e a leva até o status desejado pelos mesmos
// passos da aplicação, para que histórico e horários fiquem coerentes.
func seedRequest(ctx context.Context, svc *maintenance.Service, actors map[string]maintenance.Actor, fr fixtureRequest) error {
	requester, ok := actors[fr.Solicitante]
	if !ok {
		return fmt.Errorf("solicitante desconhecido: %s", fr.Solicitante)
	}
	due, err := maintenance.ParseDate(fr.PrazoLimite)
	if err != nil {
		return fmt.Errorf("prazo_limite: %w", err)
	}
	target := maintenance.StatusAberta
	if fr.Status != "" {
		if target, err = maintenance.ParseStatus(fr.Status); err != nil {
			return err
		}
	}

	equipment := make([]maintenance.Equipment, 0, len(fr.Equipamentos))
	for _, e := range fr.Equipamentos {
		equipment = append(equipment, maintenance.Equipment(e))
	}

	req, err := svc.Create(ctx, requester, maintenance.CreateInput{
		PrazoLimite:            due,
		SetorSolicitante:       fr.SetorSolicitante,
		TipoManutencao:         maintenance.MaintenanceType(fr.TipoManutencao),
		StatusOperacional:      maintenance.OperationalStatus(fr.StatusOperacional),
		EquipamentosImpactados: equipment,
		OutrosEquipamentos:     fr.OutrosEquipamentos,
		TituloCurto:            fr.TituloCurto,
		DescricaoProblema:      fr.DescricaoProblema,
		Prioridade:             maintenance.Priority(fr.Prioridade),
	})
	if err != nil {
		return err
	}
	if target == maintenance.StatusAberta {
		return nil
	}

	tech, ok := actors[fr.Responsavel]
	if !ok {
		return fmt.Errorf("responsável desconhecido: %q", fr.Responsavel)
	}
	for _, step := range path(target) {
		switch step {
		case maintenance.StatusConcluida:
			_, err = svc.CompleteMaintenance(ctx, tech, req.Numero, maintenance.CompleteInput{
				DescricaoManutencao: fr.DescricaoManutencao,
				MateriaisUtilizados: fr.MateriaisUtilizados,
			})
		default:
			_, err = svc.Transition(ctx, tech, req.Numero, maintenance.Transition{To: step, Reason: fr.Motivo})
		}
		if err != nil {
			return fmt.Errorf("%s: %w", step, err)
		}
	}
	return nil
}

// path devolve os passos a partir de ABERTA até target.
func path(target maintenance.Status) []maintenance.Status {
	switch target {
	case maintenance.StatusVisualizada:
		return []maintenance.Status{maintenance.StatusVisualizada}
	case maintenance.StatusAceita:
		return []maintenance.Status{maintenance.StatusAceita}
	case maintenance.StatusEmAtendimento:
		return []maintenance.Status{maintenance.StatusAceita, maintenance.StatusEmAtendimento}
	case maintenance.StatusParada:
		return []maintenance.Status{maintenance.StatusAceita, maintenance.StatusEmAtendimento, maintenance.StatusParada}
	case maintenance.StatusConcluida:
		return []maintenance.Status{maintenance.StatusAceita, maintenance.StatusEmAtendimento, maintenance.StatusConcluida}
	case maintenance.StatusCancelada:
		return []maintenance.Status{maintenance.StatusCancelada}
	}
	return nil
}
