package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/manutencao/requisicoes/internal/config"
	api "github.com/manutencao/requisicoes/internal/http"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/service"
	"github.com/manutencao/requisicoes/internal/session"
	"github.com/manutencao/requisicoes/internal/storage"
)

type fakeAuth struct {
	profiles map[string]service.Profile
	revoked  map[string]bool
}

func (f *fakeAuth) Authenticate(ctx context.Context, token string) (maintenance.Actor, error) {
	for username, p := range f.profiles {
		if token == "tok-"+username && !f.revoked[token] {
			return p.Actor(), nil
		}
	}
	return maintenance.Actor{}, service.ErrUnauthorized
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (*service.LoginResult, error) {
	p, ok := f.profiles[username]
	if !ok || password != "senha" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.LoginResult{Token: "tok-" + username, User: p}, nil
}

func (f *fakeAuth) Logout(ctx context.Context, token string) error {
	f.revoked[token] = true
	return nil
}

func (f *fakeAuth) Me(ctx context.Context, actor maintenance.Actor) (service.Profile, error) {
	return f.profiles[actor.Username], nil
}

func (f *fakeAuth) ListProfiles(ctx context.Context, actor maintenance.Actor) ([]service.Profile, error) {
	return []service.Profile{f.profiles[actor.Username]}, nil
}

type noNotifications struct{}

func (noNotifications) List(ctx context.Context, actor maintenance.Actor) ([]notification.Notification, error) {
	return []notification.Notification{}, nil
}

func (noNotifications) MarkAsRead(ctx context.Context, actor maintenance.Actor, id int64) (notification.Notification, error) {
	return notification.Notification{}, notification.ErrNotFound
}

func (noNotifications) MarkAllAsRead(ctx context.Context, actor maintenance.Actor) (int64, error) {
	return 0, nil
}

type fixture struct {
	server *httptest.Server
	auth   *fakeAuth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	auth := &fakeAuth{
		profiles: map[string]service.Profile{
			"joao.silva":   {ID: 10, Username: "joao.silva", FirstName: "João", ProfileType: maintenance.RoleComum},
			"carlos.manut": {ID: 30, Username: "carlos.manut", FirstName: "Carlos", ProfileType: maintenance.RoleManutencao},
			"ana.gestora":  {ID: 40, Username: "ana.gestora", FirstName: "Ana", ProfileType: maintenance.RoleGestor},
		},
		revoked: make(map[string]bool),
	}
	cfg := &config.Config{
		RateLimitPublic: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		RateLimitAuth:   config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
	store := maintenance.NewMemoryStore()
	requests := maintenance.NewService(store, maintenance.NewEngine(false), nil, nil, nil)
	handler := api.NewRouter(cfg, api.Deps{
		Auth:          auth,
		Profiles:      auth,
		Requests:      requests,
		Attachments:   maintenance.NewAttachmentService(requests, store, storage.NewMemory()),
		Notifications: noNotifications{},
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &fixture{server: srv, auth: auth}
}

func (f *fixture) client(t *testing.T) *Client {
	t.Helper()
	holder, err := session.NewHolder(session.NewFileStore(filepath.Join(t.TempDir(), "session.json")))
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	c, err := New(Config{BaseURL: f.server.URL + "/api", Session: holder})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func (f *fixture) loggedIn(t *testing.T, username string) *Client {
	t.Helper()
	c := f.client(t)
	if _, err := c.Login(context.Background(), username, "senha"); err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return c
}

func newInput(title string) maintenance.CreateInput {
	due, _ := maintenance.ParseDate("2025-04-01")
	return maintenance.CreateInput{
		PrazoLimite:            due,
		SetorSolicitante:       "Produção",
		TipoManutencao:         maintenance.TypeEletrica,
		StatusOperacional:      maintenance.OperationalInoperante,
		EquipamentosImpactados: []maintenance.Equipment{maintenance.EquipmentFresa},
		TituloCurto:            title,
		DescricaoProblema:      "Motor não liga",
		Prioridade:             5,
	}
}

func TestOperationsRequireSession(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	if _, err := c.ListRequests(context.Background(), maintenance.FilterAll); !errors.Is(err, session.ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
}

func TestLoginStoresSession(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	user, err := c.Login(context.Background(), "carlos.manut", "senha")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Token != "tok-carlos.manut" || user.ProfileType != maintenance.RoleManutencao {
		t.Fatalf("unexpected user %+v", user)
	}
	if current, ok := c.Session().Current(); !ok || current.ID != 30 {
		t.Fatalf("session not stored: %+v", current)
	}

	me, err := c.Me(context.Background())
	if err != nil || me.Username != "carlos.manut" {
		t.Fatalf("me: %+v %v", me, err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	_, err := c.Login(context.Background(), "joao.silva", "errada")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, ok := c.Session().Current(); ok {
		t.Fatalf("session must stay empty")
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t, "joao.silva")

	f.auth.revoked["tok-joao.silva"] = true

	_, err := c.MyRequests(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, ok := c.Session().Current(); ok {
		t.Fatalf("session should be cleared on 401")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFixture(t)
	c := f.loggedIn(t, "joao.silva")

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := c.Session().Current(); ok {
		t.Fatalf("session should be empty")
	}
	if !f.auth.revoked["tok-joao.silva"] {
		t.Fatalf("token should be revoked on server")
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout without session should be a no-op: %v", err)
	}
}

func TestRequestFlowThroughClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.loggedIn(t, "joao.silva")
	tech := f.loggedIn(t, "carlos.manut")

	created, err := requester.CreateRequest(ctx, newInput("Fresa parada"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := requester.Accept(ctx, created.Numero); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if _, err := tech.Accept(ctx, created.Numero); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := tech.StartMaintenance(ctx, created.Numero); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err = tech.CompleteMaintenance(ctx, created.Numero, maintenance.CompleteInput{})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "descricao_manutencao" {
		t.Fatalf("expected validation error on descricao_manutencao, got %v", err)
	}

	done, err := tech.CompleteMaintenance(ctx, created.Numero, maintenance.CompleteInput{DescricaoManutencao: "Troca do contator"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != maintenance.StatusConcluida {
		t.Fatalf("expected CONCLUIDA, got %s", done.Status)
	}

	detail, err := requester.GetRequest(ctx, created.Numero)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(detail.Historico) != 4 || detail.Responsavel == nil || detail.Responsavel.ID != 30 {
		t.Fatalf("unexpected detail %+v", detail)
	}

	concluded, err := tech.ListRequests(ctx, maintenance.StatusFilter(maintenance.StatusConcluida))
	if err != nil || len(concluded) != 1 {
		t.Fatalf("expected 1 concluded request, got %d %v", len(concluded), err)
	}
	open, err := tech.ListRequests(ctx, maintenance.StatusFilter(maintenance.StatusAberta))
	if err != nil || len(open) != 0 {
		t.Fatalf("expected no open requests, got %d %v", len(open), err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.loggedIn(t, "joao.silva")
	tech := f.loggedIn(t, "carlos.manut")

	created, err := requester.CreateRequest(ctx, newInput("Luz piscando"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status := maintenance.StatusParada
	reason := "aguardando peça"
	stopped, err := tech.UpdateRequest(ctx, created.Numero, maintenance.UpdateInput{Status: &status, MotivoParada: &reason})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if stopped.Status != maintenance.StatusParada || stopped.MotivoParada != reason {
		t.Fatalf("unexpected update %+v", stopped)
	}

	if err := requester.DeleteRequest(ctx, created.Numero); !errors.Is(err, ErrForbidden) {
		t.Fatalf("owner cannot delete after leaving ABERTA, got %v", err)
	}

	second, err := requester.CreateRequest(ctx, newInput("Tomada solta"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := requester.DeleteRequest(ctx, second.Numero); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := requester.GetRequest(ctx, second.Numero); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDashboardThroughClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.loggedIn(t, "joao.silva")
	manager := f.loggedIn(t, "ana.gestora")

	if _, err := requester.CreateRequest(ctx, newInput("a")); err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := requester.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if mine.TotalRequests != nil || mine.MyRequestsCount != 1 || mine.MyOpenRequests != 1 {
		t.Fatalf("unexpected personal dashboard %+v", mine)
	}

	global, err := manager.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if global.TotalRequests == nil || *global.TotalRequests != 1 {
		t.Fatalf("unexpected global dashboard %+v", global)
	}
}

func TestServerErrorIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	holder, _ := session.NewHolder(nil)
	_ = holder.Login(session.User{Username: "x", Token: "t"})
	c, err := New(Config{BaseURL: srv.URL, Session: holder})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	if _, err := c.Notifications(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}

	srv.Close()
	if _, err := c.Notifications(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork for closed server, got %v", err)
	}
}

func TestPlainTextUnauthorizedClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Unauthorized"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "session.json")
	holder, err := session.NewHolder(session.NewFileStore(path))
	if err != nil {
		t.Fatalf("holder: %v", err)
	}
	if err := holder.Login(session.User{ID: 10, Username: "joao.silva", Token: "t"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	c, err := New(Config{BaseURL: srv.URL, Session: holder})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	if _, err := c.Me(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, ok := c.Session().Current(); ok {
		t.Fatalf("session should be cleared on 401")
	}

	reloaded, err := session.NewHolder(session.NewFileStore(path))
	if err != nil {
		t.Fatalf("reload holder: %v", err)
	}
	if _, ok := reloaded.Current(); ok {
		t.Fatalf("persisted session should be gone after 401")
	}
}

func TestServiceUnavailableKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"data":null,"error":{"code":"INTERNAL","message":"autenticação indisponível"}}`))
	}))
	defer srv.Close()

	holder, _ := session.NewHolder(nil)
	_ = holder.Login(session.User{Username: "joao.silva", Token: "t"})
	c, err := New(Config{BaseURL: srv.URL, Session: holder})
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	if _, err := c.MyRequests(context.Background()); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if _, ok := c.Session().Current(); !ok {
		t.Fatalf("session must survive a backend outage")
	}
}

func TestAttachmentsThroughClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.loggedIn(t, "joao.silva")
	tech := f.loggedIn(t, "carlos.manut")

	created, err := requester.CreateRequest(ctx, newInput("Painel queimado"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	content := []byte("laudo técnico do painel")
	a, err := requester.UploadAttachment(ctx, created.Numero, "/tmp/docs/laudo.txt", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if a.NomeOriginal != "laudo.txt" || a.Tamanho != int64(len(content)) {
		t.Fatalf("unexpected attachment %+v", a)
	}

	list, err := tech.Attachments(ctx, created.Numero)
	if err != nil || len(list) != 1 || list[0].ID != a.ID {
		t.Fatalf("list: %v %+v", err, list)
	}

	d, err := tech.DownloadAttachment(ctx, created.Numero, a.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if d.Nome != "laudo.txt" || !bytes.Equal(d.Data, content) {
		t.Fatalf("unexpected download %q %q", d.Nome, d.Data)
	}

	if err := tech.DeleteAttachment(ctx, created.Numero, a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := requester.DeleteAttachment(ctx, created.Numero, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := requester.DownloadAttachment(ctx, created.Numero, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmptyUploadIsValidationError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	requester := f.loggedIn(t, "joao.silva")
	created, _ := requester.CreateRequest(ctx, newInput("Painel"))

	_, err := requester.UploadAttachment(ctx, created.Numero, "vazio.txt", bytes.NewReader(nil))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "arquivo" {
		t.Fatalf("expected validation error on arquivo, got %v", err)
	}
}
