package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/manutencao/requisicoes/internal/config"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/service"
	"github.com/manutencao/requisicoes/internal/storage"
)

type stubAuth struct {
	users   map[string]service.Profile
	tokens  map[string]string
	revoked map[string]bool
}

func newStubAuth(profiles ...service.Profile) *stubAuth {
	s := &stubAuth{
		users:   make(map[string]service.Profile),
		tokens:  make(map[string]string),
		revoked: make(map[string]bool),
	}
	for _, p := range profiles {
		s.users[p.Username] = p
		s.tokens["tok-"+p.Username] = p.Username
	}
	return s
}

func (s *stubAuth) Authenticate(ctx context.Context, token string) (maintenance.Actor, error) {
	username, ok := s.tokens[token]
	if !ok || s.revoked[token] {
		return maintenance.Actor{}, service.ErrUnauthorized
	}
	return s.users[username].Actor(), nil
}

func (s *stubAuth) Login(ctx context.Context, username, password string) (*service.LoginResult, error) {
	p, ok := s.users[username]
	if !ok || password != "senha" {
		return nil, service.ErrInvalidCredentials
	}
	return &service.LoginResult{Token: "tok-" + username, User: p}, nil
}

func (s *stubAuth) Logout(ctx context.Context, token string) error {
	s.revoked[token] = true
	return nil
}

func (s *stubAuth) Me(ctx context.Context, actor maintenance.Actor) (service.Profile, error) {
	return s.users[actor.Username], nil
}

func (s *stubAuth) ListProfiles(ctx context.Context, actor maintenance.Actor) ([]service.Profile, error) {
	if actor.Role != maintenance.RoleTI {
		return []service.Profile{s.users[actor.Username]}, nil
	}
	var out []service.Profile
	for _, p := range s.users {
		out = append(out, p)
	}
	return out, nil
}

type stubNotifications struct {
	items []notification.Notification
}

func (s *stubNotifications) List(ctx context.Context, actor maintenance.Actor) ([]notification.Notification, error) {
	out := []notification.Notification{}
	for _, n := range s.items {
		if n.UsuarioID == actor.ID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *stubNotifications) MarkAsRead(ctx context.Context, actor maintenance.Actor, id int64) (notification.Notification, error) {
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].UsuarioID == actor.ID {
			s.items[i].Lida = true
			return s.items[i], nil
		}
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (s *stubNotifications) MarkAllAsRead(ctx context.Context, actor maintenance.Actor) (int64, error) {
	var n int64
	for i := range s.items {
		if s.items[i].UsuarioID == actor.ID && !s.items[i].Lida {
			s.items[i].Lida = true
			n++
		}
	}
	return n, nil
}

var (
	profileJoao   = service.Profile{ID: 10, Username: "joao.silva", FirstName: "João", ProfileType: maintenance.RoleComum}
	profileMaria  = service.Profile{ID: 11, Username: "maria.souza", FirstName: "Maria", ProfileType: maintenance.RoleComum}
	profileCarlos = service.Profile{ID: 30, Username: "carlos.manut", FirstName: "Carlos", ProfileType: maintenance.RoleManutencao}
	profileAna    = service.Profile{ID: 40, Username: "ana.gestora", FirstName: "Ana", ProfileType: maintenance.RoleGestor}
	profileAdmin  = service.Profile{ID: 1, Username: "admin", FirstName: "Admin", ProfileType: maintenance.RoleTI}
)

type testServer struct {
	handler       http.Handler
	auth          *stubAuth
	notifications *stubNotifications
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	auth := newStubAuth(profileJoao, profileMaria, profileCarlos, profileAna, profileAdmin)
	notes := &stubNotifications{}
	cfg := &config.Config{
		RateLimitPublic: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		RateLimitAuth:   config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
	store := maintenance.NewMemoryStore()
	requests := maintenance.NewService(store, maintenance.NewEngine(false), nil, nil, nil)
	handler := NewRouter(cfg, Deps{
		Auth:          auth,
		Profiles:      auth,
		Requests:      requests,
		Attachments:   maintenance.NewAttachmentService(requests, store, storage.NewMemory()),
		Notifications: notes,
	})
	return &testServer{handler: handler, auth: auth, notifications: notes}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *ErrorBody      `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Token tok-"+user)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v (%s)", err, string(env.Data))
	}
	return out
}

func createBody(title string) map[string]any {
	return map[string]any{
		"prazo_limite":            "2025-04-01",
		"setor_solicitante":       "Produção",
		"tipo_manutencao":         "MECANICA",
		"status_operacional":      "PARCIAL",
		"equipamentos_impactados": []string{"PRENSA"},
		"titulo_curto":            title,
		"descricao_problema":      "Vazamento de óleo",
		"prioridade":              3,
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	code, _ := srv.do(t, http.MethodGet, "/health", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestLoginAndLogout(t *testing.T) {
	srv := newTestServer(t)

	code, env := srv.do(t, http.MethodPost, "/api/auth/login/", "", map[string]string{"username": "joao.silva", "password": "senha"})
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%+v)", code, env.Error)
	}
	result := decodeData[service.LoginResult](t, env)
	if result.Token != "tok-joao.silva" || result.User.ProfileType != maintenance.RoleComum {
		t.Fatalf("unexpected login result %+v", result)
	}

	code, env = srv.do(t, http.MethodPost, "/api/auth/login/", "", map[string]string{"username": "joao.silva", "password": "errada"})
	if code != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "AUTH" {
		t.Fatalf("expected AUTH 401, got %d %+v", code, env.Error)
	}

	code, _ = srv.do(t, http.MethodPost, "/api/auth/logout/", "joao.silva", nil)
	if code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	code, _ = srv.do(t, http.MethodGet, "/api/profiles/me/", "joao.silva", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", code)
	}
}

func TestRequestsRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	code, env := srv.do(t, http.MethodGet, "/api/requests/", "", nil)
	if code != http.StatusUnauthorized || env.Error.Code != "AUTH" {
		t.Fatalf("expected 401 AUTH, got %d", code)
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	code, env := srv.do(t, http.MethodPost, "/api/requests/", "joao.silva", createBody("Prensa vazando"))
	if code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %+v", code, env.Error)
	}
	created := decodeData[maintenance.Request](t, env)
	if created.Status != maintenance.StatusAberta || created.Solicitante.ID != profileJoao.ID {
		t.Fatalf("unexpected created request %+v", created)
	}
	path := "/api/requests/" + itoa(created.Numero)

	code, env = srv.do(t, http.MethodPost, path+"/accept/", "joao.silva", nil)
	if code != http.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("requester accept: expected 403, got %d", code)
	}

	code, env = srv.do(t, http.MethodPost, path+"/accept/", "carlos.manut", nil)
	if code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d %+v", code, env.Error)
	}
	accepted := decodeData[maintenance.Request](t, env)
	if accepted.Responsavel == nil || accepted.Responsavel.Username != "carlos.manut" {
		t.Fatalf("expected carlos responsible, got %+v", accepted.Responsavel)
	}

	code, _ = srv.do(t, http.MethodPost, path+"/start_maintenance/", "carlos.manut", nil)
	if code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", code)
	}

	code, env = srv.do(t, http.MethodPost, path+"/complete_maintenance/", "carlos.manut", map[string]string{})
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION" {
		t.Fatalf("complete without description: expected 400, got %d", code)
	}
	if !strings.Contains(string(mustJSON(t, env.Error.Details)), "descricao_manutencao") {
		t.Fatalf("expected field detail, got %+v", env.Error.Details)
	}

	code, env = srv.do(t, http.MethodPost, path+"/complete_maintenance/", "carlos.manut", map[string]string{
		"descricao_manutencao": "Troca de vedação",
		"materiais_utilizados": "Vedação 40mm",
	})
	if code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d %+v", code, env.Error)
	}
	done := decodeData[maintenance.Request](t, env)
	if done.Status != maintenance.StatusConcluida || done.HoraTermino == nil {
		t.Fatalf("unexpected completed request %+v", done)
	}

	code, env = srv.do(t, http.MethodGet, path+"/", "joao.silva", nil)
	if code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", code)
	}
	detail := decodeData[maintenance.Request](t, env)
	if len(detail.Historico) != 4 {
		t.Fatalf("expected 4 history entries, got %d", len(detail.Historico))
	}
}

func TestListVisibilityAndFilter(t *testing.T) {
	srv := newTestServer(t)

	for i, user := range []string{"joao.silva", "maria.souza", "joao.silva", "maria.souza", "maria.souza"} {
		code, env := srv.do(t, http.MethodPost, "/api/requests/", user, createBody("req "+itoa(int64(i))))
		if code != http.StatusCreated {
			t.Fatalf("create: %d %+v", code, env.Error)
		}
	}

	_, env := srv.do(t, http.MethodGet, "/api/requests/", "joao.silva", nil)
	if got := decodeData[[]maintenance.Request](t, env); len(got) != 2 {
		t.Fatalf("expected 2 requests for joao, got %d", len(got))
	}

	_, env = srv.do(t, http.MethodGet, "/api/requests/", "ana.gestora", nil)
	if got := decodeData[[]maintenance.Request](t, env); len(got) != 5 {
		t.Fatalf("expected 5 requests for manager, got %d", len(got))
	}

	srv.do(t, http.MethodPatch, "/api/requests/2/", "carlos.manut", map[string]string{"status": "em_atendimento"})

	_, env = srv.do(t, http.MethodGet, "/api/requests/?status=EM_ATENDIMENTO", "ana.gestora", nil)
	filtered := decodeData[[]maintenance.Request](t, env)
	if len(filtered) != 1 || filtered[0].Numero != 2 {
		t.Fatalf("expected only request 2, got %+v", filtered)
	}

	code, env := srv.do(t, http.MethodGet, "/api/requests/?status=FECHADA", "ana.gestora", nil)
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION" {
		t.Fatalf("expected 400 for unknown status, got %d", code)
	}

	code, env = srv.do(t, http.MethodGet, "/api/requests/2/", "joao.silva", nil)
	if code != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Fatalf("foreign request should be 404, got %d", code)
	}

	_, env = srv.do(t, http.MethodGet, "/api/requests/my_requests/", "maria.souza", nil)
	if got := decodeData[[]maintenance.Request](t, env); len(got) != 3 {
		t.Fatalf("expected 3 own requests, got %d", len(got))
	}
}

func TestPatchRequiresStaff(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/requests/", "joao.silva", createBody("x"))

	code, _ := srv.do(t, http.MethodPatch, "/api/requests/1/", "ana.gestora", map[string]string{"status": "CANCELADA"})
	if code != http.StatusForbidden {
		t.Fatalf("manager PATCH: expected 403, got %d", code)
	}

	code, env := srv.do(t, http.MethodPatch, "/api/requests/1/", "admin", map[string]string{"status": "CANCELADA", "motivo_cancelamento": "duplicada"})
	if code != http.StatusOK {
		t.Fatalf("admin PATCH: expected 200, got %d %+v", code, env.Error)
	}
	updated := decodeData[maintenance.Request](t, env)
	if updated.Status != maintenance.StatusCancelada || updated.MotivoCancelamento != "duplicada" {
		t.Fatalf("unexpected update %+v", updated)
	}

	code, _ = srv.do(t, http.MethodPatch, "/api/requests/abc/", "admin", map[string]string{})
	if code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", code)
	}
}

func TestDeleteRequest(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/requests/", "joao.silva", createBody("x"))

	code, _ := srv.do(t, http.MethodDelete, "/api/requests/1/", "maria.souza", nil)
	if code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", code)
	}
	code, _ = srv.do(t, http.MethodDelete, "/api/requests/1/", "joao.silva", nil)
	if code != http.StatusNoContent {
		t.Fatalf("owner delete: expected 204, got %d", code)
	}
}

func TestDashboardByRole(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, http.MethodPost, "/api/requests/", "joao.silva", createBody("a"))
	srv.do(t, http.MethodPost, "/api/requests/", "maria.souza", createBody("b"))

	_, env := srv.do(t, http.MethodGet, "/api/requests/dashboard_data/", "joao.silva", nil)
	var personal map[string]any
	if err := json.Unmarshal(env.Data, &personal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := personal["total_requests"]; ok {
		t.Fatalf("requester must not receive global counters")
	}
	if personal["my_requests_count"].(float64) != 1 {
		t.Fatalf("unexpected personal count %v", personal["my_requests_count"])
	}

	_, env = srv.do(t, http.MethodGet, "/api/requests/dashboard_data/", "carlos.manut", nil)
	staff := decodeData[maintenance.Dashboard](t, env)
	if staff.TotalRequests == nil || *staff.TotalRequests != 2 || *staff.OpenRequests != 2 {
		t.Fatalf("unexpected staff dashboard %+v", staff)
	}
	if len(staff.RecentRequests) != 2 {
		t.Fatalf("expected 2 recent requests, got %d", len(staff.RecentRequests))
	}
}

func TestProfilesAndNotifications(t *testing.T) {
	srv := newTestServer(t)
	srv.notifications.items = []notification.Notification{
		{ID: 1, UsuarioID: profileJoao.ID, Titulo: "Requisição Aceita"},
		{ID: 2, UsuarioID: profileJoao.ID, Titulo: "Manutenção Concluída"},
		{ID: 3, UsuarioID: profileMaria.ID, Titulo: "Outro"},
	}

	_, env := srv.do(t, http.MethodGet, "/api/profiles/", "admin", nil)
	if got := decodeData[[]service.Profile](t, env); len(got) != 5 {
		t.Fatalf("TI should list 5 profiles, got %d", len(got))
	}
	_, env = srv.do(t, http.MethodGet, "/api/profiles/me/", "joao.silva", nil)
	if me := decodeData[service.Profile](t, env); me.Username != "joao.silva" {
		t.Fatalf("unexpected profile %+v", me)
	}

	_, env = srv.do(t, http.MethodGet, "/api/notifications/", "joao.silva", nil)
	if got := decodeData[[]notification.Notification](t, env); len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}

	code, _ := srv.do(t, http.MethodPost, "/api/notifications/3/mark_as_read/", "joao.silva", nil)
	if code != http.StatusNotFound {
		t.Fatalf("foreign notification: expected 404, got %d", code)
	}
	code, _ = srv.do(t, http.MethodPost, "/api/notifications/1/mark_as_read/", "joao.silva", nil)
	if code != http.StatusOK {
		t.Fatalf("mark as read: expected 200, got %d", code)
	}
	_, env = srv.do(t, http.MethodPost, "/api/notifications/mark_all_as_read/", "joao.silva", nil)
	if got := decodeData[map[string]int64](t, env); got["marcadas"] != 1 {
		t.Fatalf("expected 1 marked, got %v", got)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestOversizedBodyRejected(t *testing.T) {
	srv := newTestServer(t)

	body := createBody("grande")
	body["descricao_problema"] = strings.Repeat("a", 2<<20)
	code, env := srv.do(t, http.MethodPost, "/api/requests/", "joao.silva", body)
	if code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", code)
	}
	if env.Error == nil || env.Error.Code != CodeValidation || (env.Data != nil && string(env.Data) != "null") {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
