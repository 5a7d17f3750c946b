// Package client consome a API de requisições de manutenção usando a sessão
// local para autenticar cada chamada.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/service"
	"github.com/manutencao/requisicoes/internal/session"
)

const DefaultBaseURL = "http://localhost:8080/api"

// Client encapsula chamadas à API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    *session.Holder
}

// Config descreve onde está a API e qual sessão usar.
type Config struct {
	BaseURL    string
	Session    *session.Holder
	HTTPClient *http.Client
}

// New cria o cliente. A sessão é obrigatória.
func New(cfg Config) (*Client, error) {
	if cfg.Session == nil {
		return nil, errors.New("client: sessão obrigatória")
	}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("client: url inválida: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(base, "/"),
		session:    cfg.Session,
	}, nil
}

// Session devolve o holder usado pelo cliente.
func (c *Client) Session() *session.Holder {
	return c.session
}

// Login autentica e grava a sessão.
func (c *Client) Login(ctx context.Context, username, password string) (session.User, error) {
	body := map[string]string{"username": strings.TrimSpace(username), "password": password}

	var result service.LoginResult
	if err := c.call(ctx, http.MethodPost, "/auth/login/", body, &result, false); err != nil {
		return session.User{}, err
	}

	user := session.User{
		ID:          result.User.ID,
		Username:    result.User.Username,
		FirstName:   result.User.FirstName,
		LastName:    result.User.LastName,
		ProfileType: result.User.ProfileType,
		Token:       result.Token,
	}
	if err := c.session.Login(user); err != nil {
		return session.User{}, fmt.Errorf("gravar sessão: %w", err)
	}
	return user, nil
}

// Logout revoga o token no servidor e limpa a sessão mesmo se a chamada falhar.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.session.Require(); err != nil {
		return nil
	}
	err := c.call(ctx, http.MethodPost, "/auth/logout/", nil, nil, true)
	if clearErr := c.session.Logout(); clearErr != nil {
		return clearErr
	}
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		log.Warn().Err(err).Msg("logout no servidor falhou; sessão local removida")
	}
	return nil
}

func (c *Client) Me(ctx context.Context) (service.Profile, error) {
	var profile service.Profile
	err := c.call(ctx, http.MethodGet, "/profiles/me/", nil, &profile, true)
	return profile, err
}

func (c *Client) Profiles(ctx context.Context) ([]service.Profile, error) {
	var profiles []service.Profile
	err := c.call(ctx, http.MethodGet, "/profiles/", nil, &profiles, true)
	return profiles, err
}

// ListRequests lista as requisições visíveis, filtradas por status.
func (c *Client) ListRequests(ctx context.Context, filter maintenance.StatusFilter) ([]maintenance.Request, error) {
	path := "/requests/"
	if filter != "" && filter != maintenance.FilterAll {
		path += "?status=" + url.QueryEscape(string(filter))
	}
	var reqs []maintenance.Request
	err := c.call(ctx, http.MethodGet, path, nil, &reqs, true)
	return reqs, err
}

func (c *Client) MyRequests(ctx context.Context) ([]maintenance.Request, error) {
	var reqs []maintenance.Request
	err := c.call(ctx, http.MethodGet, "/requests/my_requests/", nil, &reqs, true)
	return reqs, err
}

func (c *Client) Dashboard(ctx context.Context) (maintenance.Dashboard, error) {
	var dash maintenance.Dashboard
	err := c.call(ctx, http.MethodGet, "/requests/dashboard_data/", nil, &dash, true)
	return dash, err
}

func (c *Client) GetRequest(ctx context.Context, numero int64) (*maintenance.Request, error) {
	var req maintenance.Request
	if err := c.call(ctx, http.MethodGet, requestPath(numero, ""), nil, &req, true); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) CreateRequest(ctx context.Context, input maintenance.CreateInput) (*maintenance.Request, error) {
	var req maintenance.Request
	if err := c.call(ctx, http.MethodPost, "/requests/", input, &req, true); err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateRequest envia PATCH parcial; com Status preenchido é uma transição.
func (c *Client) UpdateRequest(ctx context.Context, numero int64, input maintenance.UpdateInput) (*maintenance.Request, error) {
	var req maintenance.Request
	if err := c.call(ctx, http.MethodPatch, requestPath(numero, ""), input, &req, true); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *Client) DeleteRequest(ctx context.Context, numero int64) error {
	return c.call(ctx, http.MethodDelete, requestPath(numero, ""), nil, nil, true)
}

func (c *Client) Accept(ctx context.Context, numero int64) (*maintenance.Request, error) {
	return c.action(ctx, numero, "accept", nil)
}

func (c *Client) StartMaintenance(ctx context.Context, numero int64) (*maintenance.Request, error) {
	return c.action(ctx, numero, "start_maintenance", nil)
}

func (c *Client) CompleteMaintenance(ctx context.Context, numero int64, input maintenance.CompleteInput) (*maintenance.Request, error) {
	return c.action(ctx, numero, "complete_maintenance", input)
}

func (c *Client) Notifications(ctx context.Context) ([]notification.Notification, error) {
	var items []notification.Notification
	err := c.call(ctx, http.MethodGet, "/notifications/", nil, &items, true)
	return items, err
}

func (c *Client) MarkNotificationAsRead(ctx context.Context, id int64) (notification.Notification, error) {
	var n notification.Notification
	err := c.call(ctx, http.MethodPost, "/notifications/"+strconv.FormatInt(id, 10)+"/mark_as_read/", nil, &n, true)
	return n, err
}

// MarkAllNotificationsAsRead devolve quantas foram marcadas.
func (c *Client) MarkAllNotificationsAsRead(ctx context.Context) (int64, error) {
	var out struct {
		Marcadas int64 `json:"marcadas"`
	}
	err := c.call(ctx, http.MethodPost, "/notifications/mark_all_as_read/", nil, &out, true)
	return out.Marcadas, err
}

// Attachments lista os anexos da requisição.
func (c *Client) Attachments(ctx context.Context, numero int64) ([]maintenance.Attachment, error) {
	var items []maintenance.Attachment
	err := c.call(ctx, http.MethodGet, requestPath(numero, "attachments"), nil, &items, true)
	return items, err
}

// UploadAttachment envia o arquivo no campo multipart "arquivo".
func (c *Client) UploadAttachment(ctx context.Context, numero int64, filename string, content io.Reader) (*maintenance.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("arquivo", filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, io.LimitReader(content, maintenance.MaxAttachmentBytes+1)); err != nil {
		return nil, fmt.Errorf("ler arquivo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, requestPath(numero, "attachments"), nil, true)
	if err != nil {
		return nil, err
	}
	payload := buf.Bytes()
	req.Body = io.NopCloser(bytes.NewReader(payload))
	req.ContentLength = int64(len(payload))
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var a maintenance.Attachment
	if err := c.do(req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Download é o conteúdo bruto de um anexo.
type Download struct {
	Nome        string
	ContentType string
	Data        []byte
}

func (c *Client) DownloadAttachment(ctx context.Context, numero, id int64) (*Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, attachmentPath(numero, id), nil, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, c.errorFromResponse(resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maintenance.MaxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if len(data) > maintenance.MaxAttachmentBytes {
		return nil, fmt.Errorf("%w: anexo maior que o permitido", ErrNetwork)
	}

	d := &Download{ContentType: resp.Header.Get("Content-Type"), Data: data, Nome: strconv.FormatInt(id, 10)}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		d.Nome = filepath.Base(params["filename"])
	}
	return d, nil
}

func (c *Client) DeleteAttachment(ctx context.Context, numero, id int64) error {
	return c.call(ctx, http.MethodDelete, attachmentPath(numero, id), nil, nil, true)
}

func (c *Client) action(ctx context.Context, numero int64, name string, body any) (*maintenance.Request, error) {
	var req maintenance.Request
	if err := c.call(ctx, http.MethodPost, requestPath(numero, name), body, &req, true); err != nil {
		return nil, err
	}
	return &req, nil
}

func requestPath(numero int64, action string) string {
	path := "/requests/" + strconv.FormatInt(numero, 10) + "/"
	if action != "" {
		path += action + "/"
	}
	return path
}

func attachmentPath(numero, id int64) string {
	return requestPath(numero, "attachments") + strconv.FormatInt(id, 10) + "/"
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, authenticated bool) error {
	req, err := c.newRequest(ctx, method, path, body, authenticated)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any, authenticated bool) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if authenticated {
		user, err := c.session.Require()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Token "+user.Token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.errorFromResponse(resp)
	}

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: resposta inválida: %v", ErrNetwork, err)
		}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// corpo fora do envelope (proxy, gateway): o status ainda decide
		env = envelope{}
	}
	return c.responseError(resp.StatusCode, env)
}

func (c *Client) responseError(status int, env envelope) error {
	var code, message string
	if env.Error != nil {
		code, message = env.Error.Code, env.Error.Message
	}

	switch {
	case status == http.StatusBadRequest:
		verr := &ValidationError{Message: message}
		if env.Error != nil && len(env.Error.Details) > 0 {
			var details struct {
				Field string `json:"field"`
			}
			if json.Unmarshal(env.Error.Details, &details) == nil {
				verr.Field = details.Field
			}
		}
		if verr.Message == "" {
			verr.Message = "dados inválidos"
		}
		return verr
	case status == http.StatusUnauthorized:
		if err := c.session.Logout(); err != nil {
			log.Warn().Err(err).Msg("falha ao limpar sessão local")
		}
		return &APIError{Status: status, Code: code, Message: message, kind: ErrUnauthorized}
	case status == http.StatusForbidden:
		return &APIError{Status: status, Code: code, Message: message, kind: ErrForbidden}
	case status == http.StatusNotFound:
		return &APIError{Status: status, Code: code, Message: message, kind: ErrNotFound}
	case status == http.StatusTooManyRequests:
		return &APIError{Status: status, Code: code, Message: message, kind: ErrRateLimited}
	default:
		return &APIError{Status: status, Code: code, Message: message, kind: ErrNetwork}
	}
}
