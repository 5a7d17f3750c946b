package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/auth"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/repo"
)

var (
	// ErrInvalidCredentials indica falha na autenticação.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrAccountDisabled indica conta desativada.
	ErrAccountDisabled = errors.New("conta desativada")
	// ErrUnauthorized indica token ausente, inválido, expirado ou revogado.
	ErrUnauthorized = errors.New("sessão inválida ou expirada")
)

type userRepository interface {
	GetUsuarioByUsername(ctx context.Context, username string) (repo.Usuario, error)
	GetUsuarioByID(ctx context.Context, id int64) (repo.Usuario, error)
	ListUsuarios(ctx context.Context) ([]repo.Usuario, error)
}

type redisCommander interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AuthService concentra login, logout e validação de tokens.
type AuthService struct {
	repo  userRepository
	redis redisCommander
	jwt   *auth.JWTManager
}

// NewAuthService cria novo serviço.
func NewAuthService(r *repo.Queries, redisClient *redis.Client, jwtMgr *auth.JWTManager) *AuthService {
	return &AuthService{repo: r, redis: redisClient, jwt: jwtMgr}
}

// Profile é o usuário como exposto pela API e guardado na sessão do cliente.
type Profile struct {
	ID          int64            `json:"id"`
	Username    string           `json:"username"`
	FirstName   string           `json:"first_name"`
	LastName    string           `json:"last_name"`
	Email       string           `json:"email"`
	ProfileType maintenance.Role `json:"profile_type"`
	Setor       string           `json:"setor,omitempty"`
	Telefone    string           `json:"telefone,omitempty"`
}

// Actor converte o perfil na identidade usada pelas regras de requisição.
func (p Profile) Actor() maintenance.Actor {
	return maintenance.Actor{
		UserRef: maintenance.UserRef{
			ID:        p.ID,
			Username:  p.Username,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Email:     p.Email,
		},
		Role: p.ProfileType,
	}
}

// LoginResult é a resposta do login: token mais usuário.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Profile   `json:"user"`
}

// Login autentica por username e senha.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUsuarioByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			log.Warn().Str("username", username).Msg("login: usuário não encontrado")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.Verify(password, user.SenhaHash)
	if err != nil {
		log.Warn().Err(err).Msg("login: verify password failed")
		return nil, ErrInvalidCredentials
	}
	if !ok {
		log.Warn().Str("username", username).Msg("login: senha inválida")
		return nil, ErrInvalidCredentials
	}
	if !user.Ativo {
		return nil, ErrAccountDisabled
	}

	profile, err := toProfile(user)
	if err != nil {
		return nil, err
	}

	token, _, err := s.jwt.GenerateAccessToken(strconv.FormatInt(user.ID, 10), user.Username, string(profile.ProfileType))
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(s.jwt.TTL()),
		User:      profile,
	}, nil
}

// Logout revoga o token até a expiração natural.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.jwt.ParseAndValidate(token)
	if err != nil {
		// token já inválido: nada a revogar
		return nil
	}
	return s.redis.Set(ctx, auth.RevokedRedisKey(claims.ID), "1", auth.RemainingTTL(claims)).Err()
}

// Authenticate valida o token e recarrega o usuário, de modo que contas
// desativadas ou com perfil alterado não dependem da expiração do token.
func (s *AuthService) Authenticate(ctx context.Context, token string) (maintenance.Actor, error) {
	claims, err := s.jwt.ParseAndValidate(token)
	if err != nil {
		return maintenance.Actor{}, ErrUnauthorized
	}

	if err := s.redis.Get(ctx, auth.RevokedRedisKey(claims.ID)).Err(); err == nil {
		return maintenance.Actor{}, ErrUnauthorized
	} else if !errors.Is(err, redis.Nil) {
		return maintenance.Actor{}, fmt.Errorf("consulta de revogação: %w", err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return maintenance.Actor{}, ErrUnauthorized
	}

	user, err := s.repo.GetUsuarioByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return maintenance.Actor{}, ErrUnauthorized
		}
		return maintenance.Actor{}, err
	}
	if !user.Ativo {
		log.Warn().Int64("user_id", id).Msg("token de conta desativada recusado")
		return maintenance.Actor{}, ErrUnauthorized
	}

	profile, err := toProfile(user)
	if err != nil {
		return maintenance.Actor{}, ErrUnauthorized
	}
	return profile.Actor(), nil
}

// Me carrega o perfil atualizado do usuário autenticado.
func (s *AuthService) Me(ctx context.Context, actor maintenance.Actor) (Profile, error) {
	user, err := s.repo.GetUsuarioByID(ctx, actor.ID)
	if err != nil {
		return Profile{}, err
	}
	return toProfile(user)
}

func toProfile(user repo.Usuario) (Profile, error) {
	role, err := maintenance.ParseRole(user.ProfileType)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:          user.ID,
		Username:    user.Username,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Email:       user.Email,
		ProfileType: role,
		Setor:       user.Setor,
		Telefone:    user.Telefone,
	}, nil
}
