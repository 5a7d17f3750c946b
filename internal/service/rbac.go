package service

import (
	"context"

	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/repo"
)

// RBACService aplica as regras de visibilidade sobre perfis de usuário.
type RBACService struct {
	repo userRepository
}

// NewRBACService cria nova instância.
func NewRBACService(r *repo.Queries) *RBACService {
	return &RBACService{repo: r}
}

// ListProfiles devolve todos os perfis para TI e apenas o próprio para os demais.
func (s *RBACService) ListProfiles(ctx context.Context, actor maintenance.Actor) ([]Profile, error) {
	if actor.Role != maintenance.RoleTI {
		user, err := s.repo.GetUsuarioByID(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		p, err := toProfile(user)
		if err != nil {
			return nil, err
		}
		return []Profile{p}, nil
	}

	users, err := s.repo.ListUsuarios(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make([]Profile, 0, len(users))
	for _, u := range users {
		p, err := toProfile(u)
		if err != nil {
			continue
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
