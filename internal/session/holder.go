// Package session mantém a identidade do usuário autenticado no cliente:
// quem é, qual perfil tem e qual token apresentar à API.
package session

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/maintenance"
)

// ErrNotLoggedIn indica que a operação exige usuário autenticado.
var ErrNotLoggedIn = errors.New("nenhum usuário autenticado, execute login")

// User é o que fica guardado da sessão.
type User struct {
	ID          int64            `json:"id"`
	Username    string           `json:"username"`
	FirstName   string           `json:"first_name"`
	LastName    string           `json:"last_name"`
	ProfileType maintenance.Role `json:"profile_type"`
	Token       string           `json:"token"`
}

// Actor converte o usuário da sessão na identidade usada pelas regras de acesso.
func (u User) Actor() maintenance.Actor {
	return maintenance.Actor{
		UserRef: maintenance.UserRef{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName},
		Role:    u.ProfileType,
	}
}

// DisplayName devolve nome e sobrenome, ou o username.
func (u User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Username
	}
	return name
}

// Holder guarda o usuário atual. Login e Logout são os únicos escritores;
// leituras podem ocorrer de qualquer goroutine.
type Holder struct {
	mu    sync.RWMutex
	store Storage
	user  *User
}

// NewHolder carrega a sessão persistida. Uma sessão corrompida é descartada.
func NewHolder(store Storage) (*Holder, error) {
	h := &Holder{store: store}
	if store == nil {
		return h, nil
	}

	user, err := store.Load()
	if errors.Is(err, ErrCorrupt) {
		log.Warn().Err(err).Msg("descartando sessão local")
		return h, store.Clear()
	}
	if err != nil {
		return nil, err
	}
	h.user = user
	return h, nil
}

// Current devolve uma cópia do usuário, se houver.
func (h *Holder) Current() (User, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return User{}, false
	}
	return *h.user, true
}

// Require devolve o usuário ou ErrNotLoggedIn.
func (h *Holder) Require() (User, error) {
	user, ok := h.Current()
	if !ok {
		return User{}, ErrNotLoggedIn
	}
	return user, nil
}

// Token devolve o token atual ou "".
func (h *Holder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.user == nil {
		return ""
	}
	return h.user.Token
}

// Login grava o usuário em memória e no armazenamento.
func (h *Holder) Login(user User) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.store != nil {
		if err := h.store.Save(user); err != nil {
			return err
		}
	}
	h.user = &user
	return nil
}

// Logout limpa a sessão. Também usado quando a API responde 401.
func (h *Holder) Logout() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.user = nil
	if h.store != nil {
		return h.store.Clear()
	}
	return nil
}
