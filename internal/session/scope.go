package session

import (
	"context"
	"sync"
)

// Scope liga buscas assíncronas a uma tela. Depois de Close, resultados que
// chegarem atrasados são ignorados.
type Scope struct {
	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	return &Scope{ctx: ctx, cancel: cancel}
}

// Context é cancelado quando a tela é encerrada.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Deliver executa fn só se a tela ainda estiver ativa. Close aguarda uma
// entrega em andamento terminar.
func (s *Scope) Deliver(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

func (s *Scope) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

// Closed indica se a tela já foi encerrada.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Run busca em segundo plano e entrega o resultado pela Scope. O canal
// retornado fecha quando a goroutine termina, entregando ou não.
func Run[T any](s *Scope, fetch func(ctx context.Context) (T, error), deliver func(T, error)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if s.Closed() {
			return
		}
		v, err := fetch(s.ctx)
		s.Deliver(func() { deliver(v, err) })
	}()
	return done
}
