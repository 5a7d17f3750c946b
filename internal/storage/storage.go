// Package storage guarda os arquivos anexados às requisições.
package storage

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrUnavailable indica que nenhum backend foi configurado.
	ErrUnavailable = errors.New("storage: armazenamento não configurado")
	// ErrNotFound indica objeto inexistente.
	ErrNotFound = errors.New("storage: objeto não encontrado")
)

// Object é um blob com o tipo de conteúdo original.
type Object struct {
	Key         string
	ContentType string
	Body        []byte
}

// Noop recusa toda operação com ErrUnavailable.
type Noop struct{}

func (Noop) Put(ctx context.Context, obj Object) error             { return ErrUnavailable }
func (Noop) Get(ctx context.Context, key string) (*Object, error) { return nil, ErrUnavailable }
func (Noop) Delete(ctx context.Context, key string) error          { return ErrUnavailable }

// Memory mantém os objetos em memória. Serve para testes e para rodar a API
// localmente sem bucket.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) Put(ctx context.Context, obj Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj.Body = append([]byte(nil), obj.Body...)
	m.objects[obj.Key] = obj
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	obj.Body = append([]byte(nil), obj.Body...)
	return &obj, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len devolve quantos objetos estão guardados.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
