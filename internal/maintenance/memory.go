package maintenance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore é um Store em memória, usado em testes e demonstrações.
type MemoryStore struct {
	mu            sync.Mutex
	seq           int64
	historySeq    int64
	attachmentSeq int64
	items         map[int64]*Request
}

// NewMemoryStore cria um store vazio.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[int64]*Request)}
}

// Len devolve quantas requisições estão guardadas.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore) CreateRequest(ctx context.Context, solicitante UserRef, input CreateInput, entry HistoryEntry) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	m.historySeq++
	entry.ID = m.historySeq

	// a ordem de criação desempata listagens com o mesmo relógio
	created := entry.DataAcao.Add(time.Duration(m.seq) * time.Millisecond)
	req := &Request{
		Numero:                 m.seq,
		DataCriacao:            created,
		DataAtualizacao:        created,
		Solicitante:            solicitante,
		PrazoLimite:            input.PrazoLimite,
		SetorSolicitante:       input.SetorSolicitante,
		TipoManutencao:         input.TipoManutencao,
		StatusOperacional:      input.StatusOperacional,
		EquipamentosImpactados: append([]Equipment{}, input.EquipamentosImpactados...),
		OutrosEquipamentos:     input.OutrosEquipamentos,
		TituloCurto:            input.TituloCurto,
		DescricaoProblema:      input.DescricaoProblema,
		Prioridade:             input.Prioridade,
		Status:                 StatusAberta,
		Historico:              []HistoryEntry{entry},
	}
	m.items[req.Numero] = req
	return req.Clone(), nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, numero int64) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.items[numero]
	if !ok {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

func (m *MemoryStore) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, req := range m.items {
		if filter.SolicitanteID != nil && req.Solicitante.ID != *filter.SolicitanteID {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, req.Status) {
			continue
		}
		listed := req.Clone()
		listed.Historico = nil
		listed.Anexos = nil
		out = append(out, *listed)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DataCriacao.Equal(out[j].DataCriacao) {
			return out[i].Numero > out[j].Numero
		}
		return out[i].DataCriacao.After(out[j].DataCriacao)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateRequest serializa as atualizações pelo mutex do store.
func (m *MemoryStore) UpdateRequest(ctx context.Context, numero int64, fn func(current *Request) (*Request, error)) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[numero]
	if !ok {
		return nil, ErrNotFound
	}
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}
	for i := range next.Historico {
		if next.Historico[i].ID == 0 {
			m.historySeq++
			next.Historico[i].ID = m.historySeq
		}
	}
	m.items[numero] = next.Clone()
	return next, nil
}

func (m *MemoryStore) DeleteRequest(ctx context.Context, numero int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[numero]; !ok {
		return ErrNotFound
	}
	delete(m.items, numero)
	return nil
}

func (m *MemoryStore) CountRequests(ctx context.Context, solicitanteID *int64) (Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var c Counters
	for _, req := range m.items {
		if solicitanteID != nil && req.Solicitante.ID != *solicitanteID {
			continue
		}
		c.Total++
		if req.Status.Open() {
			c.Open++
		}
		if req.Status == StatusConcluida {
			c.Completed++
		}
	}
	return c, nil
}

func (m *MemoryStore) CreateAttachment(ctx context.Context, a Attachment, entry HistoryEntry) (Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.items[a.Numero]
	if !ok {
		return Attachment{}, ErrNotFound
	}
	m.attachmentSeq++
	a.ID = m.attachmentSeq
	m.historySeq++
	entry.ID = m.historySeq

	req.Anexos = append(req.Anexos, a)
	req.Historico = append(req.Historico, entry)
	req.DataAtualizacao = entry.DataAcao
	return a, nil
}

func (m *MemoryStore) GetAttachment(ctx context.Context, numero, id int64) (Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.items[numero]
	if !ok {
		return Attachment{}, ErrNotFound
	}
	for _, a := range req.Anexos {
		if a.ID == id {
			return a, nil
		}
	}
	return Attachment{}, ErrAttachmentNotFound
}

func (m *MemoryStore) DeleteAttachment(ctx context.Context, numero, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.items[numero]
	if !ok {
		return ErrNotFound
	}
	for i, a := range req.Anexos {
		if a.ID == id {
			req.Anexos = append(req.Anexos[:i:i], req.Anexos[i+1:]...)
			return nil
		}
	}
	return ErrAttachmentNotFound
}

func containsStatus(list []Status, s Status) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}
