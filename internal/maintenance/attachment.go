package maintenance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/storage"
)

// MaxAttachmentBytes limita o tamanho de cada anexo.
const MaxAttachmentBytes = 10 << 20

const maxAttachmentName = 255

var ErrAttachmentNotFound = errors.New("anexo não encontrado")

const ActionAttachmentAdded = "ANEXO_ADICIONADO"

// Attachment é um arquivo enviado junto à requisição (foto, laudo, nota).
type Attachment struct {
	ID           int64     `json:"id"`
	Numero       int64     `json:"numero_requisicao"`
	NomeOriginal string    `json:"nome_original"`
	ContentType  string    `json:"content_type"`
	Tamanho      int64     `json:"tamanho"`
	Chave        string    `json:"-"`
	EnviadoPor   UserRef   `json:"enviado_por"`
	DataUpload   time.Time `json:"data_upload"`
}

// AttachmentUpload é o arquivo recebido do cliente.
type AttachmentUpload struct {
	NomeOriginal string
	ContentType  string
	Data         []byte
}

func (u *AttachmentUpload) validate() error {
	u.NomeOriginal = strings.TrimSpace(filepath.Base(strings.ReplaceAll(u.NomeOriginal, "\\", "/")))
	switch {
	case u.NomeOriginal == "" || u.NomeOriginal == "." || u.NomeOriginal == "/":
		return invalid("arquivo", "nome do arquivo obrigatório")
	case utf8.RuneCountInString(u.NomeOriginal) > maxAttachmentName:
		return invalid("arquivo", "nome do arquivo muito longo")
	case len(u.Data) == 0:
		return invalid("arquivo", "arquivo vazio")
	case len(u.Data) > MaxAttachmentBytes:
		return invalid("arquivo", fmt.Sprintf("arquivo excede %d MiB", MaxAttachmentBytes>>20))
	}
	if strings.TrimSpace(u.ContentType) == "" || u.ContentType == "application/octet-stream" {
		u.ContentType = http.DetectContentType(u.Data)
	}
	return nil
}

// AttachmentStore persiste os metadados; o conteúdo fica no BlobStore.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, a Attachment, entry HistoryEntry) (Attachment, error)
	GetAttachment(ctx context.Context, numero, id int64) (Attachment, error)
	DeleteAttachment(ctx context.Context, numero, id int64) error
}

// BlobStore guarda o conteúdo dos anexos.
type BlobStore interface {
	Put(ctx context.Context, obj storage.Object) error
	Get(ctx context.Context, key string) (*storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// AttachmentService aplica as regras de visibilidade das requisições aos anexos.
type AttachmentService struct {
	requests *Service
	store    AttachmentStore
	blobs    BlobStore
	logger   zerolog.Logger
}

func NewAttachmentService(requests *Service, store AttachmentStore, blobs BlobStore) *AttachmentService {
	if blobs == nil {
		blobs = storage.Noop{}
	}
	// a remoção da requisição também apaga o conteúdo dos anexos
	requests.blobs = blobs
	return &AttachmentService{
		requests: requests,
		store:    store,
		blobs:    blobs,
		logger:   log.With().Str("component", "attachments").Logger(),
	}
}

// CanRemoveAttachment: quem enviou ou TI.
func CanRemoveAttachment(actor Actor, a Attachment) bool {
	return actor.Role == RoleTI || a.EnviadoPor.Same(actor.UserRef)
}

// Upload anexa um arquivo a uma requisição visível ao usuário.
func (s *AttachmentService) Upload(ctx context.Context, actor Actor, numero int64, upload AttachmentUpload) (*Attachment, error) {
	if err := upload.validate(); err != nil {
		return nil, err
	}
	req, err := s.requests.Get(ctx, actor, numero)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("anexos/%d/%s%s", req.Numero, uuid.NewString(), strings.ToLower(filepath.Ext(upload.NomeOriginal)))
	if err := s.blobs.Put(ctx, storage.Object{Key: key, ContentType: upload.ContentType, Body: upload.Data}); err != nil {
		return nil, fmt.Errorf("enviar anexo: %w", err)
	}

	now := s.requests.engine.now()
	a, err := s.store.CreateAttachment(ctx, Attachment{
		Numero:       req.Numero,
		NomeOriginal: upload.NomeOriginal,
		ContentType:  upload.ContentType,
		Tamanho:      int64(len(upload.Data)),
		Chave:        key,
		EnviadoPor:   actor.UserRef,
		DataUpload:   now,
	}, HistoryEntry{
		Usuario:   actor.UserRef,
		Acao:      ActionAttachmentAdded,
		Descricao: "Anexo adicionado: " + upload.NomeOriginal,
		DataAcao:  now,
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, key); derr != nil {
			s.logger.Warn().Err(derr).Str("chave", key).Msg("objeto órfão no storage")
		}
		return nil, fmt.Errorf("registrar anexo: %w", err)
	}
	return &a, nil
}

// List devolve os anexos da requisição, mais antigos primeiro.
func (s *AttachmentService) List(ctx context.Context, actor Actor, numero int64) ([]Attachment, error) {
	req, err := s.requests.Get(ctx, actor, numero)
	if err != nil {
		return nil, err
	}
	if req.Anexos == nil {
		return []Attachment{}, nil
	}
	return req.Anexos, nil
}

// Download devolve metadados e conteúdo do anexo.
func (s *AttachmentService) Download(ctx context.Context, actor Actor, numero, id int64) (*Attachment, []byte, error) {
	if _, err := s.requests.Get(ctx, actor, numero); err != nil {
		return nil, nil, err
	}
	a, err := s.store.GetAttachment(ctx, numero, id)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.blobs.Get(ctx, a.Chave)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Str("chave", a.Chave).Int64("anexo", a.ID).Msg("anexo sem conteúdo no storage")
		return nil, nil, ErrAttachmentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("baixar anexo: %w", err)
	}
	return &a, obj.Body, nil
}

// Delete remove metadados e conteúdo. O conteúdo é apagado por último e
// uma falha ali só é registrada.
func (s *AttachmentService) Delete(ctx context.Context, actor Actor, numero, id int64) error {
	if _, err := s.requests.Get(ctx, actor, numero); err != nil {
		return err
	}
	a, err := s.store.GetAttachment(ctx, numero, id)
	if err != nil {
		return err
	}
	if !CanRemoveAttachment(actor, a) {
		return ErrForbidden
	}
	if err := s.store.DeleteAttachment(ctx, numero, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, a.Chave); err != nil {
		s.logger.Warn().Err(err).Str("chave", a.Chave).Msg("objeto órfão no storage")
	}
	return nil
}
