package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/manutencao/requisicoes/internal/maintenance"
)

// campo multipart do arquivo
const attachmentField = "arquivo"

// UploadAttachment recebe um arquivo multipart e anexa à requisição.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.attachmentsEnabled(w) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maintenance.MaxAttachmentBytes+(1<<20))
	if err := r.ParseMultipartForm(maintenance.MaxAttachmentBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, CodeValidation, "arquivo muito grande", map[string]string{"field": attachmentField})
			return
		}
		writeFieldError(w, attachmentField, "dados multipart inválidos")
		return
	}
	defer r.MultipartForm.RemoveAll()

	header, err := firstFile(r.MultipartForm, attachmentField)
	if err != nil {
		writeFieldError(w, attachmentField, err.Error())
		return
	}
	data, err := readMultipartFile(header, maintenance.MaxAttachmentBytes)
	if err != nil {
		writeFieldError(w, attachmentField, err.Error())
		return
	}

	a, err := h.attachments.Upload(r.Context(), actor, numero, maintenance.AttachmentUpload{
		NomeOriginal: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Data:         data,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, a)
}

// ListAttachments lista os anexos da requisição.
func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	if !h.attachmentsEnabled(w) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}

	list, err := h.attachments.List(r.Context(), actor, numero)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, list)
}

// DownloadAttachment devolve o conteúdo bruto, fora do envelope.
func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.attachmentsEnabled(w) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}
	id, ok := attachmentID(w, r)
	if !ok {
		return
	}

	a, body, err := h.attachments.Download(r.Context(), actor, numero, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.NomeOriginal}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// DeleteAttachment remove o anexo.
func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if !h.attachmentsEnabled(w) {
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	numero, ok := requestNumber(w, r)
	if !ok {
		return
	}
	id, ok := attachmentID(w, r)
	if !ok {
		return
	}

	if err := h.attachments.Delete(r.Context(), actor, numero, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) attachmentsEnabled(w http.ResponseWriter) bool {
	if h.attachments == nil {
		WriteError(w, http.StatusServiceUnavailable, CodeInternal, "armazenamento indisponível", nil)
		return false
	}
	return true
}

func attachmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "attachmentID")), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, CodeValidation, "id do anexo inválido", nil)
		return 0, false
	}
	return id, true
}

func firstFile(form *multipart.Form, field string) (*multipart.FileHeader, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, errors.New("arquivo ausente")
	}
	return form.File[field][0], nil
}

func readMultipartFile(header *multipart.FileHeader, limit int64) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir arquivo: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, limit+1)); err != nil {
		return nil, fmt.Errorf("falha ao ler arquivo: %w", err)
	}
	if int64(buf.Len()) > limit {
		return nil, fmt.Errorf("arquivo excede %d MiB", limit>>20)
	}
	return buf.Bytes(), nil
}
