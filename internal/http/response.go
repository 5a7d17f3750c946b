package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Códigos de erro do envelope.
const (
	CodeValidation = "VALIDATION"
	CodeAuth       = "AUTH"
	CodeForbidden  = "FORBIDDEN"
	CodeNotFound   = "NOT_FOUND"
	CodeInternal   = "INTERNAL"
)

const maxBodyBytes = 1 << 20

// Envelope é o formato de toda resposta JSON: exatamente um entre data e
// error é preenchido; o outro sai como null.
type Envelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, Envelope{Data: data})
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	writeEnvelope(w, status, Envelope{Error: &ErrorBody{Code: code, Message: message, Details: details}})
}

// writeFieldError aponta o campo inválido em details.field.
func writeFieldError(w http.ResponseWriter, field, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidation, message, map[string]string{"field": field})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// decodeBody lê o JSON do corpo limitado a 1 MiB. Com optional, corpo vazio
// é aceito. Em falha já responde 400 e devolve false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, CodeValidation, "corpo da requisição muito grande", nil)
		return false
	}
	WriteError(w, http.StatusBadRequest, CodeValidation, "JSON inválido", nil)
	return false
}
