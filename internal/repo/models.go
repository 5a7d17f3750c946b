package repo

import "time"

// Usuario representa quem acessa o sistema de requisições.
type Usuario struct {
	ID          int64
	Username    string
	FirstName   string
	LastName    string
	Email       string
	SenhaHash   string
	ProfileType string
	Setor       string
	Telefone    string
	Ativo       bool
	CriadoEm    time.Time
}

// UpsertUsuarioParams agrupa os campos gravados pelo seed.
type UpsertUsuarioParams struct {
	Username    string
	FirstName   string
	LastName    string
	Email       string
	SenhaHash   string
	ProfileType string
	Setor       string
	Telefone    string
}
