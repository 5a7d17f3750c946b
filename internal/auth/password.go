package auth

import (
	"errors"
	"strings"

	"github.com/alexedwards/argon2id"
)

// MinPasswordLength vale para senhas gravadas pelo seed e pelo --hash.
const MinPasswordLength = 8

var ErrWeakPassword = errors.New("senha curta demais")

var params = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash gera o hash Argon2id guardado em usuarios.senha_hash.
func Hash(password string) (string, error) {
	if len([]rune(strings.TrimSpace(password))) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	return argon2id.CreateHash(password, params)
}

// Verify compara a senha com o hash. Usuário sem hash nunca autentica.
func Verify(password, encodedHash string) (bool, error) {
	if encodedHash == "" || password == "" {
		return false, nil
	}
	return argon2id.ComparePasswordAndHash(password, encodedHash)
}
