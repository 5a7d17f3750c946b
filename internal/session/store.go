package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// storageKey é a única chave do arquivo de sessão.
const storageKey = "user"

// ErrCorrupt indica arquivo de sessão ilegível.
var ErrCorrupt = errors.New("sessão local corrompida")

// Storage persiste o usuário autenticado entre execuções.
type Storage interface {
	Load() (*User, error)
	Save(user User) error
	Clear() error
}

// FilePath devolve o caminho do arquivo de sessão. MRS_SESSION_FILE tem
// precedência; depois $XDG_CONFIG_HOME/requisicoes/session.json.
func FilePath() string {
	if envPath := os.Getenv("MRS_SESSION_FILE"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "requisicoes-session.json")
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "requisicoes", "session.json")
}

// FileStore guarda a sessão como JSON em disco, legível só pelo dono.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = FilePath()
	}
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load lê a sessão; arquivo ausente não é erro e devolve nil.
func (s *FileStore) Load() (*User, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ler sessão %s: %w", s.path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	raw, ok := doc[storageKey]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if user.Token == "" || user.Username == "" {
		return nil, fmt.Errorf("%w: token ou username ausente", ErrCorrupt)
	}
	return &user, nil
}

// Save grava a sessão com permissão 0600, criando o diretório com 0700.
func (s *FileStore) Save(user User) error {
	data, err := json.MarshalIndent(map[string]User{storageKey: user}, "", "  ")
	if err != nil {
		return fmt.Errorf("serializar sessão: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("criar diretório %s: %w", dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("gravar sessão %s: %w", s.path, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("gravar sessão %s: %w", s.path, err)
	}
	return nil
}

// Clear remove o arquivo; ausência não é erro.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remover sessão %s: %w", s.path, err)
	}
	return nil
}
