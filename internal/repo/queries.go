// Package repo concentra as consultas de usuários.
package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Queries executa consultas sobre a tabela usuarios.
type Queries struct {
	pool *pgxpool.Pool
}

// New cria o conjunto de consultas.
func New(pool *pgxpool.Pool) *Queries {
	return &Queries{pool: pool}
}

const usuarioColumns = `id, username, first_name, last_name, email, senha_hash, profile_type, setor, telefone, ativo, criado_em`

// GetUsuarioByUsername busca pelo login, sem diferenciar maiúsculas.
func (q *Queries) GetUsuarioByUsername(ctx context.Context, username string) (Usuario, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE lower(username) = lower($1)`, strings.TrimSpace(username))
	return scanUsuario(row)
}

func (q *Queries) GetUsuarioByID(ctx context.Context, id int64) (Usuario, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+usuarioColumns+` FROM usuarios WHERE id = $1`, id)
	return scanUsuario(row)
}

// ListUsuarios lista todos os usuários ordenados pelo login.
func (q *Queries) ListUsuarios(ctx context.Context) ([]Usuario, error) {
	rows, err := q.pool.Query(ctx, `SELECT `+usuarioColumns+` FROM usuarios ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []Usuario
	for rows.Next() {
		u, err := scanUsuario(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertUsuario cria ou atualiza o usuário pelo username.
func (q *Queries) UpsertUsuario(ctx context.Context, arg UpsertUsuarioParams) (Usuario, error) {
	const query = `
        INSERT INTO usuarios (username, first_name, last_name, email, senha_hash, profile_type, setor, telefone)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (username) DO UPDATE
        SET first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            email = EXCLUDED.email,
            senha_hash = EXCLUDED.senha_hash,
            profile_type = EXCLUDED.profile_type,
            setor = EXCLUDED.setor,
            telefone = EXCLUDED.telefone,
            atualizado_em = now()
        RETURNING ` + usuarioColumns

	row := q.pool.QueryRow(ctx, query,
		arg.Username, arg.FirstName, arg.LastName, arg.Email,
		arg.SenhaHash, arg.ProfileType, arg.Setor, arg.Telefone,
	)
	u, err := scanUsuario(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Usuario{}, ErrConflict
		}
		return Usuario{}, err
	}
	return u, nil
}

func scanUsuario(row pgx.Row) (Usuario, error) {
	var u Usuario
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.SenhaHash, &u.ProfileType, &u.Setor, &u.Telefone, &u.Ativo, &u.CriadoEm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Usuario{}, ErrNotFound
		}
		return Usuario{}, err
	}
	return u, nil
}
