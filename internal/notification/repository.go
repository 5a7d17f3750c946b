package notification

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const listLimit = 50

// Repository acessa a tabela notificacoes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertForUser grava uma notificação para um usuário.
func (r *Repository) InsertForUser(ctx context.Context, userID int64, numero *int64, titulo, mensagem string) error {
	const query = `
        INSERT INTO notificacoes (usuario_id, numero_requisicao, titulo, mensagem)
        VALUES ($1, $2, $3, $4)
    `
	_, err := r.pool.Exec(ctx, query, userID, numero, titulo, mensagem)
	return err
}

// InsertForProfile replica a notificação para todos os usuários ativos do perfil.
func (r *Repository) InsertForProfile(ctx context.Context, profile string, numero *int64, titulo, mensagem string) (int64, error) {
	const query = `
        INSERT INTO notificacoes (usuario_id, numero_requisicao, titulo, mensagem)
        SELECT id, $2, $3, $4
        FROM usuarios
        WHERE profile_type = $1 AND ativo
    `
	tag, err := r.pool.Exec(ctx, query, profile, numero, titulo, mensagem)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByUser devolve as notificações mais recentes do usuário.
func (r *Repository) ListByUser(ctx context.Context, userID int64) ([]Notification, error) {
	const query = `
        SELECT id, usuario_id, numero_requisicao, titulo, mensagem, lida, data_criacao
        FROM notificacoes
        WHERE usuario_id = $1
        ORDER BY data_criacao DESC, id DESC
        LIMIT $2
    `

	rows, err := r.pool.Query(ctx, query, userID, listLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkAsRead marca uma notificação do próprio usuário como lida.
func (r *Repository) MarkAsRead(ctx context.Context, userID, id int64) (Notification, error) {
	const query = `
        UPDATE notificacoes SET lida = TRUE
        WHERE id = $1 AND usuario_id = $2
        RETURNING id, usuario_id, numero_requisicao, titulo, mensagem, lida, data_criacao
    `
	n, err := scanNotification(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	return n, nil
}

// MarkAllAsRead marca todas as pendentes e devolve quantas mudaram.
func (r *Repository) MarkAllAsRead(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notificacoes SET lida = TRUE WHERE usuario_id = $1 AND NOT lida`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UsuarioID, &n.Numero, &n.Titulo, &n.Mensagem, &n.Lida, &n.DataCriacao)
	return n, err
}
