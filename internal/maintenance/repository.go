package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/manutencao/requisicoes/internal/db"
)

// querier é satisfeito tanto pelo pool quanto por uma transação.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provê acesso às tabelas de requisições.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria instância do repositório.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `
        r.numero_requisicao, r.data_criacao, r.data_atualizacao,
        s.id, s.username, s.first_name, s.last_name, s.email,
        r.prazo_limite, r.setor_solicitante, r.tipo_manutencao, r.status_operacional,
        r.equipamentos_impactados, r.outros_equipamentos, r.titulo_curto, r.descricao_problema,
        r.prioridade, r.status, r.motivo_cancelamento, r.motivo_parada,
        m.id, m.username, m.first_name, m.last_name, m.email,
        r.data_prevista_termino, r.hora_inicio, r.hora_termino,
        r.descricao_manutencao, r.materiais_utilizados
    FROM requisicoes r
    JOIN usuarios s ON s.id = r.solicitante_id
    LEFT JOIN usuarios m ON m.id = r.responsavel_id`

// CreateRequest insere a requisição com a entrada de criação no histórico.
func (r *Repository) CreateRequest(ctx context.Context, solicitante UserRef, input CreateInput, entry HistoryEntry) (*Request, error) {
	var created *Request
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		const insert = `
            INSERT INTO requisicoes (
                solicitante_id, prazo_limite, setor_solicitante, tipo_manutencao, status_operacional,
                equipamentos_impactados, outros_equipamentos, titulo_curto, descricao_problema,
                prioridade, status, data_criacao, data_atualizacao
            )
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
            RETURNING numero_requisicao
        `

		equipment := make([]string, len(input.EquipamentosImpactados))
		for i, eq := range input.EquipamentosImpactados {
			equipment[i] = string(eq)
		}

		var numero int64
		if err := tx.QueryRow(ctx, insert,
			solicitante.ID,
			input.PrazoLimite.Time,
			input.SetorSolicitante,
			string(input.TipoManutencao),
			string(input.StatusOperacional),
			equipment,
			input.OutrosEquipamentos,
			input.TituloCurto,
			input.DescricaoProblema,
			int(input.Prioridade),
			string(StatusAberta),
			entry.DataAcao,
		).Scan(&numero); err != nil {
			return err
		}

		if err := insertHistory(ctx, tx, numero, entry); err != nil {
			return err
		}

		req, err := getRequest(ctx, tx, numero, false)
		if err != nil {
			return err
		}
		created = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetRequest busca a requisição com o histórico completo.
func (r *Repository) GetRequest(ctx context.Context, numero int64) (*Request, error) {
	return getRequest(ctx, r.pool, numero, false)
}

// ListRequests lista requisições mais recentes primeiro, sem histórico.
func (r *Repository) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error) {
	var (
		clauses []string
		args    []any
		idx     = 1
	)

	if filter.SolicitanteID != nil {
		clauses = append(clauses, fmt.Sprintf("r.solicitante_id = $%d", idx))
		args = append(args, *filter.SolicitanteID)
		idx++
	}
	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		clauses = append(clauses, fmt.Sprintf("r.status = ANY($%d)", idx))
		args = append(args, statuses)
		idx++
	}

	query := "SELECT " + requestColumns
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY r.data_criacao DESC, r.numero_requisicao DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// UpdateRequest aplica fn sob SELECT ... FOR UPDATE e grava o resultado na mesma transação.
func (r *Repository) UpdateRequest(ctx context.Context, numero int64, fn func(current *Request) (*Request, error)) (*Request, error) {
	var updated *Request
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		current, err := getRequest(ctx, tx, numero, true)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var responsavelID *int64
		if next.Responsavel != nil {
			id := next.Responsavel.ID
			responsavelID = &id
		}
		var prevista *time.Time
		if next.DataPrevistaTermino != nil {
			t := next.DataPrevistaTermino.Time
			prevista = &t
		}

		const update = `
            UPDATE requisicoes
            SET status = $1,
                motivo_cancelamento = $2,
                motivo_parada = $3,
                responsavel_id = $4,
                data_prevista_termino = $5,
                hora_inicio = $6,
                hora_termino = $7,
                descricao_manutencao = $8,
                materiais_utilizados = $9,
                data_atualizacao = $10
            WHERE numero_requisicao = $11
        `
		if _, err := tx.Exec(ctx, update,
			string(next.Status),
			next.MotivoCancelamento,
			next.MotivoParada,
			responsavelID,
			prevista,
			next.HoraInicio,
			next.HoraTermino,
			next.DescricaoManutencao,
			next.MateriaisUtilizados,
			next.DataAtualizacao,
			numero,
		); err != nil {
			return err
		}

		for _, entry := range next.Historico {
			if entry.ID != 0 {
				continue
			}
			if err := insertHistory(ctx, tx, numero, entry); err != nil {
				return err
			}
		}

		updated, err = getRequest(ctx, tx, numero, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteRequest remove requisição; histórico e notificações caem em cascata.
func (r *Repository) DeleteRequest(ctx context.Context, numero int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM requisicoes WHERE numero_requisicao = $1`, numero)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountRequests conta total, abertas e concluídas; solicitanteID nil conta todas.
func (r *Repository) CountRequests(ctx context.Context, solicitanteID *int64) (Counters, error) {
	open := make([]string, len(OpenStatuses))
	for i, s := range OpenStatuses {
		open[i] = string(s)
	}

	query := `
        SELECT count(*),
               count(*) FILTER (WHERE status = ANY($1)),
               count(*) FILTER (WHERE status = $2)
        FROM requisicoes`
	args := []any{open, string(StatusConcluida)}
	if solicitanteID != nil {
		query += " WHERE solicitante_id = $3"
		args = append(args, *solicitanteID)
	}

	var c Counters
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&c.Total, &c.Open, &c.Completed); err != nil {
		return Counters{}, err
	}
	return c, nil
}

func getRequest(ctx context.Context, q querier, numero int64, lock bool) (*Request, error) {
	query := "SELECT " + requestColumns + " WHERE r.numero_requisicao = $1"
	if lock {
		query += " FOR UPDATE OF r"
	}

	req, err := scanRequest(q.QueryRow(ctx, query, numero))
	if err != nil {
		return nil, err
	}

	history, err := listHistory(ctx, q, numero)
	if err != nil {
		return nil, err
	}
	req.Historico = history

	anexos, err := listAttachments(ctx, q, numero)
	if err != nil {
		return nil, err
	}
	req.Anexos = anexos
	return req, nil
}

func insertHistory(ctx context.Context, q querier, numero int64, entry HistoryEntry) error {
	const query = `
        INSERT INTO requisicao_historico (numero_requisicao, usuario_id, acao, descricao, data_acao)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := q.Exec(ctx, query, numero, entry.Usuario.ID, entry.Acao, entry.Descricao, entry.DataAcao)
	return err
}

func listHistory(ctx context.Context, q querier, numero int64) ([]HistoryEntry, error) {
	const query = `
        SELECT h.id, u.id, u.username, u.first_name, u.last_name, u.email, h.acao, h.descricao, h.data_acao
        FROM requisicao_historico h
        JOIN usuarios u ON u.id = h.usuario_id
        WHERE h.numero_requisicao = $1
        ORDER BY h.data_acao ASC, h.id ASC
    `

	rows, err := q.Query(ctx, query, numero)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []HistoryEntry{}
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.Usuario.ID, &h.Usuario.Username, &h.Usuario.FirstName, &h.Usuario.LastName, &h.Usuario.Email, &h.Acao, &h.Descricao, &h.DataAcao); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

// CreateAttachment registra o anexo e a entrada de histórico na mesma transação.
func (r *Repository) CreateAttachment(ctx context.Context, a Attachment, entry HistoryEntry) (Attachment, error) {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE requisicoes SET data_atualizacao = $1 WHERE numero_requisicao = $2`, entry.DataAcao, a.Numero)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		const insert = `
            INSERT INTO requisicao_anexos (numero_requisicao, nome_original, content_type, tamanho, chave, enviado_por, data_upload)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
            RETURNING id
        `
		if err := tx.QueryRow(ctx, insert, a.Numero, a.NomeOriginal, a.ContentType, a.Tamanho, a.Chave, a.EnviadoPor.ID, a.DataUpload).Scan(&a.ID); err != nil {
			return err
		}
		return insertHistory(ctx, tx, a.Numero, entry)
	})
	if err != nil {
		return Attachment{}, err
	}
	return a, nil
}

func (r *Repository) GetAttachment(ctx context.Context, numero, id int64) (Attachment, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+attachmentColumns+" WHERE a.numero_requisicao = $1 AND a.id = $2", numero, id)
	a, err := scanAttachment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Attachment{}, ErrAttachmentNotFound
	}
	return a, err
}

func (r *Repository) DeleteAttachment(ctx context.Context, numero, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM requisicao_anexos WHERE numero_requisicao = $1 AND id = $2`, numero, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}

const attachmentColumns = `
        a.id, a.numero_requisicao, a.nome_original, a.content_type, a.tamanho, a.chave,
        u.id, u.username, u.first_name, u.last_name, u.email, a.data_upload
    FROM requisicao_anexos a
    JOIN usuarios u ON u.id = a.enviado_por`

func listAttachments(ctx context.Context, q querier, numero int64) ([]Attachment, error) {
	rows, err := q.Query(ctx, "SELECT "+attachmentColumns+" WHERE a.numero_requisicao = $1 ORDER BY a.data_upload ASC, a.id ASC", numero)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	anexos := []Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		anexos = append(anexos, a)
	}
	return anexos, rows.Err()
}

func scanAttachment(row pgx.Row) (Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.Numero, &a.NomeOriginal, &a.ContentType, &a.Tamanho, &a.Chave,
		&a.EnviadoPor.ID, &a.EnviadoPor.Username, &a.EnviadoPor.FirstName, &a.EnviadoPor.LastName, &a.EnviadoPor.Email,
		&a.DataUpload)
	return a, err
}

func scanRequest(row pgx.Row) (*Request, error) {
	var (
		req        Request
		prazo      time.Time
		tipo       string
		operacao   string
		equipment  []string
		prioridade int
		status     string
		respID     *int64
		respUser   *string
		respFirst  *string
		respLast   *string
		respEmail  *string
		prevista   *time.Time
	)

	err := row.Scan(
		&req.Numero, &req.DataCriacao, &req.DataAtualizacao,
		&req.Solicitante.ID, &req.Solicitante.Username, &req.Solicitante.FirstName, &req.Solicitante.LastName, &req.Solicitante.Email,
		&prazo, &req.SetorSolicitante, &tipo, &operacao,
		&equipment, &req.OutrosEquipamentos, &req.TituloCurto, &req.DescricaoProblema,
		&prioridade, &status, &req.MotivoCancelamento, &req.MotivoParada,
		&respID, &respUser, &respFirst, &respLast, &respEmail,
		&prevista, &req.HoraInicio, &req.HoraTermino,
		&req.DescricaoManutencao, &req.MateriaisUtilizados,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	req.PrazoLimite = Date{Time: prazo}
	req.TipoManutencao = MaintenanceType(tipo)
	req.StatusOperacional = OperationalStatus(operacao)
	req.Prioridade = Priority(prioridade)
	req.Status = Status(status)
	req.EquipamentosImpactados = make([]Equipment, len(equipment))
	for i, eq := range equipment {
		req.EquipamentosImpactados[i] = Equipment(eq)
	}
	if respID != nil {
		req.Responsavel = &UserRef{
			ID:        *respID,
			Username:  deref(respUser),
			FirstName: deref(respFirst),
			LastName:  deref(respLast),
			Email:     deref(respEmail),
		}
	}
	if prevista != nil {
		req.DataPrevistaTermino = &Date{Time: *prevista}
	}
	return &req, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
