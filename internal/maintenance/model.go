package maintenance

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("requisição não encontrada")
	ErrForbidden        = errors.New("perfil sem permissão para esta ação")
	ErrInvalidStatus    = errors.New("status inválido")
	ErrInvalidRole      = errors.New("perfil inválido")
	ErrInvalidPriority  = errors.New("prioridade deve estar entre 1 e 5")
	ErrInvalidType      = errors.New("tipo de manutenção inválido")
	ErrInvalidEquipment = errors.New("equipamento inválido")
)

// Status é o estágio do ciclo de vida de uma requisição.
type Status string

const (
	StatusAberta        Status = "ABERTA"
	StatusVisualizada   Status = "VISUALIZADA"
	StatusAceita        Status = "ACEITA"
	StatusCancelada     Status = "CANCELADA"
	StatusEmAtendimento Status = "EM_ATENDIMENTO"
	StatusParada        Status = "PARADA"
	StatusConcluida     Status = "CONCLUIDA"
)

// Statuses lista os estados na ordem exibida pelo seletor de status.
var Statuses = []Status{
	StatusAberta,
	StatusVisualizada,
	StatusAceita,
	StatusCancelada,
	StatusEmAtendimento,
	StatusParada,
	StatusConcluida,
}

// OpenStatuses são os estados contados como "em aberto" no dashboard.
var OpenStatuses = []Status{StatusAberta, StatusVisualizada, StatusAceita, StatusEmAtendimento}

var statusLabels = map[Status]string{
	StatusAberta:        "Aberta",
	StatusVisualizada:   "Visualizada",
	StatusAceita:        "Aceita",
	StatusCancelada:     "Cancelada",
	StatusEmAtendimento: "Em atendimento",
	StatusParada:        "Parada",
	StatusConcluida:     "Concluída",
}

// ParseStatus normaliza e valida um status recebido de fora.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Valid indica se o status pertence ao conjunto fechado.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Terminal indica estados finais.
func (s Status) Terminal() bool {
	return s == StatusConcluida || s == StatusCancelada
}

// Open indica se o status conta como requisição em aberto.
func (s Status) Open() bool {
	for _, o := range OpenStatuses {
		if o == s {
			return true
		}
	}
	return false
}

func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// Role é o tipo de perfil do usuário.
type Role string

const (
	RoleComum      Role = "COMUM"
	RoleManutencao Role = "MANUTENCAO"
	RoleGestor     Role = "GESTOR"
	RoleTI         Role = "TI"
)

var roleLabels = map[Role]string{
	RoleComum:      "Comum (Requisitante)",
	RoleManutencao: "Manutenção (Recebe Chamado)",
	RoleGestor:     "Gestor (Analisa Dados)",
	RoleTI:         "T.I (Admin)",
}

// ParseRole normaliza o perfil; vazio vira COMUM.
func ParseRole(raw string) (Role, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return RoleComum, nil
	}
	r := Role(raw)
	if _, ok := roleLabels[r]; !ok {
		return "", ErrInvalidRole
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

// MaintenanceType classifica a natureza do reparo.
type MaintenanceType string

const (
	TypeEletrica MaintenanceType = "ELETRICA"
	TypeMecanica MaintenanceType = "MECANICA"
	TypeOutros   MaintenanceType = "OUTROS"
)

func (t MaintenanceType) Valid() bool {
	switch t {
	case TypeEletrica, TypeMecanica, TypeOutros:
		return true
	}
	return false
}

// OperationalStatus descreve o estado do equipamento, independente do status da requisição.
type OperationalStatus string

const (
	OperationalFuncionando OperationalStatus = "FUNCIONANDO"
	OperationalParcial     OperationalStatus = "PARCIAL"
	OperationalInoperante  OperationalStatus = "INOPERANTE"
)

func (o OperationalStatus) Valid() bool {
	switch o {
	case OperationalFuncionando, OperationalParcial, OperationalInoperante:
		return true
	}
	return false
}

// Equipment identifica um equipamento impactado.
type Equipment string

const (
	EquipmentPrensa       Equipment = "PRENSA"
	EquipmentRosqueadeira Equipment = "ROSQUEADEIRA"
	EquipmentRecortador   Equipment = "RECORTADOR"
	EquipmentFresa        Equipment = "FRESA"
	EquipmentOutros       Equipment = "OUTROS"
)

func (e Equipment) Valid() bool {
	switch e {
	case EquipmentPrensa, EquipmentRosqueadeira, EquipmentRecortador, EquipmentFresa, EquipmentOutros:
		return true
	}
	return false
}

// Priority vai de 1 (baixa) a 5 (crítica).
type Priority int

const (
	PriorityMin Priority = 1
	PriorityMax Priority = 5
)

var priorityLabels = map[Priority]string{
	1: "Baixa",
	2: "Normal",
	3: "Média",
	4: "Alta",
	5: "Crítica",
}

func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

func (p Priority) Label() string {
	if label, ok := priorityLabels[p]; ok {
		return label
	}
	return "Normal"
}

// Ações registradas no histórico.
const (
	ActionCreated       = "CRIADA"
	ActionStatusChanged = "STATUS_ALTERADO"
)

// UserRef é o resumo de usuário embutido em requisições e histórico.
type UserRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
}

// Same compara identidades pelo id, ou pelo username quando algum id está ausente.
func (u UserRef) Same(other UserRef) bool {
	if u.ID != 0 && other.ID != 0 {
		return u.ID == other.ID
	}
	return u.Username != "" && strings.EqualFold(u.Username, other.Username)
}

// Actor é quem executa uma ação: identidade mais perfil.
type Actor struct {
	UserRef
	Role Role `json:"profile_type"`
}

// HistoryEntry é um registro imutável de uma ação sobre a requisição.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	Usuario   UserRef   `json:"usuario"`
	Acao      string    `json:"acao"`
	Descricao string    `json:"descricao"`
	DataAcao  time.Time `json:"data_acao"`
}

// Date representa uma data sem horário (AAAA-MM-DD).
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate lê datas no formato AAAA-MM-DD.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(*raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Request representa uma requisição de manutenção.
type Request struct {
	Numero                 int64             `json:"numero_requisicao"`
	DataCriacao            time.Time         `json:"data_criacao"`
	DataAtualizacao        time.Time         `json:"data_atualizacao"`
	Solicitante            UserRef           `json:"solicitante"`
	PrazoLimite            Date              `json:"prazo_limite"`
	SetorSolicitante       string            `json:"setor_solicitante"`
	TipoManutencao         MaintenanceType   `json:"tipo_manutencao"`
	StatusOperacional      OperationalStatus `json:"status_operacional"`
	EquipamentosImpactados []Equipment       `json:"equipamentos_impactados"`
	OutrosEquipamentos     string            `json:"outros_equipamentos"`
	TituloCurto            string            `json:"titulo_curto"`
	DescricaoProblema      string            `json:"descricao_problema"`
	Prioridade             Priority          `json:"prioridade"`
	Status                 Status            `json:"status"`
	MotivoCancelamento     string            `json:"motivo_cancelamento"`
	MotivoParada           string            `json:"motivo_parada"`
	Responsavel            *UserRef          `json:"responsavel_manutencao"`
	DataPrevistaTermino    *Date             `json:"data_prevista_termino"`
	HoraInicio             *time.Time        `json:"hora_inicio"`
	HoraTermino            *time.Time        `json:"hora_termino"`
	DescricaoManutencao    string            `json:"descricao_manutencao"`
	MateriaisUtilizados    string            `json:"materiais_utilizados"`
	Historico              []HistoryEntry    `json:"historico"`
	Anexos                 []Attachment      `json:"anexos"`
}

// Clone devolve cópia profunda; transições nunca alteram a requisição de origem.
func (r *Request) Clone() *Request {
	c := *r
	if r.EquipamentosImpactados != nil {
		c.EquipamentosImpactados = append([]Equipment(nil), r.EquipamentosImpactados...)
	}
	if r.Historico != nil {
		c.Historico = append([]HistoryEntry(nil), r.Historico...)
	}
	if r.Anexos != nil {
		c.Anexos = append([]Attachment(nil), r.Anexos...)
	}
	if r.Responsavel != nil {
		resp := *r.Responsavel
		c.Responsavel = &resp
	}
	if r.DataPrevistaTermino != nil {
		d := *r.DataPrevistaTermino
		c.DataPrevistaTermino = &d
	}
	if r.HoraInicio != nil {
		t := *r.HoraInicio
		c.HoraInicio = &t
	}
	if r.HoraTermino != nil {
		t := *r.HoraTermino
		c.HoraTermino = &t
	}
	return &c
}

// CreateInput encapsula os campos do formulário de nova requisição.
type CreateInput struct {
	PrazoLimite            Date              `json:"prazo_limite"`
	SetorSolicitante       string            `json:"setor_solicitante"`
	TipoManutencao         MaintenanceType   `json:"tipo_manutencao"`
	StatusOperacional      OperationalStatus `json:"status_operacional"`
	EquipamentosImpactados []Equipment       `json:"equipamentos_impactados"`
	OutrosEquipamentos     string            `json:"outros_equipamentos"`
	TituloCurto            string            `json:"titulo_curto"`
	DescricaoProblema      string            `json:"descricao_problema"`
	Prioridade             Priority          `json:"prioridade"`
}

// UpdateInput é a atualização parcial (PATCH); campos nil ficam inalterados.
type UpdateInput struct {
	Status              *Status `json:"status,omitempty"`
	MotivoCancelamento  *string `json:"motivo_cancelamento,omitempty"`
	MotivoParada        *string `json:"motivo_parada,omitempty"`
	DataPrevistaTermino *Date   `json:"data_prevista_termino,omitempty"`
	DescricaoManutencao *string `json:"descricao_manutencao,omitempty"`
	MateriaisUtilizados *string `json:"materiais_utilizados,omitempty"`
}

// CompleteInput carrega os dados de conclusão da manutenção.
type CompleteInput struct {
	DescricaoManutencao string `json:"descricao_manutencao"`
	MateriaisUtilizados string `json:"materiais_utilizados"`
}

// Dashboard agrega contadores e requisições recentes.
type Dashboard struct {
	TotalRequests     *int      `json:"total_requests,omitempty"`
	OpenRequests      *int      `json:"open_requests,omitempty"`
	CompletedRequests *int      `json:"completed_requests,omitempty"`
	MyRequestsCount   int       `json:"my_requests_count"`
	MyOpenRequests    int       `json:"my_open_requests"`
	RecentRequests    []Request `json:"recent_requests"`
}

// Counters é o resultado bruto de contagem por status.
type Counters struct {
	Total     int
	Open      int
	Completed int
}

// RequestFilter restringe a listagem no repositório.
type RequestFilter struct {
	SolicitanteID *int64
	Status        []Status
	Limit         int
}
