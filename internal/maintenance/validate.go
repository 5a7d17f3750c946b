package maintenance

import (
	"strings"
	"unicode/utf8"
)

const maxTitleLength = 200

// Normalize limpa o formulário e aplica defaults antes da validação.
func (in *CreateInput) Normalize() {
	in.SetorSolicitante = strings.TrimSpace(in.SetorSolicitante)
	in.TituloCurto = strings.TrimSpace(in.TituloCurto)
	in.DescricaoProblema = strings.TrimSpace(in.DescricaoProblema)
	in.OutrosEquipamentos = strings.TrimSpace(in.OutrosEquipamentos)
	in.TipoManutencao = MaintenanceType(strings.ToUpper(strings.TrimSpace(string(in.TipoManutencao))))
	in.StatusOperacional = OperationalStatus(strings.ToUpper(strings.TrimSpace(string(in.StatusOperacional))))
	if in.Prioridade == 0 {
		in.Prioridade = PriorityMin
	}

	seen := make(map[Equipment]struct{}, len(in.EquipamentosImpactados))
	equipment := make([]Equipment, 0, len(in.EquipamentosImpactados))
	for _, eq := range in.EquipamentosImpactados {
		eq = Equipment(strings.ToUpper(strings.TrimSpace(string(eq))))
		if eq == "" {
			continue
		}
		if _, dup := seen[eq]; dup {
			continue
		}
		seen[eq] = struct{}{}
		equipment = append(equipment, eq)
	}
	in.EquipamentosImpactados = equipment
}

// Validate devolve o primeiro campo inválido do formulário.
func (in CreateInput) Validate() error {
	switch {
	case in.TituloCurto == "":
		return invalid("titulo_curto", "título obrigatório")
	case utf8.RuneCountInString(in.TituloCurto) > maxTitleLength:
		return invalid("titulo_curto", "título deve ter no máximo 200 caracteres")
	case in.DescricaoProblema == "":
		return invalid("descricao_problema", "descrição do problema obrigatória")
	case in.SetorSolicitante == "":
		return invalid("setor_solicitante", "setor obrigatório")
	case in.PrazoLimite.IsZero():
		return invalid("prazo_limite", "prazo limite obrigatório")
	case !in.TipoManutencao.Valid():
		return &ValidationError{Field: "tipo_manutencao", Message: ErrInvalidType.Error(), Err: ErrInvalidType}
	case !in.StatusOperacional.Valid():
		return invalid("status_operacional", "status operacional inválido")
	case !in.Prioridade.Valid():
		return &ValidationError{Field: "prioridade", Message: ErrInvalidPriority.Error(), Err: ErrInvalidPriority}
	}
	for _, eq := range in.EquipamentosImpactados {
		if !eq.Valid() {
			return &ValidationError{Field: "equipamentos_impactados", Message: ErrInvalidEquipment.Error() + ": " + string(eq), Err: ErrInvalidEquipment}
		}
	}
	return nil
}
