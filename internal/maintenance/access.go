package maintenance

import "strings"

// IsStaff indica perfis com acesso à visão geral e ao dashboard global.
func IsStaff(role Role) bool {
	switch role {
	case RoleManutencao, RoleGestor, RoleTI:
		return true
	}
	return false
}

// CanTransition indica perfis que podem alterar o status de uma requisição.
func CanTransition(role Role) bool {
	return role == RoleManutencao || role == RoleTI
}

// CanView indica se o usuário enxerga a requisição.
func CanView(viewer Actor, req *Request) bool {
	if req == nil || !viewer.Role.Valid() {
		return false
	}
	if IsStaff(viewer.Role) {
		return true
	}
	return req.Solicitante.Same(viewer.UserRef)
}

// CanDelete permite exclusão pelo autor enquanto aberta, ou por TI.
func CanDelete(viewer Actor, req *Request) bool {
	if req == nil {
		return false
	}
	if viewer.Role == RoleTI {
		return true
	}
	return req.Status == StatusAberta && req.Solicitante.Same(viewer.UserRef)
}

// Visible filtra o conjunto que o usuário pode ver, mantendo a ordem.
func Visible(viewer Actor, reqs []Request) []Request {
	out := make([]Request, 0, len(reqs))
	for i := range reqs {
		if CanView(viewer, &reqs[i]) {
			out = append(out, reqs[i])
		}
	}
	return out
}

// StatusFilter é "all" ou um status concreto.
type StatusFilter string

const FilterAll StatusFilter = "all"

// ParseStatusFilter aceita "all"/vazio ou um status válido.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, string(FilterAll)) {
		return FilterAll, nil
	}
	s, err := ParseStatus(raw)
	if err != nil {
		return "", err
	}
	return StatusFilter(s), nil
}

// FilterByStatus é um filtro estável: preserva a ordem relativa de reqs.
func FilterByStatus(reqs []Request, filter StatusFilter) []Request {
	if filter == "" || filter == FilterAll {
		return append([]Request(nil), reqs...)
	}
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if string(r.Status) == string(filter) {
			out = append(out, r)
		}
	}
	return out
}
