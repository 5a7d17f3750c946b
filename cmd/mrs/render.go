package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/service"
	"github.com/manutencao/requisicoes/internal/session"
)

const timeLayout = "02/01/2006 15:04"

var statusColors = map[maintenance.Status]lipgloss.Color{
	maintenance.StatusAberta:        lipgloss.Color("12"),
	maintenance.StatusVisualizada:   lipgloss.Color("14"),
	maintenance.StatusAceita:        lipgloss.Color("13"),
	maintenance.StatusEmAtendimento: lipgloss.Color("11"),
	maintenance.StatusParada:        lipgloss.Color("208"),
	maintenance.StatusConcluida:     lipgloss.Color("10"),
	maintenance.StatusCancelada:     lipgloss.Color("9"),
}

var priorityColors = map[maintenance.Priority]lipgloss.Color{
	1: lipgloss.Color("8"),
	2: lipgloss.Color("12"),
	3: lipgloss.Color("11"),
	4: lipgloss.Color("208"),
	5: lipgloss.Color("9"),
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
)

func statusBadge(s maintenance.Status) string {
	color, ok := statusColors[s]
	if !ok {
		color = lipgloss.Color("7")
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true).Render(s.Label())
}

func priorityBadge(p maintenance.Priority) string {
	color, ok := priorityColors[p]
	if !ok {
		color = lipgloss.Color("7")
	}
	return lipgloss.NewStyle().Foreground(color).Bold(p >= 4).Render(fmt.Sprintf("P%d %s", p, p.Label()))
}

func roleBadge(r maintenance.Role) string {
	return lipgloss.NewStyle().Bold(true).Render(r.Label())
}

func renderList(out io.Writer, reqs []maintenance.Request) {
	if len(reqs) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("Nenhuma requisição encontrada."))
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTATUS\tPRIORIDADE\tTÍTULO\tSOLICITANTE\tRESPONSÁVEL\tCRIADA EM")
	for _, r := range reqs {
		responsible := "-"
		if r.Responsavel != nil {
			responsible = r.Responsavel.Username
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Numero,
			statusBadge(r.Status),
			priorityBadge(r.Prioridade),
			truncate(r.TituloCurto, 40),
			r.Solicitante.Username,
			responsible,
			r.DataCriacao.Local().Format(timeLayout),
		)
	}
	_ = tw.Flush()
}

func renderDetail(out io.Writer, r *maintenance.Request) {
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Requisição #%d - %s", r.Numero, r.TituloCurto)))
	fmt.Fprintln(out)

	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render(label+":"), value)
	}

	field("Status", statusBadge(r.Status))
	field("Prioridade", priorityBadge(r.Prioridade))
	field("Solicitante", fmt.Sprintf("%s (%s)", r.Solicitante.Username, r.SetorSolicitante))
	if r.Responsavel != nil {
		field("Responsável", r.Responsavel.Username)
	}
	field("Tipo", string(r.TipoManutencao))
	field("Operação", string(r.StatusOperacional))
	equipment := make([]string, 0, len(r.EquipamentosImpactados))
	for _, e := range r.EquipamentosImpactados {
		equipment = append(equipment, string(e))
	}
	field("Equipamentos", strings.Join(equipment, ", "))
	field("Outros", r.OutrosEquipamentos)
	field("Prazo", r.PrazoLimite.String())
	if r.DataPrevistaTermino != nil {
		field("Previsão", r.DataPrevistaTermino.String())
	}
	if r.HoraInicio != nil {
		field("Início", r.HoraInicio.Local().Format(timeLayout))
	}
	if r.HoraTermino != nil {
		field("Término", r.HoraTermino.Local().Format(timeLayout))
	}
	field("Motivo da parada", r.MotivoParada)
	field("Motivo do cancelamento", r.MotivoCancelamento)

	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Render("Problema"))
	fmt.Fprintln(out, r.DescricaoProblema)

	if r.DescricaoManutencao != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, labelStyle.Render("Manutenção realizada"))
		fmt.Fprintln(out, r.DescricaoManutencao)
		if r.MateriaisUtilizados != "" {
			fmt.Fprintf(out, "%s %s\n", mutedStyle.Render("Materiais:"), r.MateriaisUtilizados)
		}
	}

	if len(r.Anexos) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, labelStyle.Render("Anexos"))
		renderAttachments(out, r.Anexos)
	}

	if len(r.Historico) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, labelStyle.Render("Histórico"))
		for _, h := range r.Historico {
			fmt.Fprintf(out, "  %s  %-14s %s\n", mutedStyle.Render(h.DataAcao.Local().Format(timeLayout)), h.Usuario.Username, h.Descricao)
		}
	}
}

func renderDashboard(out io.Writer, user session.User, dash maintenance.Dashboard) {
	fmt.Fprintln(out, headerStyle.Render("Olá, "+user.DisplayName()))
	fmt.Fprintln(out)

	if maintenance.IsStaff(user.ProfileType) && dash.TotalRequests != nil {
		fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Total de requisições:"), *dash.TotalRequests)
		if dash.OpenRequests != nil {
			fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Em aberto:"), *dash.OpenRequests)
		}
		if dash.CompletedRequests != nil {
			fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Concluídas:"), *dash.CompletedRequests)
		}
	}
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Minhas requisições:"), dash.MyRequestsCount)
	fmt.Fprintf(out, "%s %d\n", labelStyle.Render("Minhas em aberto:"), dash.MyOpenRequests)

	fmt.Fprintln(out)
	fmt.Fprintln(out, labelStyle.Render("Recentes"))
	renderList(out, dash.RecentRequests)
}

func renderNotifications(out io.Writer, items []notification.Notification) {
	if len(items) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("Nenhuma notificação."))
		return
	}
	for _, n := range items {
		marker := "●"
		if n.Lida {
			marker = mutedStyle.Render("○")
		}
		ref := ""
		if n.Numero != nil {
			ref = fmt.Sprintf(" #%d", *n.Numero)
		}
		fmt.Fprintf(out, "%s [%d]%s %s\n   %s %s\n", marker, n.ID, ref, labelStyle.Render(n.Titulo), n.Mensagem, mutedStyle.Render(n.DataCriacao.Local().Format(timeLayout)))
	}
}

func renderProfiles(out io.Writer, profiles []service.Profile) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSUÁRIO\tNOME\tPERFIL\tSETOR")
	for _, p := range profiles {
		setor := p.Setor
		if setor == "" {
			setor = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Username, strings.TrimSpace(p.FirstName+" "+p.LastName), roleBadge(p.ProfileType), setor)
	}
	_ = tw.Flush()
}

func renderAttachments(out io.Writer, items []maintenance.Attachment) {
	if len(items) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("Nenhum anexo."))
		return
	}
	for _, a := range items {
		fmt.Fprintf(out, "  [%d] %s %s %s %s\n", a.ID, a.NomeOriginal, mutedStyle.Render(humanSize(a.Tamanho)), a.EnviadoPor.Username, mutedStyle.Render(a.DataUpload.Local().Format(timeLayout)))
	}
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// renderSuccessors mostra para onde a requisição pode seguir no modo estrito.
func renderSuccessors(out io.Writer, from maintenance.Status) {
	next := maintenance.Successors(from)
	if len(next) == 0 {
		fmt.Fprintf(out, "%s é um estado final.\n", statusBadge(from))
		return
	}
	badges := make([]string, len(next))
	for i, s := range next {
		badges[i] = statusBadge(s)
	}
	fmt.Fprintf(out, "A partir de %s: %s\n", statusBadge(from), strings.Join(badges, " "))
}

func truncate(s string, max int) string {
	if lipgloss.Width(s) <= max {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > max {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
