package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
)

const (
	timeLayout     = "2006-01-02 15:04"
	listSummaryLen = 40
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func formatTicket(t *domain.Ticket, user *domain.User, payload domain.MessagePayload) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket #%d [%s] priority %s\n", t.ID, t.Status, t.Priority)
	if user != nil {
		fmt.Fprintf(&sb, "From: %s (id %d)", user.DisplayName, user.UserID)
		if user.ContactPhone != "" {
			fmt.Fprintf(&sb, ", %s", user.ContactPhone)
		}
		sb.WriteString("\n")
	} else {
		fmt.Fprintf(&sb, "From: id %d\n", t.UserID)
	}
	fmt.Fprintf(&sb, "Created: %s UTC\n", t.CreatedAt.UTC().Format(timeLayout))
	if t.AssignedAdminID != nil {
		fmt.Fprintf(&sb, "Claimed by: %d\n", *t.AssignedAdminID)
	}
	if t.FirstResponseAt != nil {
		fmt.Fprintf(&sb, "First response: %s UTC\n", t.FirstResponseAt.UTC().Format(timeLayout))
	}
	if t.ClosedAt != nil {
		fmt.Fprintf(&sb, "Closed: %s UTC\n", t.ClosedAt.UTC().Format(timeLayout))
	}
	if t.MissedFlag {
		sb.WriteString("Response was missed\n")
	}
	if text := payload.Summary(); text != "" {
		sb.WriteString("\n" + text)
	} else if payload.MediaKind != domain.MediaNone {
		fmt.Fprintf(&sb, "\n[%s]", payload.MediaKind)
	}
	return sb.String()
}

func formatTicketList(title string, tickets []domain.Ticket) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d):\n", title, len(tickets))
	for i, t := range tickets {
		if i == maxListButtons {
			fmt.Fprintf(&sb, "...and %d more", len(tickets)-maxListButtons)
			break
		}
		payload, _ := domain.DecodePayload(t.Payload)
		summary := payload.Summary()
		if summary == "" && payload.MediaKind != domain.MediaNone {
			summary = "[" + string(payload.MediaKind) + "]"
		}
		fmt.Fprintf(&sb, "#%d %s %s: %s\n", t.ID, t.Priority, t.CreatedAt.UTC().Format(timeLayout),
			truncate(strings.ReplaceAll(summary, "\n", " "), listSummaryLen))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTicketStats(s *service.TicketStats, sla *service.SLAMetrics, hours service.HourlyActivity) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Tickets since %s UTC (%s):\nTotal: %d\nOpen: %d\nIn progress: %d\nClosed: %d\nMissed responses: %d",
		s.From.UTC().Format(timeLayout), s.Period, s.Total,
		s.ByStatus[domain.TicketStatusOpen],
		s.ByStatus[domain.TicketStatusInProgress],
		s.ByStatus[domain.TicketStatusClosed],
		s.Missed)
	if sla != nil {
		fmt.Fprintf(&sb, "\n\nSLA over %d closed tickets: %.2f%% on time, %.2f%% missed",
			sla.TotalClosed, sla.OnTimePercent, sla.MissedPercent)
	}
	if hour, count := hours.Peak(); count > 0 {
		fmt.Fprintf(&sb, "\n\nActivity by hour (UTC):")
		for h, n := range hours {
			if n > 0 {
				fmt.Fprintf(&sb, "\n%02d:00 %d", h, n)
			}
		}
		fmt.Fprintf(&sb, "\nBusiest hour: %02d:00 (%d tickets)", hour, count)
	}
	return sb.String()
}

func formatAdminStats(title string, stats []service.AdminStats) string {
	var sb strings.Builder
	sb.WriteString(title + ":")
	if len(stats) == 0 {
		sb.WriteString(" no tickets yet.")
	}
	for _, s := range stats {
		name := s.DisplayName
		if name == "" {
			name = formatID(s.AdminID)
		}
		fmt.Fprintf(&sb, "\n%s: %d tickets, %d answered, %d closed, %d missed, first response %s, resolution %s",
			name, s.TotalTickets, s.Answered, s.Closed, s.Missed,
			formatSeconds(s.AvgResponseSecs), formatSeconds(s.AvgResolvingSecs))
	}
	return sb.String()
}

func formatMissedStats(stats []service.MissedStats) string {
	var sb strings.Builder
	sb.WriteString("Missed responses:")
	for _, s := range stats {
		name := s.DisplayName
		if name == "" {
			name = formatID(s.AdminID)
		}
		fmt.Fprintf(&sb, "\n%s: %d of %d (%.1f%%)", name, s.TotalMissed, s.TotalTickets, s.MissedPercent)
	}
	return sb.String()
}

func formatAdmins(admins []domain.Admin) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Admins (%d):", len(admins))
	for _, a := range admins {
		fmt.Fprintf(&sb, "\n%d %s [%s]", a.AdminID, a.DisplayName, a.Role)
	}
	return sb.String()
}

func formatSeconds(secs float64) string {
	if secs <= 0 {
		return "n/a"
	}
	return (time.Duration(secs * float64(time.Second))).Round(time.Second).String()
}
