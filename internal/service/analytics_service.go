package service

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/repository"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

// Period selects the window of ticket statistics.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts day, week or month. Empty input means day.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PeriodDay, nil
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", apperrors.NewValidationError("period must be day, week or month", map[string]any{"period": raw})
}

// Window returns the length of the period.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// TicketStats summarizes tickets created within a period.
type TicketStats struct {
	Period   Period                      `json:"period"`
	From     time.Time                   `json:"from"`
	To       time.Time                   `json:"to"`
	Total    int                         `json:"total"`
	ByStatus map[domain.TicketStatus]int `json:"by_status"`
	Missed   int                         `json:"missed"`
}

// AdminStats summarizes one admin's workload.
type AdminStats struct {
	AdminID          int64   `json:"admin_id"`
	DisplayName      string  `json:"display_name"`
	TotalTickets     int     `json:"total_tickets"`
	Closed           int     `json:"closed"`
	Missed           int     `json:"missed"`
	Answered         int     `json:"answered"`
	AvgResponseSecs  float64 `json:"avg_response_seconds"`
	AvgResolvingSecs float64 `json:"avg_resolution_seconds"`
}

// MissedStats reports missed responses per admin.
type MissedStats struct {
	AdminID       int64   `json:"admin_id"`
	DisplayName   string  `json:"display_name"`
	TotalTickets  int     `json:"total_tickets"`
	TotalMissed   int     `json:"total_missed"`
	MissedPercent float64 `json:"missed_percent"`
}

// SLAMetrics reports how many closed tickets kept the response deadline.
type SLAMetrics struct {
	TotalClosed   int     `json:"total_closed"`
	OnTime        int     `json:"on_time"`
	Missed        int     `json:"missed"`
	OnTimePercent float64 `json:"on_time_percent"`
	MissedPercent float64 `json:"missed_percent"`
}

// HourlyActivity is the number of tickets created in each UTC hour of day.
type HourlyActivity [24]int

// Peak returns the busiest hour and its count. Ties go to the earliest hour.
func (h HourlyActivity) Peak() (hour, count int) {
	for i, n := range h {
		if n > count {
			hour, count = i, n
		}
	}
	return hour, count
}

// AnalyticsService runs read-only aggregations over the store.
type AnalyticsService struct {
	tickets repository.TicketRepository
	admins  repository.AdminRepository
	clock   clock.Clock
}

// AnalyticsDependencies bundles collaborators for analytics.
type AnalyticsDependencies struct {
	TicketRepo repository.TicketRepository
	AdminRepo  repository.AdminRepository
	Clock      clock.Clock
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(deps AnalyticsDependencies) *AnalyticsService {
	clk := deps.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &AnalyticsService{tickets: deps.TicketRepo, admins: deps.AdminRepo, clock: clk}
}

// TicketStats counts tickets created within the period ending now.
func (s *AnalyticsService) TicketStats(ctx context.Context, period Period) (*TicketStats, error) {
	to := s.clock.Now()
	from := to.Add(-period.Window())
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{CreatedFrom: &from, CreatedTo: &to})
	if err != nil {
		return nil, mapStoreErr(err, "ticket", nil)
	}
	stats := &TicketStats{
		Period: period,
		From:   from,
		To:     to,
		ByStatus: map[domain.TicketStatus]int{
			domain.TicketStatusOpen:       0,
			domain.TicketStatusInProgress: 0,
			domain.TicketStatusClosed:     0,
		},
	}
	for _, t := range tickets {
		stats.Total++
		stats.ByStatus[t.Status]++
		if t.MissedFlag {
			stats.Missed++
		}
	}
	return stats, nil
}

// SLAMetrics counts closed tickets with and without a missed response.
func (s *AnalyticsService) SLAMetrics(ctx context.Context) (*SLAMetrics, error) {
	closed, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusClosed},
	})
	if err != nil {
		return nil, mapStoreErr(err, "ticket", nil)
	}
	m := &SLAMetrics{TotalClosed: len(closed)}
	for _, t := range closed {
		if t.MissedFlag {
			m.Missed++
		} else {
			m.OnTime++
		}
	}
	if m.TotalClosed > 0 {
		m.OnTimePercent = roundHundredth(float64(m.OnTime) * 100 / float64(m.TotalClosed))
		m.MissedPercent = roundHundredth(float64(m.Missed) * 100 / float64(m.TotalClosed))
	}
	return m, nil
}

// HourlyDistribution counts every ticket by the UTC hour it was created in.
func (s *AnalyticsService) HourlyDistribution(ctx context.Context) (HourlyActivity, error) {
	var hours HourlyActivity
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{})
	if err != nil {
		return hours, mapStoreErr(err, "ticket", nil)
	}
	for _, t := range tickets {
		hours[t.CreatedAt.UTC().Hour()]++
	}
	return hours, nil
}

// AdminStats aggregates tickets per claimant. With adminID set only that admin
// is reported, even when it has no tickets.
func (s *AnalyticsService) AdminStats(ctx context.Context, adminID *int64) ([]AdminStats, error) {
	admins, err := s.adminIndex(ctx)
	if err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{AssignedAdminID: adminID})
	if err != nil {
		return nil, mapStoreErr(err, "ticket", nil)
	}

	type acc struct {
		AdminStats
		responseSum   time.Duration
		resolutionSum time.Duration
	}
	byAdmin := map[int64]*acc{}
	get := func(id int64) *acc {
		a, ok := byAdmin[id]
		if !ok {
			a = &acc{AdminStats: AdminStats{AdminID: id, DisplayName: admins[id].DisplayName}}
			byAdmin[id] = a
		}
		return a
	}
	if adminID != nil {
		get(*adminID)
	}
	for _, t := range tickets {
		if t.AssignedAdminID == nil {
			continue
		}
		a := get(*t.AssignedAdminID)
		a.TotalTickets++
		if t.MissedFlag {
			a.Missed++
		}
		if t.FirstResponseAt != nil {
			a.Answered++
			a.responseSum += t.FirstResponseAt.Sub(t.CreatedAt)
		}
		if t.ClosedAt != nil {
			a.Closed++
			a.resolutionSum += t.ClosedAt.Sub(t.CreatedAt)
		}
	}

	result := make([]AdminStats, 0, len(byAdmin))
	for _, a := range byAdmin {
		if a.Answered > 0 {
			a.AvgResponseSecs = roundTenth(a.responseSum.Seconds() / float64(a.Answered))
		}
		if a.Closed > 0 {
			a.AvgResolvingSecs = roundTenth(a.resolutionSum.Seconds() / float64(a.Closed))
		}
		result = append(result, a.AdminStats)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AdminID < result[j].AdminID })
	return result, nil
}

// MissedStats reports, for every admin, how many claimed tickets were flagged.
func (s *AnalyticsService) MissedStats(ctx context.Context) ([]MissedStats, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, mapStoreErr(err, "admin", nil)
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{})
	if err != nil {
		return nil, mapStoreErr(err, "ticket", nil)
	}
	total := map[int64]int{}
	missed := map[int64]int{}
	for _, t := range tickets {
		if t.AssignedAdminID == nil {
			continue
		}
		total[*t.AssignedAdminID]++
		if t.MissedFlag {
			missed[*t.AssignedAdminID]++
		}
	}
	result := make([]MissedStats, 0, len(admins))
	for _, admin := range admins {
		row := MissedStats{
			AdminID:      admin.AdminID,
			DisplayName:  admin.DisplayName,
			TotalTickets: total[admin.AdminID],
			TotalMissed:  missed[admin.AdminID],
		}
		if row.TotalTickets > 0 {
			row.MissedPercent = roundTenth(float64(row.TotalMissed) * 100 / float64(row.TotalTickets))
		}
		result = append(result, row)
	}
	return result, nil
}

var exportHeader = []string{
	"id", "user_id", "status", "priority", "assigned_admin_id", "missed",
	"created_at", "first_response_at", "closed_at", "text",
}

// PeriodStart returns the start of the period ending now.
func (s *AnalyticsService) PeriodStart(period Period) time.Time {
	return s.clock.Now().Add(-period.Window())
}

// ExportPeriodCSV exports the tickets created within the period ending now.
func (s *AnalyticsService) ExportPeriodCSV(ctx context.Context, w io.Writer, period Period) (int, error) {
	from := s.PeriodStart(period)
	return s.ExportTicketsCSV(ctx, w, TicketListFilter{CreatedFrom: &from})
}

// ExportTicketsCSV writes tickets matching filter as CSV and returns the row count.
func (s *AnalyticsService) ExportTicketsCSV(ctx context.Context, w io.Writer, filter TicketListFilter) (int, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		UserID:          filter.UserID,
		AssignedAdminID: filter.AssigneeID,
		Statuses:        filter.Statuses,
		Priorities:      filter.Priorities,
		Missed:          filter.Missed,
		CreatedFrom:     filter.CreatedFrom,
		Limit:           filter.Limit,
		Offset:          filter.Offset,
	})
	if err != nil {
		return 0, mapStoreErr(err, "ticket", nil)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}
	for _, t := range tickets {
		payload, _ := domain.DecodePayload(t.Payload)
		if err := cw.Write([]string{
			strconv.FormatInt(t.ID, 10),
			strconv.FormatInt(t.UserID, 10),
			string(t.Status),
			string(t.Priority),
			formatOptionalID(t.AssignedAdminID),
			strconv.FormatBool(t.MissedFlag),
			t.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(t.FirstResponseAt),
			formatOptionalTime(t.ClosedAt),
			payload.Summary(),
		}); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(tickets), cw.Error()
}

func (s *AnalyticsService) adminIndex(ctx context.Context) (map[int64]domain.Admin, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, mapStoreErr(err, "admin", nil)
	}
	index := make(map[int64]domain.Admin, len(admins))
	for _, a := range admins {
		index[a.AdminID] = a
	}
	return index, nil
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func roundTenth(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}

func roundHundredth(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
