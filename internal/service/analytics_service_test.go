package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-bot/internal/domain"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		raw     string
		want    Period
		wantErr bool
	}{
		{raw: "", want: PeriodDay},
		{raw: "Week", want: PeriodWeek},
		{raw: "month", want: PeriodMonth},
		{raw: "year", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePeriod(tt.raw)
		if tt.wantErr {
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestTicketStatsWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTicket(t)
	f.clock.Advance(3 * 24 * time.Hour)
	f.claimedTicket(t, staffA)
	f.openTicket(t)

	day, err := f.analytics.TicketStats(ctx, PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 2, day.Total)
	assert.Equal(t, 1, day.ByStatus[domain.TicketStatusOpen])
	assert.Equal(t, 1, day.ByStatus[domain.TicketStatusInProgress])

	week, err := f.analytics.TicketStats(ctx, PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 3, week.Total)
}

func TestAdminAndMissedStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	answered := f.claimedTicket(t, staffA)
	f.clock.Advance(2 * time.Minute)
	_, err := f.tickets.RecordResponse(ctx, answered.ID, staffA, domain.TextPayload("ok"))
	require.NoError(t, err)

	missed := f.claimedTicket(t, staffA)
	ok, err := f.tickets.FlagMissedResponse(ctx, *missed)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := f.analytics.AdminStats(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, staffA, all[0].AdminID)
	assert.Equal(t, "anna", all[0].DisplayName)
	assert.Equal(t, 2, all[0].TotalTickets)
	assert.Equal(t, 1, all[0].Missed)
	assert.Equal(t, 120.0, all[0].AvgResponseSecs)

	idle := staffB
	single, err := f.analytics.AdminStats(ctx, &idle)
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Zero(t, single[0].TotalTickets)

	rows, err := f.analytics.MissedStats(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		if row.AdminID == staffA {
			assert.Equal(t, 1, row.TotalMissed)
			assert.Equal(t, 50.0, row.MissedPercent)
		} else {
			assert.Zero(t, row.MissedPercent)
		}
	}
}

func TestExportTicketsCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openTicket(t)
	f.claimedTicket(t, staffB)

	var buf bytes.Buffer
	n, err := f.analytics.ExportTicketsCSV(ctx, &buf, TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeader, records[0])
	assert.Equal(t, "IN_PROGRESS", records[1][2])
	assert.Equal(t, "12", records[1][4])
	assert.Equal(t, "printer is on fire", records[2][9])
}

func TestSLAMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.analytics.SLAMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, SLAMetrics{}, *empty)

	for i := 0; i < 2; i++ {
		ticket := f.claimedTicket(t, staffA)
		_, err := f.tickets.RecordResponse(ctx, ticket.ID, staffA, domain.TextPayload("done"))
		require.NoError(t, err)
		_, err = f.tickets.CloseTicket(ctx, ticket.ID, staffA)
		require.NoError(t, err)
	}
	late := f.claimedTicket(t, staffB)
	ok, err := f.tickets.FlagMissedResponse(ctx, *late)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.tickets.CloseTicket(ctx, late.ID, staffB)
	require.NoError(t, err)
	f.claimedTicket(t, staffB)

	sla, err := f.analytics.SLAMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sla.TotalClosed)
	assert.Equal(t, 2, sla.OnTime)
	assert.Equal(t, 1, sla.Missed)
	assert.Equal(t, 66.67, sla.OnTimePercent)
	assert.Equal(t, 33.33, sla.MissedPercent)
}

func TestHourlyDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTicket(t)
	f.openTicket(t)
	f.clock.Advance(5 * time.Hour)
	f.openTicket(t)
	f.clock.Advance(24 * time.Hour)
	f.openTicket(t)

	hours, err := f.analytics.HourlyDistribution(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, hours[9])
	assert.Equal(t, 2, hours[14])

	hour, count := hours.Peak()
	assert.Equal(t, 9, hour)
	assert.Equal(t, 2, count)
}

func TestExportPeriodCSV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.openTicket(t)
	f.clock.Advance(10 * 24 * time.Hour)
	recent := f.openTicket(t)

	var week bytes.Buffer
	n, err := f.analytics.ExportPeriodCSV(ctx, &week, PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	records, err := csv.NewReader(&week).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, formatOptionalID(&recent.ID), records[1][0])

	var month bytes.Buffer
	n, err = f.analytics.ExportPeriodCSV(ctx, &month, PeriodMonth)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
