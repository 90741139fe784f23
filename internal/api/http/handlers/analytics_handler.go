package handlers

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/service"
)

// AnalyticsHandler serves statistics and exports.
type AnalyticsHandler struct {
	service *service.AnalyticsService
}

// NewAnalyticsHandler constructs handler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: analytics}
}

// TicketStats GET /analytics/tickets?period=day|week|month.
func (h *AnalyticsHandler) TicketStats(c *fiber.Ctx) error {
	period, err := service.ParsePeriod(c.Query("period"))
	if err != nil {
		return err
	}
	stats, err := h.service.TicketStats(c.UserContext(), period)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// SLAMetrics GET /analytics/sla.
func (h *AnalyticsHandler) SLAMetrics(c *fiber.Ctx) error {
	metrics, err := h.service.SLAMetrics(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": metrics})
}

// HourlyActivity GET /analytics/hourly.
func (h *AnalyticsHandler) HourlyActivity(c *fiber.Ctx) error {
	hours, err := h.service.HourlyDistribution(c.UserContext())
	if err != nil {
		return err
	}
	peak, count := hours.Peak()
	return c.JSON(fiber.Map{"data": fiber.Map{
		"hours":      hours,
		"peak_hour":  peak,
		"peak_count": count,
	}})
}

// MyStats GET /analytics/admins/me.
func (h *AnalyticsHandler) MyStats(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	adminID := principal.Admin.AdminID
	stats, err := h.service.AdminStats(c.UserContext(), &adminID)
	if err != nil {
		return err
	}
	mine := service.AdminStats{AdminID: adminID, DisplayName: principal.Admin.DisplayName}
	if len(stats) > 0 {
		mine = stats[0]
	}
	return c.JSON(fiber.Map{"data": mine})
}

// AdminStats GET /analytics/admins.
func (h *AnalyticsHandler) AdminStats(c *fiber.Ctx) error {
	stats, err := h.service.AdminStats(c.UserContext(), nil)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// MissedStats GET /analytics/missed.
func (h *AnalyticsHandler) MissedStats(c *fiber.Ctx) error {
	stats, err := h.service.MissedStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// ExportTickets GET /exports/tickets.csv. Accepts the same filters as
// GET /tickets plus period=day|week|month; without page_size every match is
// exported.
func (h *AnalyticsHandler) ExportTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c, principal.Admin.AdminID)
	if err != nil {
		return err
	}
	if c.Query("page_size") == "" {
		filter.Limit, filter.Offset = 0, 0
	}
	if raw := c.Query("period"); raw != "" {
		period, err := service.ParsePeriod(raw)
		if err != nil {
			return err
		}
		from := h.service.PeriodStart(period)
		filter.CreatedFrom = &from
	}

	var buf bytes.Buffer
	rows, err := h.service.ExportTicketsCSV(c.UserContext(), &buf, filter)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="tickets.csv"`)
	c.Set("X-Total-Count", fmt.Sprint(rows))
	return c.Send(buf.Bytes())
}
