package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/api/dto"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
	"github.com/spec-kit/support-bot/pkg/util/validatorutil"
)

// TicketsHandler exposes the ticket lifecycle to admins.
type TicketsHandler struct {
	tickets *service.TicketService
	users   *service.AuthService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, users *service.AuthService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, users: users}
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter, err := parseTicketQuery(c, principal.Admin.AdminID)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketList(tickets)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	resp := dto.TicketDetailResponse{TicketResponse: dto.NewTicketResponse(ticket)}
	if h.users != nil {
		user, err := h.users.GetUser(c.UserContext(), ticket.UserID)
		if err != nil && !apperrors.IsCode(err, apperrors.CodeNotFound) {
			return err
		}
		resp.User = dto.NewUserResponse(user)
	}
	return c.JSON(fiber.Map{"data": resp})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	entries, err := h.tickets.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewLogEntryList(entries)})
}

// Claim POST /tickets/:id/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.ClaimTicket(c.UserContext(), id, principal.Admin.AdminID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Respond POST /tickets/:id/responses.
func (h *TicketsHandler) Respond(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.RecordResponseRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := validatorutil.Struct(req); err != nil {
		return err
	}
	ticket, err := h.tickets.RecordResponse(c.UserContext(), id, principal.Admin.AdminID, domain.TextPayload(req.Text))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Close POST /tickets/:id/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.CloseTicket(c.UserContext(), id, principal.Admin.AdminID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// SetPriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) SetPriority(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := ticketID(c)
	if err != nil {
		return err
	}
	var req dto.SetPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Priority = domain.TicketPriority(strings.ToUpper(string(req.Priority)))
	if err := validatorutil.Struct(req); err != nil {
		return err
	}
	ticket, err := h.tickets.SetPriority(c.UserContext(), id, principal.Admin.AdminID, req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

func ticketID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	return id, nil
}

// parseTicketQuery reads status, priority, assignee (an id or "me"), missed,
// page and page_size.
func parseTicketQuery(c *fiber.Ctx, selfID int64) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	for _, part := range splitList(c.Query("status")) {
		status := domain.TicketStatus(strings.ToUpper(part))
		if !status.Valid() {
			return filter, apperrors.NewValidationError("unknown status", map[string]any{"status": part})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, part := range splitList(c.Query("priority")) {
		priority := domain.TicketPriority(strings.ToUpper(part))
		if !priority.Valid() {
			return filter, apperrors.NewValidationError("unknown priority", map[string]any{"priority": part})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	switch assignee := c.Query("assignee"); assignee {
	case "":
	case "me":
		filter.AssigneeID = &selfID
	default:
		id, err := strconv.ParseInt(assignee, 10, 64)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid assignee", map[string]any{"assignee": assignee})
		}
		filter.AssigneeID = &id
	}
	if raw := c.Query("missed"); raw != "" {
		missed, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid missed flag", map[string]any{"missed": raw})
		}
		filter.Missed = &missed
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter, nil
}

func splitList(raw string) []string {
	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
