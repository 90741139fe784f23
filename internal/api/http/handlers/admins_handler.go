package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-bot/internal/api/dto"
	"github.com/spec-kit/support-bot/internal/service"
	apperrors "github.com/spec-kit/support-bot/pkg/util/errorutil"
	"github.com/spec-kit/support-bot/pkg/util/validatorutil"
)

// AdminsHandler manages the admin roster. Routes are owner only.
type AdminsHandler struct {
	service *service.AdminService
}

// NewAdminsHandler constructs handler.
func NewAdminsHandler(adminService *service.AdminService) *AdminsHandler {
	return &AdminsHandler{service: adminService}
}

// List GET /admins.
func (h *AdminsHandler) List(c *fiber.Ctx) error {
	admins, err := h.service.ListAdmins(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.AdminResponse, 0, len(admins))
	for i := range admins {
		items = append(items, dto.NewAdminResponse(&admins[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Create POST /admins.
func (h *AdminsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := validatorutil.Struct(req); err != nil {
		return err
	}
	admin, err := h.service.AddAdmin(c.UserContext(), principal.Admin.AdminID, req.AdminID, req.DisplayName)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAdminResponse(admin)})
}
