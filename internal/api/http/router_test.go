package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/service"
)

const (
	ownerID int64 = 1382917630
	staffA  int64 = 11
	staffB  int64 = 12
	userID  int64 = 500
)

type apiFixture struct {
	app     *fiber.App
	clock   *clock.Manual
	store   *repository.MemoryStore
	tokens  *auth.TokenManager
	tickets *service.TicketService
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	store := repository.NewMemoryStore(clk)
	repos := store.Set()
	ctx := context.Background()

	require.NoError(t, repos.Users.Upsert(ctx, &domain.User{UserID: userID, DisplayName: "Ivan", ContactPhone: "+79991234567"}))
	require.NoError(t, repos.Admins.Create(ctx, &domain.Admin{AdminID: ownerID, DisplayName: "owner", Role: domain.AdminRoleOwner}))
	require.NoError(t, repos.Admins.Create(ctx, &domain.Admin{AdminID: staffA, DisplayName: "anna", Role: domain.AdminRoleStaff}))
	require.NoError(t, repos.Admins.Create(ctx, &domain.Admin{AdminID: staffB, DisplayName: "boris", Role: domain.AdminRoleStaff}))

	roles := service.NewRoleResolver(repos.Users, repos.Admins)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repos.Tickets,
		LogRepo:    repos.Logs,
		UserRepo:   repos.Users,
		AdminRepo:  repos.Admins,
		Roles:      roles,
		Clock:      clk,
	})
	users := service.NewAuthService(service.AuthDependencies{UserRepo: repos.Users, AdminRepo: repos.Admins, TokenManager: tokens})
	admins := service.NewAdminService(service.AdminDependencies{AdminRepo: repos.Admins, Roles: roles})
	analytics := service.NewAnalyticsService(service.AnalyticsDependencies{TicketRepo: repos.Tickets, AdminRepo: repos.Admins, Clock: clk})

	metrics := observability.NewMetrics()
	app := NewApp(config.AppConfig{Name: "support-bot-test"}, zap.NewNop(), metrics)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-bot", "test", map[string]handlers.Pinger{"store": store}),
		Tickets:        handlers.NewTicketsHandler(tickets, users),
		Admins:         handlers.NewAdminsHandler(admins),
		Analytics:      handlers.NewAnalyticsHandler(analytics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.Admins),
		Metrics:        metrics,
	})
	return &apiFixture{app: app, clock: clk, store: store, tokens: tokens, tickets: tickets}
}

func (f *apiFixture) openTicket(t *testing.T) int64 {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), userID, "", domain.TextPayload("printer on fire"))
	require.NoError(t, err)
	return ticket.ID
}

func (f *apiFixture) do(t *testing.T, method, path string, adminID int64, body string) (int, map[string]any) {
	t.Helper()
	status, raw := f.doRaw(t, method, path, adminID, body)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return status, decoded
}

func (f *apiFixture) doRaw(t *testing.T, method, path string, adminID int64, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if adminID != 0 {
		token, _, err := f.tokens.GenerateToken(adminID, domain.AdminRoleStaff)
		require.NoError(t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func errorCode(body map[string]any) string {
	errBody, _ := body["error"].(map[string]any)
	code, _ := errBody["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPI(t)

	status, body := f.do(t, fiber.MethodGet, "/health/live", 0, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = f.do(t, fiber.MethodGet, "/health/ready", 0, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	f.store.FailWith(repository.ErrUnavailable)
	status, body = f.do(t, fiber.MethodGet, "/health/ready", 0, "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPI(t)
	f.do(t, fiber.MethodGet, "/health/live", 0, "")

	status, raw := f.doRaw(t, fiber.MethodGet, "/metrics", 0, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "# TYPE")
}

func TestAPIRequiresToken(t *testing.T) {
	f := newAPI(t)

	status, body := f.do(t, fiber.MethodGet, "/api/v1/tickets", 0, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	// tokens of removed or unknown admins are rejected
	status, body = f.do(t, fiber.MethodGet, "/api/v1/tickets", 999, "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))
}

func TestUnknownRoute(t *testing.T) {
	f := newAPI(t)
	status, body := f.do(t, fiber.MethodGet, "/nope", 0, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestTicketLifecycleOverAPI(t *testing.T) {
	f := newAPI(t)
	id := f.openTicket(t)
	base := "/api/v1/tickets/" + jsonID(id)

	status, body := f.do(t, fiber.MethodGet, "/api/v1/tickets?status=open", staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = f.do(t, fiber.MethodGet, base, staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "printer on fire", data["text"])
	assert.Equal(t, "Ivan", data["user"].(map[string]any)["display_name"])

	status, body = f.do(t, fiber.MethodPost, base+"/claim", staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "IN_PROGRESS", body["data"].(map[string]any)["status"])

	status, body = f.do(t, fiber.MethodPost, base+"/claim", staffB, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ALREADY_CLAIMED", errorCode(body))

	status, body = f.do(t, fiber.MethodPost, base+"/responses", staffB, `{"text":"hi"}`)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "NOT_CLAIMANT", errorCode(body))

	status, body = f.do(t, fiber.MethodPost, base+"/responses", staffA, `{"text":"  "}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = f.do(t, fiber.MethodPost, base+"/responses", staffA, `{"text":"turn it off and on"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.NotNil(t, body["data"].(map[string]any)["first_response_at"])

	status, body = f.do(t, fiber.MethodPatch, base+"/priority", staffA, `{"priority":"vip"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "VIP", body["data"].(map[string]any)["priority"])

	status, body = f.do(t, fiber.MethodPatch, base+"/priority", staffA, `{"priority":"LOW"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = f.do(t, fiber.MethodPost, base+"/close", staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "CLOSED", body["data"].(map[string]any)["status"])

	status, body = f.do(t, fiber.MethodPost, base+"/claim", staffB, "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", errorCode(body))

	status, body = f.do(t, fiber.MethodGet, base+"/history", staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	var actions []string
	for _, item := range body["data"].([]any) {
		actions = append(actions, item.(map[string]any)["action"].(string))
	}
	assert.Equal(t, []string{"ticket_created", "ticket_claimed", "ticket_answered", "priority_changed", "ticket_closed"}, actions)
}

func TestTicketQueryValidation(t *testing.T) {
	f := newAPI(t)

	status, body := f.do(t, fiber.MethodGet, "/api/v1/tickets?status=pending", staffA, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = f.do(t, fiber.MethodGet, "/api/v1/tickets/abc", staffA, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = f.do(t, fiber.MethodGet, "/api/v1/tickets/42", staffA, "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestAssignedToMe(t *testing.T) {
	f := newAPI(t)
	mine := f.openTicket(t)
	f.openTicket(t)
	_, err := f.tickets.ClaimTicket(context.Background(), mine, staffA)
	require.NoError(t, err)

	status, body := f.do(t, fiber.MethodGet, "/api/v1/tickets?assignee=me", staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, float64(mine), items[0].(map[string]any)["id"])
}

func TestOwnerOnlyRoutes(t *testing.T) {
	f := newAPI(t)

	for _, path := range []string{"/api/v1/admins", "/api/v1/analytics/admins", "/api/v1/analytics/missed", "/api/v1/exports/tickets.csv"} {
		status, body := f.do(t, fiber.MethodGet, path, staffA, "")
		assert.Equal(t, fiber.StatusForbidden, status, path)
		assert.Equal(t, "PERMISSION_DENIED", errorCode(body), path)
	}

	status, _ := f.do(t, fiber.MethodGet, "/api/v1/analytics/tickets?period=week", staffA, "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAdminManagement(t *testing.T) {
	f := newAPI(t)

	status, body := f.do(t, fiber.MethodPost, "/api/v1/admins", ownerID, `{"admin_id":77,"display_name":"vera"}`)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "STAFF", body["data"].(map[string]any)["role"])

	status, body = f.do(t, fiber.MethodPost, "/api/v1/admins", ownerID, `{"admin_id":77}`)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", errorCode(body))

	status, body = f.do(t, fiber.MethodPost, "/api/v1/admins", ownerID, `{"display_name":"nobody"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = f.do(t, fiber.MethodGet, "/api/v1/admins", ownerID, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 4)
}

func TestAnalyticsOverAPI(t *testing.T) {
	f := newAPI(t)
	id := f.openTicket(t)
	_, err := f.tickets.ClaimTicket(context.Background(), id, staffA)
	require.NoError(t, err)

	status, body := f.do(t, fiber.MethodGet, "/api/v1/analytics/tickets", staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["data"].(map[string]any)["total"])

	status, body = f.do(t, fiber.MethodGet, "/api/v1/analytics/tickets?period=year", staffA, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = f.do(t, fiber.MethodGet, "/api/v1/analytics/admins/me", staffA, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["data"].(map[string]any)["total_tickets"])

	status, body = f.do(t, fiber.MethodGet, "/api/v1/analytics/admins/me", staffB, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(0), body["data"].(map[string]any)["total_tickets"])

	status, body = f.do(t, fiber.MethodGet, "/api/v1/analytics/missed", ownerID, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["data"], 3)

	_, err = f.tickets.CloseTicket(context.Background(), id, staffA)
	require.NoError(t, err)
	status, body = f.do(t, fiber.MethodGet, "/api/v1/analytics/sla", staffB, "")
	require.Equal(t, fiber.StatusOK, status)
	sla := body["data"].(map[string]any)
	assert.Equal(t, float64(1), sla["total_closed"])
	assert.Equal(t, float64(100), sla["on_time_percent"])

	status, body = f.do(t, fiber.MethodGet, "/api/v1/analytics/hourly", staffB, "")
	require.Equal(t, fiber.StatusOK, status)
	hourly := body["data"].(map[string]any)
	assert.Len(t, hourly["hours"], 24)
	assert.Equal(t, float64(9), hourly["peak_hour"])
	assert.Equal(t, float64(1), hourly["peak_count"])
}

func TestExportCSV(t *testing.T) {
	f := newAPI(t)
	f.openTicket(t)
	f.openTicket(t)

	status, raw := f.doRaw(t, fiber.MethodGet, "/api/v1/exports/tickets.csv", ownerID, "")
	require.Equal(t, fiber.StatusOK, status)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id,user_id,status"))

	f.clock.Advance(2 * 24 * time.Hour)
	f.openTicket(t)
	status, raw = f.doRaw(t, fiber.MethodGet, "/api/v1/exports/tickets.csv?period=day", ownerID, "")
	require.Equal(t, fiber.StatusOK, status)
	lines = strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 2)

	status, _ = f.doRaw(t, fiber.MethodGet, "/api/v1/exports/tickets.csv?period=year", ownerID, "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func jsonID(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
