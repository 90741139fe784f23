package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/repository"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	ownerID int64 = 1382917630
	staffA  int64 = 11
	staffB  int64 = 12
	userID  int64 = 500
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store      *repository.MemoryStore
	repos      repository.Set
	clock      *clock.Manual
	dispatcher *recordingDispatcher
	tickets    *TicketService
	admins     *AdminService
	auth       *AuthService
	analytics  *AnalyticsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(t0)
	store := repository.NewMemoryStore(clk)
	repos := store.Set()
	dispatcher := &recordingDispatcher{}
	roles := NewRoleResolver(repos.Users, repos.Admins)

	f := &fixture{
		store:      store,
		repos:      repos,
		clock:      clk,
		dispatcher: dispatcher,
		tickets: NewTicketService(TicketDependencies{
			TicketRepo: repos.Tickets,
			LogRepo:    repos.Logs,
			UserRepo:   repos.Users,
			AdminRepo:  repos.Admins,
			Roles:      roles,
			Dispatcher: dispatcher,
			Clock:      clk,
			Logger:     zap.NewNop(),
		}),
		admins: NewAdminService(AdminDependencies{AdminRepo: repos.Admins, Roles: roles}),
		auth:   NewAuthService(AuthDependencies{UserRepo: repos.Users, AdminRepo: repos.Admins, DefaultRegion: "RU"}),
		analytics: NewAnalyticsService(AnalyticsDependencies{
			TicketRepo: repos.Tickets,
			AdminRepo:  repos.Admins,
			Clock:      clk,
		}),
	}

	ctx := context.Background()
	require.NoError(t, f.admins.BootstrapOwners(ctx, []int64{ownerID}))
	_, err := f.admins.AddAdmin(ctx, ownerID, staffA, "anna")
	require.NoError(t, err)
	_, err = f.admins.AddAdmin(ctx, ownerID, staffB, "boris")
	require.NoError(t, err)
	_, err = f.auth.RegisterUser(ctx, userID, "client", "+79161234567")
	require.NoError(t, err)
	return f
}

func (f *fixture) openTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := f.tickets.CreateTicket(context.Background(), userID, "", domain.TextPayload("printer is on fire"))
	require.NoError(t, err)
	return ticket
}

func (f *fixture) claimedTicket(t *testing.T, adminID int64) *domain.Ticket {
	t.Helper()
	ticket := f.openTicket(t)
	claimed, err := f.tickets.ClaimTicket(context.Background(), ticket.ID, adminID)
	require.NoError(t, err)
	return claimed
}
