package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/service"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type capture struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capture) Publish(_ context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capture) Subscribe(events.EventType, events.EventHandler) {}

func (c *capture) count(eventType events.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type engineFixture struct {
	clock   *clock.Manual
	store   *repository.MemoryStore
	tickets *service.TicketService
	events  *capture
}

func newEngine(t *testing.T) *engineFixture {
	t.Helper()
	clk := clock.NewManual(t0)
	store := repository.NewMemoryStore(clk)
	repos := store.Set()
	ctx := context.Background()
	require.NoError(t, repos.Users.Upsert(ctx, &domain.User{UserID: 500}))
	require.NoError(t, repos.Admins.Create(ctx, &domain.Admin{AdminID: 11, Role: domain.AdminRoleStaff}))

	sink := &capture{}
	return &engineFixture{
		clock:  clk,
		store:  store,
		events: sink,
		tickets: service.NewTicketService(service.TicketDependencies{
			TicketRepo: repos.Tickets,
			LogRepo:    repos.Logs,
			UserRepo:   repos.Users,
			AdminRepo:  repos.Admins,
			Dispatcher: sink,
			Clock:      clk,
		}),
	}
}

func newTestWatchdog(engine MissedResponseFlagger, clk clock.Clock) *Watchdog {
	return NewWatchdog(engine, config.WatchdogConfig{
		Interval:        time.Minute,
		ResponseTimeout: 30 * time.Minute,
	}, clk, nil, zap.NewNop())
}

func TestWatchdogMissedResponseScenario(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	wd := newTestWatchdog(f.tickets, f.clock)

	ticket, err := f.tickets.CreateTicket(ctx, 500, "", domain.TextPayload("help"))
	require.NoError(t, err)
	f.clock.Set(t0.Add(5 * time.Minute))
	_, err = f.tickets.ClaimTicket(ctx, ticket.ID, 11)
	require.NoError(t, err)

	f.clock.Set(t0.Add(29 * time.Minute))
	flagged, err := wd.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, flagged, "not yet past the timeout")

	f.clock.Set(t0.Add(36 * time.Minute))
	flagged, err = wd.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
	assert.Equal(t, 1, f.events.count(events.EventResponseMissed))

	got, err := f.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, got.MissedFlag)

	f.clock.Set(t0.Add(40 * time.Minute))
	answered, err := f.tickets.RecordResponse(ctx, ticket.ID, 11, domain.TextPayload("sorry for the wait"))
	require.NoError(t, err)
	assert.True(t, answered.MissedFlag, "missed flag is sticky")
	require.NotNil(t, answered.FirstResponseAt)
	assert.True(t, answered.FirstResponseAt.Equal(t0.Add(40*time.Minute)))

	flagged, err = wd.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, flagged)
	assert.Equal(t, 1, f.events.count(events.EventResponseMissed))
}

func TestWatchdogSweepIsIdempotent(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	wd := newTestWatchdog(f.tickets, f.clock)

	for i := 0; i < 3; i++ {
		ticket, err := f.tickets.CreateTicket(ctx, 500, "", domain.TextPayload("help"))
		require.NoError(t, err)
		_, err = f.tickets.ClaimTicket(ctx, ticket.ID, 11)
		require.NoError(t, err)
	}
	// unclaimed tickets are never flagged
	_, err := f.tickets.CreateTicket(ctx, 500, "", domain.TextPayload("nobody took me"))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	first, err := wd.Sweep(ctx)
	require.NoError(t, err)
	second, err := wd.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, first)
	assert.Zero(t, second)
	assert.Equal(t, 3, f.events.count(events.EventResponseMissed))
}

func TestOverlappingSweepsFlagOnce(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()

	ticket, err := f.tickets.CreateTicket(ctx, 500, "", domain.TextPayload("help"))
	require.NoError(t, err)
	_, err = f.tickets.ClaimTicket(ctx, ticket.ID, 11)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	total := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := newTestWatchdog(f.tickets, f.clock).Sweep(ctx)
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	assert.Equal(t, 1, f.events.count(events.EventResponseMissed))
}

func TestWatchdogStoreOutageIsRetriedNextSweep(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	wd := newTestWatchdog(f.tickets, f.clock)

	ticket, err := f.tickets.CreateTicket(ctx, 500, "", domain.TextPayload("help"))
	require.NoError(t, err)
	_, err = f.tickets.ClaimTicket(ctx, ticket.ID, 11)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	f.store.FailWith(repository.ErrUnavailable)
	_, err = wd.Sweep(ctx)
	require.Error(t, err)

	f.store.FailWith(nil)
	flagged, err := wd.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)
}

type flakyFlagger struct {
	candidates []domain.Ticket
	failID     int64
	flagged    []int64
	reads      int
}

func (f *flakyFlagger) MissedCandidates(_ context.Context, _ time.Time, afterID int64, limit int) ([]domain.Ticket, error) {
	f.reads++
	var page []domain.Ticket
	for _, t := range f.candidates {
		if t.ID > afterID && len(page) < limit {
			page = append(page, t)
		}
	}
	return page, nil
}

func (f *flakyFlagger) FlagMissedResponse(_ context.Context, ticket domain.Ticket) (bool, error) {
	if ticket.ID == f.failID {
		return false, errors.New("connection reset")
	}
	f.flagged = append(f.flagged, ticket.ID)
	return true, nil
}

func TestWatchdogIsolatesTicketFailures(t *testing.T) {
	engine := &flakyFlagger{
		candidates: []domain.Ticket{{ID: 1}, {ID: 2}, {ID: 3}},
		failID:     2,
	}
	wd := newTestWatchdog(engine, clock.NewManual(t0))

	flagged, err := wd.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, flagged)
	assert.Equal(t, []int64{1, 3}, engine.flagged)
}

func TestWatchdogSweepPagesThroughAllCandidates(t *testing.T) {
	f := newEngine(t)
	ctx := context.Background()
	wd := NewWatchdog(f.tickets, config.WatchdogConfig{
		Interval:        time.Minute,
		ResponseTimeout: 30 * time.Minute,
		BatchSize:       2,
	}, f.clock, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		ticket, err := f.tickets.CreateTicket(ctx, 500, "", domain.TextPayload("help"))
		require.NoError(t, err)
		_, err = f.tickets.ClaimTicket(ctx, ticket.ID, 11)
		require.NoError(t, err)
	}
	f.clock.Advance(31 * time.Minute)

	flagged, err := wd.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, flagged)

	flagged, err = wd.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, flagged)
	assert.Equal(t, 3, f.events.count(events.EventResponseMissed))
}

func TestWatchdogFailingTicketsDoNotStarveLaterBatches(t *testing.T) {
	engine := &flakyFlagger{
		candidates: []domain.Ticket{{ID: 1}, {ID: 2}, {ID: 3}},
		failID:     1,
	}
	wd := NewWatchdog(engine, config.WatchdogConfig{BatchSize: 1}, clock.NewManual(t0), nil, zap.NewNop())

	flagged, err := wd.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 2, flagged)
	assert.Equal(t, []int64{2, 3}, engine.flagged)
	// three full pages, then an empty one
	assert.Equal(t, 4, engine.reads)
}

func TestWatchdogStartStopsOnCancel(t *testing.T) {
	engine := &flakyFlagger{}
	wd := newTestWatchdog(engine, clock.NewManual(t0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- wd.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not stop")
	}
}
