package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/persistence"
)

const testDBURLKey = "SUPPORTBOT_TEST_DATABASE_URL"

func setupPostgres(t *testing.T) (*pgxpool.Pool, Set) {
	t.Helper()
	connStr := os.Getenv(testDBURLKey)
	if connStr == "" {
		t.Skipf("set %s to a dedicated test database", testDBURLKey)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	mg, err := persistence.NewMigrator(pool, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mg.Down(0))
	require.NoError(t, mg.Up())
	require.NoError(t, mg.Close())

	set := NewPostgresSet(pool, 5*time.Second)
	require.NoError(t, set.Users.Upsert(ctx, &domain.User{UserID: 100, DisplayName: "alice"}))
	require.NoError(t, set.Admins.Create(ctx, &domain.Admin{AdminID: 1, Role: domain.AdminRoleStaff}))
	require.NoError(t, set.Admins.Create(ctx, &domain.Admin{AdminID: 2, Role: domain.AdminRoleStaff}))
	return pool, set
}

func TestPostgresTicketLifecycle(t *testing.T) {
	_, set := setupPostgres(t)
	ctx := context.Background()

	ticket := newOpenTicket(t, set, t0)
	require.NotZero(t, ticket.ID)

	adminID := int64(1)
	claimed, err := set.Tickets.UpdateConditional(ctx, claimUpdate(ticket.ID, adminID),
		&domain.LogEntry{Action: domain.LogActionClaimed, AdminID: &adminID, CreatedAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)

	inProgress := domain.TicketStatusInProgress
	first := t0.Add(2 * time.Minute)
	answered, err := set.Tickets.UpdateConditional(ctx, TicketUpdate{
		ID: ticket.ID, ExpectStatus: &inProgress, ExpectAssignee: &adminID, SetFirstResponseAt: &first,
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, answered.FirstResponseAt)

	later := t0.Add(time.Hour)
	again, err := set.Tickets.UpdateConditional(ctx, TicketUpdate{
		ID: ticket.ID, ExpectStatus: &inProgress, ExpectAssignee: &adminID, SetFirstResponseAt: &later,
	}, nil)
	require.NoError(t, err)
	assert.True(t, again.FirstResponseAt.Equal(first), "first response is never overwritten")

	logs, err := set.Logs.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, domain.LogActionCreated, logs[0].Action)
	assert.Equal(t, domain.LogActionClaimed, logs[1].Action)
}

func TestPostgresConcurrentClaimsSingleWinner(t *testing.T) {
	_, set := setupPostgres(t)
	ctx := context.Background()
	ticket := newOpenTicket(t, set, t0)

	var mu sync.Mutex
	var winners []int64
	failed := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		adminID := int64(1 + i%2)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := set.Tickets.UpdateConditional(ctx, claimUpdate(ticket.ID, adminID),
				&domain.LogEntry{Action: domain.LogActionClaimed, AdminID: &adminID, CreatedAt: t0})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, adminID)
			} else if errors.Is(err, ErrConditionFailed) {
				failed++
			}
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, 15, failed)

	got, err := set.Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, got.ClaimedBy(winners[0]))

	logs, err := set.Logs.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestPostgresMissedCandidatesAndFlag(t *testing.T) {
	_, set := setupPostgres(t)
	ctx := context.Background()
	ticket := newOpenTicket(t, set, t0)
	_, err := set.Tickets.UpdateConditional(ctx, claimUpdate(ticket.ID, 1), nil)
	require.NoError(t, err)

	got, err := set.Tickets.ListMissedCandidates(ctx, t0.Add(30*time.Minute), 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	inProgress := domain.TicketStatusInProgress
	flag := TicketUpdate{ID: ticket.ID, ExpectStatus: &inProgress, ExpectNoResponse: true, ExpectNotMissed: true, SetMissed: true}
	_, err = set.Tickets.UpdateConditional(ctx, flag, &domain.LogEntry{Action: domain.LogActionResponseMissed, CreatedAt: t0})
	require.NoError(t, err)
	_, err = set.Tickets.UpdateConditional(ctx, flag, &domain.LogEntry{Action: domain.LogActionResponseMissed, CreatedAt: t0})
	assert.ErrorIs(t, err, ErrConditionFailed)

	got, err = set.Tickets.ListMissedCandidates(ctx, t0.Add(30*time.Minute), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPostgresLogsAreAppendOnly(t *testing.T) {
	pool, set := setupPostgres(t)
	newOpenTicket(t, set, t0)

	_, err := pool.Exec(context.Background(), `DELETE FROM logs`)
	assert.Error(t, err)
}

func TestPostgresDuplicateAdmin(t *testing.T) {
	_, set := setupPostgres(t)
	err := set.Admins.Create(context.Background(), &domain.Admin{AdminID: 1, Role: domain.AdminRoleOwner})
	assert.ErrorIs(t, err, ErrDuplicate)
}
