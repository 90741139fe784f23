package app

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-bot/internal/bot"
	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/service"
)

const (
	ownerID int64 = 1382917630
	userID  int64 = 500
	groupID int64 = -1001234
)

type sentNotice struct {
	chatID int64
	text   string
}

type recordingMessenger struct {
	mu      sync.Mutex
	notices []sentNotice
}

func (m *recordingMessenger) SendNotice(_ context.Context, chatID int64, notice service.Notice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, sentNotice{chatID: chatID, text: notice.Text})
	return nil
}

func (m *recordingMessenger) Deliver(_ context.Context, chatID int64, payload domain.MessagePayload, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices = append(m.notices, sentNotice{chatID: chatID, text: payload.Text})
	return nil
}

func (m *recordingMessenger) SendDocument(context.Context, int64, string, []byte, string) error {
	return nil
}

func (m *recordingMessenger) containing(substr string) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chats []int64
	for _, n := range m.notices {
		if strings.Contains(n.text, substr) {
			chats = append(chats, n.chatID)
		}
	}
	return chats
}

func testConfig() *config.Config {
	return &config.Config{
		App:   config.AppConfig{Name: "support-bot", Version: "test", RequestTimeoutSeconds: 5},
		Redis: config.RedisConfig{StateTTL: time.Hour},
		Auth:  config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60},
		Bot:   config.BotConfig{PrivateGroupID: "1234", OwnerIDs: []int64{ownerID}},
		Watchdog: config.WatchdogConfig{
			Enabled:         true,
			Interval:        time.Minute,
			ResponseTimeout: 30 * time.Minute,
			BatchSize:       100,
		},
		Notification: config.NotificationConfig{QueueSize: 32},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *clock.Manual, *recordingMessenger) {
	t.Helper()
	clk := clock.NewManual(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	messenger := &recordingMessenger{}
	a, err := New(context.Background(), cfg, zap.NewNop(), WithClock(clk), WithMessenger(messenger))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, clk, messenger
}

func TestNewBootstrapsOwners(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())

	admin, err := a.Admins.GetAdmin(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdminRoleOwner, admin.Role)
}

func TestNewRejectsInvalidGroupID(t *testing.T) {
	cfg := testConfig()
	cfg.Bot.PrivateGroupID = "not-a-number"

	_, err := New(context.Background(), cfg, zap.NewNop(), WithMessenger(&recordingMessenger{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_PRIVATE_GROUP_ID")
}

func TestReadinessUsesMemoryStore(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())

	resp, err := a.HTTP().Test(httptest.NewRequest("GET", "/health/ready", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), "store")
	assert.NotContains(t, string(body), "redis")
}

func TestSweepOnceFlagsAndNotifies(t *testing.T) {
	a, clk, messenger := newTestApp(t, testConfig())
	ctx := context.Background()

	_, err := a.Users.RegisterUser(ctx, userID, "Ivan", "+79991234567")
	require.NoError(t, err)
	ticket, err := a.Tickets.CreateTicket(ctx, userID, domain.TicketPriorityNormal, domain.MessagePayload{Text: "printer is on fire"})
	require.NoError(t, err)
	_, err = a.Tickets.ClaimTicket(ctx, ticket.ID, ownerID)
	require.NoError(t, err)

	clk.Advance(20 * time.Minute)
	flagged, err := a.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, flagged)

	clk.Advance(11 * time.Minute)
	flagged, err = a.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flagged)

	stored, err := a.Tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.MissedFlag)

	chats := messenger.containing("Missed response")
	assert.ElementsMatch(t, []int64{ownerID, groupID}, chats)
	assert.NotEmpty(t, messenger.containing("New ticket"))
}

func TestUnreachableRedisFallsBackToMemoryState(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.ConnectTimeout = 200 * time.Millisecond
	a, _, _ := newTestApp(t, cfg)

	assert.Nil(t, a.redis)
	assert.NotContains(t, a.pingers, "redis")
	require.NotNil(t, a.states)
	require.NoError(t, a.states.Set(context.Background(), userID, bot.State{Kind: bot.StateAwaitingReply, TicketID: 1}))
}
