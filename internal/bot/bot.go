package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/service"
)

const maxConcurrentUpdates = 16

// API is the Telegram client surface the bot needs. *tgbotapi.BotAPI
// satisfies it.
type API interface {
	Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewAPI connects to Telegram with the configured token.
func NewAPI(cfg config.BotConfig) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = cfg.Debug
	return api, nil
}

// Dependencies bundles collaborators for the bot.
type Dependencies struct {
	API       API
	Messenger *Messenger
	Tickets   *service.TicketService
	Users     *service.AuthService
	Admins    *service.AdminService
	Roles     *service.RoleResolver
	Analytics *service.AnalyticsService
	States    StateStore
	Clock     clock.Clock
	Config    config.BotConfig
	Logger    *zap.Logger
}

// Bot routes Telegram updates to the ticket services.
type Bot struct {
	api       API
	messenger *Messenger
	tickets   *service.TicketService
	users     *service.AuthService
	admins    *service.AdminService
	roles     *service.RoleResolver
	analytics *service.AnalyticsService
	states    StateStore
	clock     clock.Clock
	cfg       config.BotConfig
	logger    *zap.Logger
}

// New builds a bot.
func New(deps Dependencies) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.System()
	}
	messenger := deps.Messenger
	if messenger == nil {
		messenger = NewMessenger(deps.API, logger)
	}
	states := deps.States
	if states == nil {
		states = NewMemoryStateStore(clk, 0)
	}
	return &Bot{
		api:       deps.API,
		messenger: messenger,
		tickets:   deps.Tickets,
		users:     deps.Users,
		admins:    deps.Admins,
		roles:     deps.Roles,
		analytics: deps.Analytics,
		states:    states,
		clock:     clk,
		cfg:       deps.Config,
		logger:    logger,
	}
}

// Run long-polls Telegram until ctx is done. Updates are handled
// concurrently; in-flight handlers finish before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	b.logger.Info("bot polling started")
	var g errgroup.Group
	g.SetLimit(maxConcurrentUpdates)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			b.logger.Info("bot polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				_ = g.Wait()
				return nil
			}
			g.Go(func() error {
				b.HandleUpdate(ctx, update)
				return nil
			})
		}
	}
}

// HandleUpdate processes a single update. Panics are logged and swallowed so
// one bad update does not stop polling.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panic", zap.Any("panic", r), zap.Int("update_id", update.UpdateID))
		}
	}()
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}
