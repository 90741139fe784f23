package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/support-bot/internal/api/http"
	"github.com/spec-kit/support-bot/internal/api/http/handlers"
	"github.com/spec-kit/support-bot/internal/auth"
	"github.com/spec-kit/support-bot/internal/bot"
	"github.com/spec-kit/support-bot/internal/clock"
	"github.com/spec-kit/support-bot/internal/config"
	"github.com/spec-kit/support-bot/internal/domain"
	"github.com/spec-kit/support-bot/internal/events"
	"github.com/spec-kit/support-bot/internal/observability"
	"github.com/spec-kit/support-bot/internal/persistence"
	"github.com/spec-kit/support-bot/internal/repository"
	"github.com/spec-kit/support-bot/internal/service"
	"github.com/spec-kit/support-bot/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// App owns every long-lived component of the process.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics
	clock   clock.Clock

	postgres *persistence.Postgres
	redis    *persistence.Redis
	repos    repository.Set
	pingers  map[string]handlers.Pinger

	Tickets       *service.TicketService
	Users         *service.AuthService
	Admins        *service.AdminService
	Roles         *service.RoleResolver
	Analytics     *service.AnalyticsService
	Notifications *service.NotificationService
	Notifier      *worker.NotificationWorker
	Watchdog      *worker.Watchdog

	telegram  bot.API
	messenger service.Messenger
	states    bot.StateStore
	tokens    *auth.TokenManager
}

// Option customizes App construction.
type Option func(*options)

type options struct {
	clock     clock.Clock
	messenger service.Messenger
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithMessenger replaces Telegram delivery, for example in tests.
func WithMessenger(m service.Messenger) Option {
	return func(o *options) { o.messenger = m }
}

// New connects to storage and builds the services. Without a Postgres DSN the
// in-memory store is used; without a reachable Redis conversation state is
// kept in process.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{clock: clock.System()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(),
		clock:   o.clock,
		pingers: map[string]handlers.Pinger{},
	}
	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openMessaging(o.messenger); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildServices(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.Admins.BootstrapOwners(ctx, cfg.Bot.OwnerIDs); err != nil {
		a.Close()
		return nil, fmt.Errorf("bootstrap owners: %w", err)
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	pg, err := persistence.NewPostgres(ctx, a.cfg.Postgres, a.logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	a.postgres = pg
	if pg.Enabled() {
		if a.cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(pg.PoolHandle(), a.logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		a.repos = repository.NewPostgresSet(pg.PoolHandle(), a.cfg.Postgres.QueryTimeout)
		a.pingers["postgres"] = pg
	} else {
		memory := repository.NewMemoryStore(a.clock)
		a.repos = memory.Set()
		a.pingers["store"] = memory
	}

	rdb, err := persistence.ConnectRedis(ctx, a.cfg.Redis, a.logger)
	if err != nil {
		if !errors.Is(err, persistence.ErrRedisDisabled) {
			a.logger.Warn("redis unavailable; conversation state kept in memory", zap.Error(err))
		}
		a.states = bot.NewMemoryStateStore(a.clock, a.cfg.Redis.StateTTL)
		return nil
	}
	a.redis = rdb
	a.states = bot.NewRedisStateStore(rdb.Client, a.cfg.Redis.StateTTL)
	a.pingers["redis"] = rdb
	return nil
}

func (a *App) openMessaging(override service.Messenger) error {
	if override != nil {
		a.messenger = override
		return nil
	}
	if a.cfg.Bot.Token == "" {
		a.logger.Warn("BOT_TOKEN not provided; telegram bot disabled")
		a.messenger = logMessenger{logger: a.logger}
		return nil
	}
	api, err := bot.NewAPI(a.cfg.Bot)
	if err != nil {
		return err
	}
	a.telegram = api
	a.messenger = bot.NewMessenger(api, a.logger)
	return nil
}

func (a *App) buildServices() error {
	groupID, err := a.cfg.Bot.GroupChatID()
	if err != nil {
		return fmt.Errorf("invalid BOT_PRIVATE_GROUP_ID: %w", err)
	}

	sink := events.NewInMemoryDispatcher(a.logger)
	a.Notifier = worker.NewNotificationWorker(sink, a.cfg.Notification.QueueSize, a.metrics, a.logger)
	a.Notifications = service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:  a.Notifier,
		Messenger:   a.messenger,
		GroupChatID: groupID,
		Metrics:     a.metrics,
		Logger:      a.logger,
	})
	a.Notifications.RegisterHandlers()

	a.Roles = service.NewRoleResolver(a.repos.Users, a.repos.Admins)
	a.tokens = auth.NewTokenManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.AccessTokenTTL())
	a.Tickets = service.NewTicketService(service.TicketDependencies{
		TicketRepo: a.repos.Tickets,
		LogRepo:    a.repos.Logs,
		UserRepo:   a.repos.Users,
		AdminRepo:  a.repos.Admins,
		Roles:      a.Roles,
		Dispatcher: a.Notifier,
		Clock:      a.clock,
		Metrics:    a.metrics,
		Logger:     a.logger,
	})
	a.Users = service.NewAuthService(service.AuthDependencies{
		UserRepo:      a.repos.Users,
		AdminRepo:     a.repos.Admins,
		TokenManager:  a.tokens,
		DefaultRegion: a.cfg.App.DefaultPhoneRegion,
		Logger:        a.logger,
	})
	a.Admins = service.NewAdminService(service.AdminDependencies{
		AdminRepo: a.repos.Admins,
		Roles:     a.Roles,
		Logger:    a.logger,
	})
	a.Analytics = service.NewAnalyticsService(service.AnalyticsDependencies{
		TicketRepo: a.repos.Tickets,
		AdminRepo:  a.repos.Admins,
		Clock:      a.clock,
	})
	a.Watchdog = worker.NewWatchdog(a.Tickets, a.cfg.Watchdog, a.clock, a.metrics, a.logger)
	return nil
}

// HTTP builds the fiber app with every route registered.
func (a *App) HTTP() *fiber.App {
	server := httptransport.NewApp(a.cfg.App, a.logger, a.metrics)
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(a.cfg.App.Name, a.cfg.App.Version, a.pingers),
		Tickets:        handlers.NewTicketsHandler(a.Tickets, a.Users),
		Admins:         handlers.NewAdminsHandler(a.Admins),
		Analytics:      handlers.NewAnalyticsHandler(a.Analytics),
		AuthMiddleware: auth.NewAuthMiddleware(a.tokens, a.repos.Admins),
		Metrics:        a.metrics,
	})
	return server
}

// Serve runs the HTTP server, notification worker, watchdog and bot until ctx
// is done or one of them fails.
func (a *App) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Notifier.Run(gctx) })

	if a.cfg.Watchdog.Enabled {
		g.Go(func() error { return a.Watchdog.Start(gctx) })
	}

	if a.telegram != nil {
		messenger, _ := a.messenger.(*bot.Messenger)
		tg := bot.New(bot.Dependencies{
			API:       a.telegram,
			Messenger: messenger,
			Tickets:   a.Tickets,
			Users:     a.Users,
			Admins:    a.Admins,
			Roles:     a.Roles,
			Analytics: a.Analytics,
			States:    a.states,
			Clock:     a.clock,
			Config:    a.cfg.Bot,
			Logger:    a.logger,
		})
		g.Go(func() error { return tg.Run(gctx) })
	}

	server := a.HTTP()
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", a.cfg.App.Addr()))
		if err := server.Listen(a.cfg.App.Addr()); err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.ShutdownWithTimeout(shutdownTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SweepOnce runs a single watchdog pass and waits for its notifications.
func (a *App) SweepOnce(ctx context.Context) (int, error) {
	notifyCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Notifier.Run(notifyCtx) }()

	flagged, err := a.Watchdog.Sweep(ctx)
	stop()
	if runErr := <-done; runErr != nil && err == nil {
		err = runErr
	}
	return flagged, err
}

// Close releases storage connections.
func (a *App) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
}

// logMessenger stands in for Telegram when no bot token is configured.
type logMessenger struct {
	logger *zap.Logger
}

func (m logMessenger) SendNotice(_ context.Context, chatID int64, notice service.Notice) error {
	m.logger.Info("notice", zap.Int64("chat_id", chatID), zap.String("text", notice.Text))
	return nil
}

func (m logMessenger) Deliver(_ context.Context, chatID int64, payload domain.MessagePayload, caption string) error {
	m.logger.Info("deliver", zap.Int64("chat_id", chatID), zap.String("caption", caption), zap.String("media_kind", string(payload.MediaKind)))
	return nil
}

func (m logMessenger) SendDocument(_ context.Context, chatID int64, name string, data []byte, _ string) error {
	m.logger.Info("document", zap.Int64("chat_id", chatID), zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}
