package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/repairdesk/internal/api/http"
	"github.com/spec-kit/repairdesk/internal/api/http/handlers"
	"github.com/spec-kit/repairdesk/internal/auth"
	"github.com/spec-kit/repairdesk/internal/config"
	"github.com/spec-kit/repairdesk/internal/events"
	"github.com/spec-kit/repairdesk/internal/observability"
	"github.com/spec-kit/repairdesk/internal/persistence"
	"github.com/spec-kit/repairdesk/internal/registry"
	"github.com/spec-kit/repairdesk/internal/repository"
	"github.com/spec-kit/repairdesk/internal/service"
	"github.com/spec-kit/repairdesk/internal/session"
	"github.com/spec-kit/repairdesk/internal/transport/telegram"
	"github.com/spec-kit/repairdesk/internal/worker"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand runs the bot and the admin HTTP API until interrupted.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot and the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

type stores struct {
	tickets     repository.TicketRepository
	reporters   repository.ReporterRepository
	technicians repository.TechnicianRepository
	history     repository.TicketHistoryRepository
}

func openStores(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, logger *zap.Logger) (stores, error) {
	if !pg.Enabled() {
		return stores{
			tickets:     repository.NewMemoryTicketRepository(),
			reporters:   repository.NewMemoryReporterRepository(),
			technicians: repository.NewMemoryTechnicianRepository(),
			history:     repository.NewMemoryTicketHistoryRepository(),
		}, nil
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			return stores{}, fmt.Errorf("run migrations: %w", err)
		}
	}
	return stores{
		tickets:     repository.NewTicketRepository(pg.Pool),
		reporters:   repository.NewReporterRepository(pg.Pool),
		technicians: repository.NewTechnicianRepository(pg.Pool),
		history:     repository.NewTicketHistoryRepository(pg.Pool),
	}, nil
}

func openSessions(ctx context.Context, cfg config.SessionConfig, redis *persistence.Redis, logger *zap.Logger) session.Store {
	if redis.Enabled() {
		return session.NewRedisStore(redis.Client, cfg.DraftTTL, cfg.BatchTTL)
	}
	store := session.NewMemoryStore(cfg.DraftTTL, cfg.BatchTTL)
	go store.Run(ctx, cfg.SweepInterval, logger)
	return store
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Telegram.Token == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	if cfg.Telegram.ManagementChatID == 0 {
		logger.Warn("TELEGRAM_MANAGEMENT_CHAT_ID not set; management copies are skipped")
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	repos, err := openStores(ctx, cfg, pg, logger)
	if err != nil {
		return err
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()
	sessions := openSessions(ctx, cfg.Session, redis, logger)

	reg := registry.New(cfg.Registry, logger)
	snapshot, err := reg.Reload()
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	logger.Info("registry loaded",
		zap.Int("locations", snapshot.LocationCount()),
		zap.Int("technicians", len(snapshot.Technicians())))

	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("connect telegram: %w", err)
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	channel := telegram.NewChannel(bot)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	sinks := []events.EventHandler{events.NewLogSink(logger), events.NewHistorySink(repos.history)}
	if redis.Enabled() && cfg.Audit.RedisChannel != "" {
		sinks = append(sinks, events.NewRedisSink(redis.Client, cfg.Audit.RedisChannel))
	}
	kafkaSink := events.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, logger)
	if kafkaSink != nil {
		sinks = append(sinks, kafkaSink.Handle)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				logger.Warn("closing kafka writer", zap.Error(err))
			}
		}()
	}
	worker.StartAuditWorker(dispatcher, logger, sinks...)

	fanout := service.NewNotificationService(service.NotificationDependencies{
		Channel:          channel,
		TicketRepo:       repos.tickets,
		Registry:         reg,
		Pool:             worker.NewPool(cfg.Fanout.Workers, logger),
		Metrics:          metrics,
		Logger:           logger,
		ManagementChatID: cfg.Telegram.ManagementChatID,
	})
	engine := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:     repos.tickets,
		TechnicianRepo: repos.technicians,
		Registry:       reg,
		Notifier:       fanout,
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
	})
	intake := service.NewIntakeService(service.IntakeDependencies{
		Sessions:     sessions,
		ReporterRepo: repos.reporters,
		Registry:     reg,
		Creator:      engine,
		Channel:      channel,
		AdminIDs:     cfg.Telegram.AdminUserIDs,
		Logger:       logger,
	})
	admin := service.NewAdminService(service.AdminDependencies{
		TicketRepo:     repos.tickets,
		ReporterRepo:   repos.reporters,
		TechnicianRepo: repos.technicians,
		HistoryRepo:    repos.history,
		Registry:       reg,
		Channel:        channel,
		Logger:         logger,
	})
	authService := service.NewAuthService(*cfg, logger)

	app := httptransport.NewApp(cfg.App, logger, metrics, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Admin:          handlers.NewAdminHandler(admin),
		Tickets:        handlers.NewTicketsHandler(engine),
		Metrics:        handlers.NewMetricsHandler(metrics),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager()),
	})

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", zap.String("addr", cfg.App.Addr()))
		listenErr <- app.Listen(cfg.App.Addr())
	}()

	router := telegram.NewRouter(telegram.RouterDependencies{
		Engine:   engine,
		Intake:   intake,
		Admin:    admin,
		Channel:  channel,
		Telegram: cfg.Telegram,
		Logger:   logger,
	})
	update := tgbotapi.NewUpdate(0)
	update.Timeout = cfg.Telegram.PollTimeoutSec
	updates := bot.GetUpdatesChan(update)

	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		router.Run(ctx, updates)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-listenErr:
		runErr = fmt.Errorf("admin api: %w", err)
		logger.Error("admin api stopped", zap.Error(err))
	}

	bot.StopReceivingUpdates()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("admin api shutdown", zap.Error(err))
	}
	<-routerDone
	fanout.Wait()
	return runErr
}
