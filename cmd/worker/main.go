// Package main - точка входа Tournament Hub.
//
// Процесс загружает турниры из конфигурации, восстанавливает участников,
// запускает наблюдатель жизненного цикла, доставку отложенных наград
// и административный HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/tournament-hub/config"
	"github.com/alem-hub/tournament-hub/internal/application/command"
	"github.com/alem-hub/tournament-hub/internal/application/eventhandler"
	"github.com/alem-hub/tournament-hub/internal/application/query"
	"github.com/alem-hub/tournament-hub/internal/domain/shared"
	"github.com/alem-hub/tournament-hub/internal/domain/tournament"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/action"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/external/telegram"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/external/webhook"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/persistence/postgres"
	redisstore "github.com/alem-hub/tournament-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/runtime"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/tournament-hub/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/alem-hub/tournament-hub/internal/interface/http"
	"github.com/alem-hub/tournament-hub/internal/interface/http/handlers"
	"github.com/alem-hub/tournament-hub/internal/metrics"
	"github.com/alem-hub/tournament-hub/pkg/circuitbreaker"
	"github.com/alem-hub/tournament-hub/pkg/logger"
	"github.com/alem-hub/tournament-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	configPath := flag.String("config", os.Getenv("TH_CONFIG_FILE"), "path to YAML config")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Options{
		Level:             cfg.Log.Level,
		Encoding:          cfg.Log.Encoding,
		Development:       cfg.Log.Development,
		Sampling:          cfg.Log.Sampling,
		DisableCaller:     cfg.Log.DisableCaller,
		DisableStacktrace: cfg.Log.DisableStacktrace,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting Tournament Hub",
		zap.String("env", string(cfg.App.Environment)),
		zap.String("version", cfg.App.Version),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("timezone", cfg.App.Location.String()),
		zap.Strings("features", cfg.Flags.Summary()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. RUNTIME И ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := runtime.New(runtime.Config{
		Workers:     cfg.Runtime.Workers,
		BacklogWarn: cfg.Runtime.PrimaryQueue,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}

	bus, err := openEventBus(ctx, cfg, b, log)
	if err != nil {
		_ = rt.Shutdown(context.Background())
		return err
	}

	executor := action.NewExecutor(action.Config{Publisher: bus, Logger: log})
	if err := registerNotifiers(executor, cfg.Notify, log); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ТУРНИРЫ
	// ─────────────────────────────────────────────────────────────────────────
	registry, err := loadTournaments(ctx, cfg, tournament.Dependencies{
		Storage:   b.storage,
		Executor:  executor,
		Publisher: bus,
		Scheduler: rt,
		Directory: b.presence,
	}, log)
	if err != nil {
		_ = bus.Close()
		_ = rt.Shutdown(context.Background())
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОБРАБОТЧИКИ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	deliver := command.NewDeliverDeferredHandler(b.storage, b.presence, executor, bus, log)

	dispatcherCfg := messaging.DefaultDispatcherConfig(bus)
	dispatcherCfg.Logger = log
	dispatcherCfg.WorkerPoolSize = cfg.Events.Workers
	dispatcherCfg.OnResult = metrics.DispatchResult
	dispatcher := messaging.NewDispatcher(dispatcherCfg)
	dispatcher.Use(messaging.Recover(log), messaging.Trace(log))

	if cfg.Flags.Enabled(config.FeatureRunHistory) {
		h := eventhandler.NewOnTournamentEndedHandler(b.history, log)
		if err := dispatcher.Register(h.EventType(), "record_run", h.Handle); err != nil {
			return fmt.Errorf("register record_run: %w", err)
		}
	}
	if cfg.Flags.Enabled(config.FeatureDeferredDelivery) {
		h := eventhandler.NewOnPlayerOnlineHandler(deliver, log)
		if err := dispatcher.Register(h.EventType(), "deliver_on_login", h.Handle); err != nil {
			return fmt.Errorf("register deliver_on_login: %w", err)
		}
	}
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = buildScheduler(cfg, registry, deliver, log)
		if err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	var server *httpapi.Server
	if cfg.HTTP.Enabled {
		server = buildServer(cfg, registry, b, executor, bus, log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	if sched != nil {
		if err := sched.Start(gctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return sched.Stop()
		})
	}
	if server != nil {
		g.Go(func() error {
			return server.Run(gctx, cfg.App.ShutdownTimeout)
		})
	}

	log.Info("Tournament Hub is running", zap.Int("tournaments", registry.Len()))
	<-gctx.Done()
	log.Info("shutting down", zap.Duration("timeout", cfg.App.ShutdownTimeout))

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	dispatcher.Stop()
	busErr := bus.Close()
	rtErr := rt.Shutdown(shutdownCtx)

	if err := errors.Join(runErr, busErr, rtErr); err != nil {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKEND
// ══════════════════════════════════════════════════════════════════════════════

type scoreStore interface {
	tournament.Storage
	tournament.DeferredActionStore
}

// backend - выбранный драйвер хранения со всеми его портами.
type backend struct {
	storage  scoreStore
	presence tournament.PresenceTracker
	history  tournament.RunHistory
	redis    *goredis.Client
	checks   map[string]handlers.Probe
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{checks: make(map[string]handlers.Probe)}
	retrier := retry.StartupRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("backend not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	})

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		pgCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
		pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout
		pgCfg.QueryTimeout = cfg.Database.QueryTimeout

		var conn *postgres.Connection
		err := retrier.Do(ctx, func(ctx context.Context) error {
			var err error
			conn, err = postgres.NewConnection(ctx, pgCfg)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		b.closers = append(b.closers, conn.Close)

		if cfg.Database.AutoMigrate {
			applied, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date", zap.Int("applied", applied))
		}

		b.storage = postgres.NewStorage(conn)
		b.history = postgres.NewRunHistoryRepository(conn)
		b.presence = memory.NewDirectory()
		b.checks["postgres"] = conn.Ping

	case config.DriverRedis:
		client, err := connectRedis(ctx, cfg, retrier)
		if err != nil {
			return nil, err
		}
		b.redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })

		prefix := cfg.Redis.KeyPrefix
		b.storage = redisstore.NewStorage(client, prefix)
		b.presence = redisstore.NewPresence(client, prefix, cfg.Redis.PresenceTTL,
			circuitbreaker.PresenceBreaker(metrics.BreakerChanged))
		b.history = redisstore.NewRunHistory(client, prefix, 0)
		b.checks["redis"] = handlers.RedisProbe(client)

	default:
		b.storage = memory.NewStorage()
		b.presence = memory.NewDirectory()
		b.history = memory.NewRunHistory(0)
	}
	return b, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, retrier *retry.Retrier) (*goredis.Client, error) {
	rc := redisstore.DefaultConfig()
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	rc.KeyPrefix = cfg.Redis.KeyPrefix

	var client *goredis.Client
	err := retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		client, err = redisstore.NewClient(ctx, rc)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

type eventBus interface {
	shared.EventPublisher
	shared.EventSubscriber
	Close() error
}

func openEventBus(ctx context.Context, cfg *config.Config, b *backend, log *zap.Logger) (eventBus, error) {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = log
	local.WorkerPoolSize = cfg.Events.Workers
	local.OnHandled = metrics.EventHandled

	if cfg.Events.Driver != config.DriverRedis || !cfg.Flags.Enabled(config.FeatureEventRelay) {
		return messaging.NewInMemoryEventBus(local), nil
	}

	client := b.redis
	if client == nil {
		var err error
		client, err = connectRedis(ctx, cfg, retry.StartupRetrier(nil))
		if err != nil {
			return nil, err
		}
		b.redis = client
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.checks["redis"] = handlers.RedisProbe(client)
	}

	bus, err := messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
		Client:  messaging.NewGoRedisClient(client),
		Channel: cfg.Events.Channel,
		Local:   local,
		Breaker: circuitbreaker.RelayBreaker(metrics.BreakerChanged),
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start event relay: %w", err)
	}
	log.Info("event relay enabled", zap.String("channel", cfg.Events.Channel), zap.String("instance", bus.InstanceID()))
	return bus, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TOURNAMENTS, JOBS, HTTP
// ══════════════════════════════════════════════════════════════════════════════

func loadTournaments(ctx context.Context, cfg *config.Config, deps tournament.Dependencies, log *zap.Logger) (*tournament.Registry, error) {
	defs, err := cfg.Definitions()
	if err != nil {
		return nil, fmt.Errorf("invalid tournament config: %w", err)
	}

	registry := tournament.NewRegistry()
	for _, def := range defs {
		t, err := tournament.New(def, deps, tournament.Options{
			Debug:    cfg.Runtime.Debug,
			Logger:   log,
			Observer: metrics.Observer{},
		})
		if err != nil {
			return nil, fmt.Errorf("tournament %s: %w", def.ID(), err)
		}
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("tournament %s: %w", def.ID(), err)
		}

		if cfg.Flags.Enabled(config.FeatureRestoreOnBoot) {
			restored, err := t.Restore(ctx)
			if err != nil {
				return nil, fmt.Errorf("tournament %s: %w", def.ID(), err)
			}
			log.Info("tournament loaded",
				logger.Tournament(def.ID().String()),
				zap.String("status", string(t.Status())),
				zap.Int("restored", restored))
		}
	}
	return registry, nil
}

func buildScheduler(cfg *config.Config, registry *tournament.Registry, deliver *command.DeliverDeferredHandler, log *zap.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Config{
		Logger:      log,
		Location:    cfg.App.Location,
		JobTimeout:  cfg.Scheduler.JobTimeout,
		HistorySize: cfg.Scheduler.HistorySize,
		OnJobComplete: func(r scheduler.JobResult) {
			metrics.JobFinished(r.JobName, r.Duration, r.Error)
		},
	})

	if cfg.Flags.Enabled(config.FeatureLifecycleWatcher) {
		if err := sched.Register(jobs.NewLifecycleWatchJob(registry, log), cfg.Scheduler.LifecycleWatch); err != nil {
			return nil, fmt.Errorf("register lifecycle watch: %w", err)
		}
	}
	if cfg.Flags.Enabled(config.FeatureDeferredDelivery) {
		if err := sched.Register(jobs.NewDeliverDeferredJob(deliver, log), cfg.Scheduler.DeferredDelivery); err != nil {
			return nil, fmt.Errorf("register deferred delivery: %w", err)
		}
	}
	return sched, nil
}

// registerNotifiers подключает теги [telegram] и [webhook], если они настроены.
func registerNotifiers(executor *action.Executor, cfg config.NotifyConfig, log *zap.Logger) error {
	if cfg.Telegram.Token != "" {
		client := telegram.NewClient(telegram.ClientConfig{
			Token:         cfg.Telegram.Token,
			BaseURL:       cfg.Telegram.BaseURL,
			Timeout:       cfg.Telegram.Timeout,
			RatePerSecond: cfg.Telegram.RatePerSecond,
			Breaker:       circuitbreaker.New(telegram.Tag, circuitbreaker.WithOnStateChange(metrics.BreakerChanged)),
			Logger:        log,
		})
		executor.Register(telegram.Tag, client.Handler(cfg.Telegram.ChatID))
		log.Info("action tag enabled", zap.String("tag", telegram.Tag))
	}

	if cfg.Webhook.URL != "" {
		client, err := webhook.NewClient(webhook.ClientConfig{
			URL:           cfg.Webhook.URL,
			APIKey:        cfg.Webhook.APIKey,
			Timeout:       cfg.Webhook.Timeout,
			RatePerSecond: cfg.Webhook.RatePerSecond,
			Burst:         5,
			Breaker:       circuitbreaker.New(webhook.Tag, circuitbreaker.WithOnStateChange(metrics.BreakerChanged)),
			Logger:        log,
		})
		if err != nil {
			return fmt.Errorf("webhook: %w", err)
		}
		executor.Register(webhook.Tag, client)
		log.Info("action tag enabled", zap.String("tag", webhook.Tag))
	}
	return nil
}

func buildServer(cfg *config.Config, registry *tournament.Registry, b *backend, executor tournament.ActionExecutor, bus shared.EventPublisher, log *zap.Logger) *httpapi.Server {
	health := handlers.NewProbeSet(cfg.App.Version)
	for name, check := range b.checks {
		health.Register(name, check)
	}

	deps := httpapi.Dependencies{
		ListTournaments: query.NewListTournamentsHandler(registry),
		GetLeaderboard:  query.NewGetLeaderboardHandler(registry, b.presence),
		GetStanding:     query.NewGetStandingHandler(registry),
		GetRunHistory:   query.NewGetRunHistoryHandler(registry, b.history),
		GetNeighbors:    query.NewGetNeighborsHandler(registry, b.presence),
		GetOnlineNow:    query.NewGetOnlineNowHandler(registry, b.presence),
		StartTournament: command.NewStartTournamentHandler(registry, log),
		StopTournament:  command.NewStopTournamentHandler(registry, log),
		JoinTournament:  command.NewJoinTournamentHandler(registry, b.presence, executor, bus, log),
		SubmitScore: command.NewSubmitScoreHandler(registry, b.presence, executor, bus, log, command.SubmitScoreHandlerConfig{
			AutoJoin: func(pid shared.ParticipantID) bool {
				return cfg.Flags.EnabledFor(config.FeatureAutoJoin, pid.String())
			},
		}),
		UpdatePresence: command.NewUpdatePresenceHandler(b.presence, bus, log),
		Health:         health,
		Logger:         log,
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.Handler()
	}

	return httpapi.NewServer(httpapi.Config{
		Addr:           cfg.HTTP.Addr,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		AdminTokenHash: cfg.HTTP.AdminTokenHash,
		RateLimit:      cfg.HTTP.RateLimit,
		RateBurst:      cfg.HTTP.RateBurst,
	}, deps)
}
