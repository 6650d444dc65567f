// Package main - точка входа сервиса рейтингов Alem Hub.
//
// Сервер отдаёт лидерборды, граф подписок, социальную статистику и
// репутацию по REST API. В том же процессе работают шина событий
// (пересчёт репутации, уведомления, учёт мест в рейтинге) и планировщик
// фоновых задач (очистка и прогрев кеша страниц).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/alem-hub/community-rankings/config"
	"github.com/alem-hub/community-rankings/internal/application/command"
	"github.com/alem-hub/community-rankings/internal/application/eventhandler"
	"github.com/alem-hub/community-rankings/internal/application/query"
	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/infrastructure/messaging"
	"github.com/alem-hub/community-rankings/internal/infrastructure/scheduler"
	"github.com/alem-hub/community-rankings/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/community-rankings/internal/infrastructure/service"
	httpapi "github.com/alem-hub/community-rankings/internal/interface/http"
	"github.com/alem-hub/community-rankings/internal/interface/http/handlers"
	"github.com/alem-hub/community-rankings/pkg/logger"
	"github.com/alem-hub/community-rankings/pkg/metrics"
	"github.com/alem-hub/community-rankings/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: $RANKINGS_CONFIG)")
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
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	features, err := config.NewFeatureFlags(cfg.Features)
	if err != nil {
		return fmt.Errorf("failed to load feature flags: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	slogger := log.Slog()
	log.Info("starting rankings service",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("store", cfg.Store.Driver),
		logger.String("timezone", cfg.Leaderboard.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ТРАССИРОВКА И МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		SampleRatio:    cfg.Observability.TracingSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("failed to flush traces", logger.Err(err))
		}
	}()

	m := metrics.NewManager(metrics.WithRuntimeCollectors())

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ХРАНИЛИЩЕ ДОКУМЕНТОВ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("opening document store...", logger.String("driver", cfg.Store.Driver))
	st, err := openStore(ctx, cfg, slogger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		log.Info("closing document store...")
		st.close()
	}()
	log.Info("document store ready")

	// ─────────────────────────────────────────────────────────────────────────
	// 5. КЕШ СТРАНИЦ (Redis или в процессе)
	// ─────────────────────────────────────────────────────────────────────────
	pages, err := openPageCache(ctx, cfg, slogger)
	if err != nil {
		return fmt.Errorf("failed to open page cache: %w", err)
	}
	defer func() {
		if err := pages.close(); err != nil {
			log.Warn("failed to close page cache", logger.Err(err))
		}
	}()
	log.Info("page cache ready", logger.String("backend", pages.backend))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ШИНА СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      cfg.Events.Async,
		WorkerPoolSize: cfg.Events.Workers,
		Logger:         slogger,
		Metrics:        m,
	})
	defer func() {
		log.Info("draining event bus...")
		_ = bus.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ПРИЛОЖЕНИЕ: КОМАНДЫ, ЗАПРОСЫ, ОБРАБОТЧИКИ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	profiles := service.NewProfileService(st.docs)
	activity := service.NewActivityService(st.docs)

	follows := command.NewFollowGraph(st.docs, profiles, bus, m, slogger)
	scorer := command.NewReputationScorer(st.docs, activity, activity, m, slogger)
	recorder := command.NewStandingRecorder(st.docs, slogger)

	assembler := query.NewLeaderboardAssembler(query.AssemblerDeps{
		Store:          st.docs,
		Ranges:         leaderboard.NewRangeCalculator(nil, cfg.Location()),
		Profiles:       profiles,
		Cache:          pages.cache,
		EventPublisher: bus,
		Metrics:        m,
		Logger:         slogger,
	}, query.AssemblerConfig{
		CacheTTL:     cfg.Leaderboard.CacheTTL,
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
	})

	onFollow := eventhandler.NewOnFollowChangedHandler(
		&gatedRecomputer{next: scorer, flags: features},
		&gatedNotifier{next: service.NewNotificationService(st.docs, slogger), flags: features},
		slogger,
	)
	if err := onFollow.Register(bus); err != nil {
		return fmt.Errorf("failed to subscribe follow handler: %w", err)
	}
	onStanding := eventhandler.NewOnStandingObservedHandler(&gatedStandingRecorder{next: recorder, flags: features}, slogger)
	if err := onStanding.Register(bus); err != nil {
		return fmt.Errorf("failed to subscribe standing handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:   slogger,
		Metrics:  m,
		Timezone: cfg.Location(),
	})
	if pages.sweeper != nil {
		if err := sched.Register(jobs.NewSweepLeaderboardCacheJob(pages.sweeper, slogger), scheduler.Every(cfg.Cache.SweepInterval)); err != nil {
			return fmt.Errorf("failed to register sweep job: %w", err)
		}
	}
	if cfg.Leaderboard.WarmInterval > 0 && features.IsEnabled(config.FeatureWarmPages, "") {
		warm := jobs.NewWarmLeaderboardsJob(assembler, nil, cfg.Leaderboard.DefaultLimit, slogger)
		if err := sched.Register(warm, scheduler.Every(cfg.Leaderboard.WarmInterval)); err != nil {
			return fmt.Errorf("failed to register warm job: %w", err)
		}
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer func() {
		log.Info("stopping scheduler...")
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			log.Warn("scheduler stop failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("store", handlers.NewPingCheck(st.pinger))
	if pages.pinger != nil {
		health.AddCheck("page_cache", handlers.NewPingCheck(pages.pinger))
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RequestTimeout = cfg.HTTP.RequestTimeout
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverCfg.EnableMetrics = cfg.Observability.MetricsEnabled
	serverCfg.PageMaxAge = cfg.Leaderboard.CacheTTL
	serverCfg.Version = cfg.App.Version
	serverCfg.AdminToken = cfg.HTTP.AdminToken

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		Leaderboards:  assembler,
		SocialStats:   query.NewSocialStatsHandler(st.docs, slogger),
		Follows:       follows,
		Reputation:    scorer,
		Cache:         pages.invalidator,
		HealthChecker: health,
		Metrics:       m,
		Logger:        log,
	})
	serverErr := server.StartAsync()

	log.Info("rankings service is running", logger.String("address", serverCfg.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", logger.Err(err))
	}
	bus.Wait()

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger настраивает структурированное логирование и делает его
// логгером slog по умолчанию.
func setupLogger(cfg *config.Config) *logger.Logger {
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddSource: cfg.IsDevelopment(),
		Text:      cfg.Observability.LogFormat == "text",
	})
	log = log.With(logger.String("service", cfg.App.Name))
	slog.SetDefault(log.Slog())
	return log
}
