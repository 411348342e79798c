package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/duel/internal/adapters/eventstore"
	"github.com/okian/duel/internal/adapters/http/api"
	"github.com/okian/duel/internal/adapters/http/feed"
	"github.com/okian/duel/internal/adapters/http/site"
	"github.com/okian/duel/internal/adapters/http/swagger"
	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/adapters/telemetry"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/pkg/logger"
	"github.com/okian/duel/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString("duel: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.InitWithFormat(cfg.LogFormat, os.Stdout); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store := eventstore.NewMemoryStore(eventstore.WithLogger(log.Named("eventstore")))

	bands, closeBands, err := openTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBands()

	ledger, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			log.Error(ctx, "ledger close failed", logger.Error(err))
		}
	}()

	machine := service.New(store, bands, ledger,
		service.WithLogger(log.Named("machine")),
		service.WithTimings(timingsFrom(cfg)),
		service.WithReasons(cfg.PointsReason, cfg.VictoryReason),
		service.WithInboxSize(cfg.InboxSize),
		service.WithGuardSize(cfg.GuardSize),
	)

	hub := feed.NewHub(machine, feed.WithWriteTimeout(cfg.WSWriteTimeout), feed.WithLogger(log.Named("feed")))
	hub.Start()
	defer hub.Close()

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)
	api.NewServer(api.Dependencies{
		Store:               store,
		Display:             machine,
		Leaderboard:         ledger,
		Stats:               statsFunc(func() map[string]interface{} { return stats(ctx, machine, ledger, hub) }),
		MaxLeaderboardLimit: cfg.MaxLeaderboardLimit,
	}).Register(ctx, mux)
	mux.Handle("/ws", hub)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return machine.Run(gctx)
	})
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// timingsFrom converts configured unit counts into machine timings.
func timingsFrom(cfg *config.Config) service.Timings {
	return service.Timings{
		Unit:                cfg.TimeUnit,
		Autostart:           cfg.AutostartDelay,
		IntroDwell:          cfg.Units(cfg.IntroDwellUnits),
		CountdownStart:      cfg.CountdownStart,
		Settle:              cfg.Units(cfg.SettleUnits),
		FinalSampleDelay:    cfg.FinalSampleDelay,
		RoundClockInterval:  cfg.RoundClockInterval,
		SampleInterval:      cfg.Units(cfg.SampleIntervalUnits),
		LeaderboardDelay:    cfg.Units(cfg.LeaderboardDelayUnits),
		LeaderboardInterval: cfg.Units(cfg.LeaderboardIntervalUnits),
		LeaderboardSize:     cfg.LeaderboardSize,
	}
}

func openTelemetry(ctx context.Context, cfg *config.Config, log logger.Logger) (service.Telemetry, func(), error) {
	if cfg.TelemetryMode == config.TelemetrySim {
		log.Info(ctx, "using simulated bands")
		return telemetry.NewSimulator(time.Now().UnixNano()), func() {}, nil
	}

	client := telemetry.NewMQTTClient(telemetry.MQTTConfig{
		Broker:      cfg.MQTTBroker,
		TopicPrefix: cfg.MQTTTopicPrefix,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		Timeout:     cfg.MQTTTimeout,
	}, telemetry.WithMQTTLogger(log.Named("mqtt")))
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func openLedger(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Ledger, error) {
	if cfg.LedgerDriver == config.LedgerSQLite {
		return repository.OpenSQLLedger(ctx, cfg.LedgerDSN, repository.WithSQLLogger(log.Named("ledger")))
	}
	return repository.NewMemoryLedger(repository.WithMemoryLogger(log.Named("ledger"))), nil
}

type statsFunc func() map[string]interface{}

func (f statsFunc) Stats() map[string]interface{} { return f() }

func stats(ctx context.Context, machine *service.Machine, ledger repository.Ledger, hub *feed.Hub) map[string]interface{} {
	out := machine.Stats()
	out["screens"] = hub.Clients()
	if n, err := ledger.Count(ctx); err == nil {
		out["ledgerUsers"] = n
	}
	return out
}

// startSystemMetricsUpdater updates system metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
