package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"interlink/internal/adapter"
	"interlink/internal/analyzer"
	"interlink/internal/config"
	"interlink/internal/credentials"
	"interlink/internal/handler"
	"interlink/internal/hub"
	"interlink/internal/lifecycle"
	"interlink/internal/logger"
	"interlink/internal/metrics"
	"interlink/internal/relay"
	"interlink/internal/repository/sqlite"
	"interlink/internal/service"
	"interlink/internal/store"
	"interlink/internal/transport"
	"interlink/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "interlink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite profile snapshot path (overrides config)")
	oracle := flag.String("oracle", "", "Protocol compatibility table (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	initConfig := flag.Bool("init-config", false, "Write a default config file and exit")
	flag.Parse()

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	}

	var (
		cfg     *config.Config
		cfgFrom string
		err     error
	)
	if *configPath != "" {
		cfg, cfgFrom, err = config.LoadFromPath(*configPath)
	} else {
		cfg, cfgFrom, err = config.Load()
	}
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *oracle != "" {
		cfg.Analysis.OracleTable = *oracle
	}
	if *debug {
		cfg.Log.Debug = true
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	if cfgFrom == "" {
		cfgFrom = "defaults"
	}
	log.Info().Str("config", cfgFrom).Msg("starting interlink")
	log.Debug().Msg(cfg.Summary())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	profiles := store.New()
	bus := service.NewEventBus()

	var repo *sqlite.Repository
	if cfg.Database.Path != "" {
		repo, err = sqlite.New(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer repo.Close()
		log.Info().Str("path", cfg.Database.Path).Msg("database opened")
	}

	table, err := loadTable(cfg.Analysis.OracleTable, log)
	if err != nil {
		return err
	}
	analysis := analyzer.New(table, log, m)

	if cfg.Transport.Kind != "http" {
		return fmt.Errorf("unsupported transport %q", cfg.Transport.Kind)
	}
	factory := transport.NewHTTPFactory(cfg.Transport.Timeout.Duration(), log)

	manager := lifecycle.NewManager(lifecycleConfig(cfg.Lifecycle), profiles, factory, log,
		lifecycle.WithCredentialProvider(credentials.NewMountedProvider(cfg.Credentials.Paths, log)),
		lifecycle.WithMetrics(m),
		lifecycle.WithObserver(bus.PublishTransition),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := discoveryRegistry(ctx, cfg.Discovery, bus, m, log)
	if err != nil {
		return err
	}

	deps := service.Deps{
		Profiles:  profiles,
		Discovery: registry,
		Analyzer:  analysis,
		Manager:   manager,
		Relay:     relay.New(manager, cfg.Relay.SendTimeout.Duration(), log, m),
		Events:    bus,
		Metrics:   m,
		Logger:    log,
	}
	if repo != nil {
		deps.Repository = repo
	}
	engine := service.NewEngine(deps)

	if _, err := engine.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("profile snapshot not restored")
	}

	sse := hub.New(log)
	events := make(chan service.Event, 100)
	bus.Subscribe(events)
	defer bus.Unsubscribe(events)

	mux := http.NewServeMux()
	handler.NewAPI(engine, log).Register(mux, sse, reg)

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler.Chain(mux, handler.Recover(log), handler.CORS, handler.Logger(log)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE streams and Connect calls are long-lived
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sse.Run(ctx)
		return nil
	})
	g.Go(func() error {
		hub.Forward[service.Event](ctx, sse, events)
		return nil
	})
	g.Go(func() error {
		return engine.Run(ctx, service.RunConfig{
			RefreshInterval:  cfg.Discovery.RefreshInterval.Duration(),
			AnalysisInterval: cfg.Analysis.Interval.Duration(),
		})
	})

	if paths := watchedPaths(cfg, table); len(paths) > 0 {
		w := watcher.New(paths, func(path string) {
			onFileChange(path, table, cfg.Discovery.Inventory, engine, bus, log)
		}, log)
		g.Go(func() error {
			if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("file watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Listen).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		manager.Close(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("server shutdown")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("server stopped")
	return err
}

// loadTable reads the configured oracle table, or falls back to the built-in one
func loadTable(path string, log logger.Logger) (*analyzer.Table, error) {
	if path == "" {
		log.Info().Msg("no oracle table configured, using built-in protocol table")
		return analyzer.NewStaticTable(analyzer.DefaultTableFile()), nil
	}
	table := analyzer.NewTable(path)
	if err := table.Reload(); err != nil {
		return nil, err
	}
	log.Info().Str("path", path).Int("protocols", table.Len()).Msg("oracle table loaded")
	return table, nil
}

func lifecycleConfig(c config.LifecycleConfig) lifecycle.Config {
	return lifecycle.Config{
		MaxAttempts:      c.MaxAttempts,
		BaseBackoff:      c.BaseBackoff.Duration(),
		MaxBackoff:       c.MaxBackoff.Duration(),
		EstablishTimeout: c.EstablishTimeout.Duration(),
		ClosedRetention:  c.ClosedRetention.Duration(),
		SweepInterval:    c.SweepInterval.Duration(),
	}
}

// discoveryRegistry registers the configured sources. A missing nmap binary
// disables the scan source instead of failing startup.
func discoveryRegistry(ctx context.Context, cfg config.DiscoveryConfig, bus *service.EventBus, m *metrics.Metrics, log logger.Logger) (*adapter.Registry, error) {
	registry := adapter.NewRegistry(adapter.NewTCPProber(cfg.ProbeTimeout.Duration()), log,
		adapter.WithProbeLimit(cfg.MaxConcurrentProbes),
		adapter.WithProbeTimeout(cfg.ProbeTimeout.Duration()),
		adapter.WithRegistryMetrics(m),
		adapter.WithEventPublisher(bus),
	)

	if cfg.Inventory != "" {
		if err := registry.Register(adapter.NewInventorySource(cfg.Inventory, log)); err != nil {
			return nil, err
		}
	}

	if cfg.Nmap.Enabled {
		opts := []adapter.NmapOption{
			adapter.WithTimeout(cfg.Nmap.Timeout.Duration()),
			adapter.WithServiceDetection(cfg.Nmap.ServiceDetection),
			adapter.WithSkipHostDiscovery(cfg.Nmap.SkipHostDiscovery),
		}
		if cfg.Nmap.Ports != "" {
			opts = append(opts, adapter.WithPortRange(cfg.Nmap.Ports))
		}
		scan := adapter.NewNmapSource(cfg.Nmap.Targets, log, opts...)
		if err := scan.Check(ctx); err != nil {
			log.Warn().Err(err).Msg("nmap source disabled")
		} else if err := registry.Register(scan); err != nil {
			return nil, err
		}
	}

	if len(registry.Sources()) == 0 {
		log.Warn().Msg("no discovery sources configured, profiles come from the snapshot only")
	}
	return registry, nil
}

func watchedPaths(cfg *config.Config, table *analyzer.Table) []string {
	var paths []string
	if cfg.Analysis.Watch && table.Path() != "" {
		paths = append(paths, table.Path())
	}
	if cfg.Discovery.Inventory != "" {
		paths = append(paths, cfg.Discovery.Inventory)
	}
	return paths
}

// onFileChange reloads the oracle table or schedules a profile refresh
func onFileChange(path string, table *analyzer.Table, inventory string, engine *service.Engine, bus *service.EventBus, log logger.Logger) {
	if sameFile(path, table.Path()) {
		if err := table.Reload(); err != nil {
			log.Error().Err(err).Str("path", path).Msg("oracle table reload failed, keeping previous table")
			return
		}
		bus.Publish(service.Event{
			Type:    service.EventOracleReloaded,
			Payload: map[string]any{"path": path, "protocols": table.Len()},
		})
		engine.RequestAnalysis()
		return
	}
	if sameFile(path, inventory) {
		engine.RequestRefresh()
	}
}

func sameFile(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	sa, errA := os.Stat(a)
	sb, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(sa, sb)
}
