package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"modelgate/internal/catalog"
	"modelgate/internal/config"
	"modelgate/internal/crypto"
	"modelgate/internal/gateway"
	"modelgate/internal/httpapi"
	"modelgate/internal/knowledge"
	"modelgate/internal/metrics"
	"modelgate/internal/queue"
	"modelgate/internal/storage"
	"modelgate/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("listen_addr", cfg.HTTP.ListenAddr).
		Str("db_driver", cfg.DB.Driver).
		Dur("failover_budget", cfg.Gateway.FailoverBudget).
		Msg("starting modelgate")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	cryptoManager, err := crypto.NewManager(cfg.Crypto.CurrentKeyID, cfg.Crypto.Keys)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize crypto manager")
	}

	if cfg.ProviderSeedFile != "" {
		if err := seedProviders(ctx, store, cryptoManager, cfg.ProviderSeedFile); err != nil {
			log.Fatal().Err(err).Msg("failed to seed providers")
		}
	}

	m := metrics.Global()
	httpClient := &http.Client{Timeout: cfg.HTTP.ClientTimeout}

	resolver := gateway.NewResolver(gateway.ResolverConfig{
		Store:      store,
		Crypto:     cryptoManager,
		HTTPClient: httpClient,
		Defaults: gateway.DefaultProvider{
			Kind:    cfg.Gateway.DefaultKind,
			APIKey:  cfg.Gateway.DefaultAPIKey,
			BaseURL: cfg.Gateway.DefaultBaseURL,
			Model:   cfg.Gateway.DefaultModel,
		},
	})
	injector := knowledge.NewInjector(store, cfg.Knowledge.MaxDocuments, cfg.Knowledge.ExcerptChars, log.Logger)
	orchestrator := gateway.NewOrchestrator(cfg.Gateway.FailoverBudget, log.Logger, m)

	recorder := telemetry.NewRecorder(store, 256, log.Logger, m)
	recorder.Start(ctx)

	sessions := gateway.NewService(gateway.ServiceConfig{
		Store:        store,
		Resolver:     resolver,
		Injector:     injector,
		Orchestrator: orchestrator,
		Recorder:     recorder,
		Logger:       log.Logger,
		Metrics:      m,
	})

	synchronizer := catalog.NewSynchronizer(catalog.SynchronizerConfig{
		Store:   store,
		Build:   resolver.BuildAdapter,
		Locker:  queue.NewSyncLocker(rdb, cfg.Catalog.LockTTL),
		Logger:  log.Logger,
		Metrics: m,
	})

	errCh := make(chan error, 2)

	if cfg.Catalog.SyncEnabled {
		go func() {
			ticker := time.NewTicker(cfg.Catalog.SyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := synchronizer.Run(ctx); err != nil && ctx.Err() == nil {
						log.Error().Err(err).Msg("scheduled catalog sync failed")
					}
				}
			}
		}()
		log.Info().Dur("interval", cfg.Catalog.SyncInterval).Msg("catalog sync scheduled")
	}

	api := httpapi.NewServer(httpapi.ServerConfig{
		Sessions:     sessions,
		Synchronizer: synchronizer,
		Limiter:      queue.NewRateLimiter(rdb, cfg.Rate.PerHour),
		Logger:       log.Logger,
		Metrics:      m,
		HealthPath:   cfg.HTTP.HealthPath,
		MetricsPath:  cfg.HTTP.MetricsPath,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	select {
	case <-recorder.Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("usage recorder did not drain in time")
	}

	log.Info().Msg("stopped")
}

func seedProviders(ctx context.Context, store *storage.Store, cm *crypto.Manager, path string) error {
	seeds, err := config.LoadProviderSeeds(path)
	if err != nil {
		return err
	}
	for _, s := range seeds {
		p := storage.Provider{
			Name:         s.Name,
			Kind:         s.Kind,
			DisplayName:  s.DisplayName,
			BaseURL:      s.BaseURL,
			Organization: s.Organization,
			Active:       true,
			Healthy:      true,
		}
		if s.Active != nil {
			p.Active = *s.Active
		}
		if s.APIKey != "" {
			enc, err := cm.EncryptString(s.APIKey)
			if err != nil {
				return fmt.Errorf("encrypt api key for %q: %w", s.Name, err)
			}
			p.EncAPIKey = &enc
		}
		if len(s.Headers) > 0 {
			enc, err := cm.EncryptHeaders(s.Headers)
			if err != nil {
				return fmt.Errorf("encrypt headers for %q: %w", s.Name, err)
			}
			p.EncHeadersJSON = &enc
		}
		id, err := store.UpsertProvider(ctx, p)
		if err != nil {
			return fmt.Errorf("upsert provider %q: %w", s.Name, err)
		}
		log.Info().Int64("provider_id", id).Str("name", s.Name).Str("kind", s.Kind).Msg("provider seeded")
	}
	return nil
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
