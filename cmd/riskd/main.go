package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/api/rest"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/cache"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/config"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/repository"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/telemetry"
	"github.com/paygate-labs/transaction-risk-engine/internal/metrics"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/anomaly"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/baseline"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/feedback"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/scoring"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/signals/sources"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/velocity"
)

const gaugeRefreshInterval = 15 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "path to configuration file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(cfg.Version)
		return
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("risk engine exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting transaction risk engine",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	provider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	registry, err := metrics.NewRegistry(cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	store := repository.NewMemoryStore(cfg.Baseline.MaxHistory, logger)

	var signalCache cache.Store
	if cfg.Redis.Enabled {
		signalCache, err = cache.NewRedisStore(&cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("signal cache backed by redis", zap.String("url", cfg.Redis.URL))
	} else {
		signalCache = cache.NewMemoryStore()
	}
	defer func() {
		if err := signalCache.Close(); err != nil {
			logger.Warn("closing signal cache failed", zap.Error(err))
		}
	}()

	gateway := signals.NewGateway(signalCache, cfg.Signals.Timeout, logger)
	gateway.SetRecorder(registry)
	primaries, err := registerSources(gateway, &cfg.Signals)
	if err != nil {
		return fmt.Errorf("registering signal sources: %w", err)
	}
	logger.Info("signal sources registered", zap.Strings("sources", primaries))

	tracker := velocity.New(velocity.Config{
		WindowSpan:    cfg.Velocity.WindowSpan,
		MaxEntries:    cfg.Velocity.MaxEntries,
		InactiveAfter: cfg.Velocity.InactiveAfter,
	}, logger)

	baselines := baseline.New(baseline.Config{
		TTL:            cfg.Baseline.TTL,
		Lookback:       cfg.Baseline.Lookback,
		MaxHistory:     cfg.Baseline.MaxHistory,
		MinSamples:     cfg.Baseline.MinSamples,
		CommonMinShare: cfg.Baseline.CommonMinShare,
	}, store, logger)

	detector := anomaly.New(anomaly.Config{
		ZThreshold:       cfg.Anomaly.ZThreshold,
		HighRiskKeywords: cfg.Anomaly.HighRiskKeywords,
		FuzzyDistance:    cfg.Anomaly.FuzzyDistance,
		LateNightStart:   cfg.Anomaly.LateNightStart,
		LateNightEnd:     cfg.Anomaly.LateNightEnd,
	}, logger)

	learner := feedback.New(feedback.Config{
		MinSamples:     cfg.Feedback.MinSamples,
		PrecisionFloor: cfg.Feedback.PrecisionFloor,
		RecallFloor:    cfg.Feedback.RecallFloor,
		Step:           cfg.Feedback.Step,
	}, logger)

	svc, err := scoring.NewService(scoring.Config{
		Weights:       cfg.Scoring.Weights,
		Thresholds:    cfg.Scoring.Thresholds,
		BreachScore:   cfg.Scoring.BreachScore,
		BurstWindow:   cfg.Scoring.BurstWindow,
		BurstCount:    cfg.Scoring.BurstCount,
		SignalSources: primaries,
		MaxConcurrent: cfg.Scoring.MaxConcurrent,
		PruneInterval: cfg.Velocity.PruneInterval,
	}, tracker, baselines, detector, gateway, learner, store, logger)
	if err != nil {
		return fmt.Errorf("building scoring service: %w", err)
	}

	svc.Start()
	defer svc.Stop()

	go refreshGauges(ctx, registry, svc, tracker, store)

	server, err := rest.NewServer(cfg, rest.Deps{
		Scoring:  svc,
		Store:    store,
		Breakers: gateway,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	return server.Start(ctx)
}

// registerSources wires every enabled signal source and its fallback chain
// into the gateway, returning the primary source names in registration order.
func registerSources(gw *signals.Gateway, cfg *config.SignalsConfig) ([]string, error) {
	var primaries []string

	register := func(src signals.Source) error {
		settings := cfg.SourceSettingsFor(src.Name())
		if err := gw.Register(src, signals.SourceConfig{
			Quota:            settings.Quota,
			FailureThreshold: settings.FailureThreshold,
			Cooldown:         settings.Cooldown,
			CacheTTL:         settings.CacheTTL,
			Timeout:          settings.Timeout,
		}); err != nil {
			return err
		}
		primaries = append(primaries, src.Name())
		return nil
	}

	if cfg.Geolocation.Enabled {
		src := sources.NewGeolocationSource(sources.GeolocationConfig{
			BaseURL: cfg.Geolocation.BaseURL,
			APIKey:  cfg.Geolocation.APIKey,
		})
		if err := register(src); err != nil {
			return nil, err
		}
	}
	if cfg.Identity.Enabled {
		src := sources.NewIdentitySource(sources.IdentityConfig{
			BaseURL: cfg.Identity.BaseURL,
			APIKey:  cfg.Identity.APIKey,
		})
		if err := register(src); err != nil {
			return nil, err
		}
	}
	if cfg.FraudList.Enabled {
		src := sources.NewListSource()
		for merchant, score := range cfg.FraudList.Merchants {
			src.AddMerchant(merchant, score)
		}
		for ip, score := range cfg.FraudList.IPs {
			src.AddIP(ip, score)
		}
		if err := register(src); err != nil {
			return nil, err
		}
	}

	// Fallback entries survive a source being toggled off, so filter the
	// chains down to what actually registered instead of failing startup.
	registered := make(map[string]bool, len(primaries))
	for _, name := range primaries {
		registered[name] = true
	}
	for name, chain := range cfg.Fallbacks {
		if !registered[name] {
			continue
		}
		usable := make([]string, 0, len(chain))
		for _, fb := range chain {
			if registered[fb] {
				usable = append(usable, fb)
			}
		}
		if len(usable) == 0 {
			continue
		}
		if err := gw.SetFallbacks(name, usable); err != nil {
			return nil, err
		}
	}

	return primaries, nil
}

// refreshGauges feeds the observable metrics from live component state until
// the context is cancelled.
func refreshGauges(ctx context.Context, registry *metrics.Registry, svc scoring.Service, tracker *velocity.Tracker, store *repository.MemoryStore) {
	ticker := time.NewTicker(gaugeRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs := svc.CacheStats()
			registry.SetCacheCounts(cs.Hits, cs.Misses)

			var open int64
			for _, b := range svc.BreakerStats() {
				if b.State == signals.StateOpen.String() {
					open++
				}
			}
			registry.SetOpenBreakers(open)

			registry.SetTrackedPatterns(int64(len(svc.PatternPerformance())))
			registry.SetPendingRecommendations(int64(len(svc.Recommendations())))
			registry.SetVelocityUsers(int64(tracker.Len()))
			registry.SetStoredVerdicts(int64(store.Counts().Verdicts))
		}
	}
}
