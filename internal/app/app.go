package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/sentinel/internal/alert"
	"github.com/MrSnakeDoc/sentinel/internal/anomaly"
	"github.com/MrSnakeDoc/sentinel/internal/config"
	"github.com/MrSnakeDoc/sentinel/internal/discovery"
	"github.com/MrSnakeDoc/sentinel/internal/health"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver"
	"github.com/MrSnakeDoc/sentinel/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sentinel/internal/logger"
	"github.com/MrSnakeDoc/sentinel/internal/metrics"
	"github.com/MrSnakeDoc/sentinel/internal/redis"
	"github.com/MrSnakeDoc/sentinel/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/sentinel/internal/store/redis"
	"github.com/MrSnakeDoc/sentinel/internal/supervisor"
	"github.com/MrSnakeDoc/sentinel/internal/telemetry"
	"github.com/MrSnakeDoc/sentinel/internal/utils"
	"github.com/MrSnakeDoc/sentinel/internal/version"
)

const storageSlowThreshold = 250 * time.Millisecond

type App struct {
	cfg             *config.Config
	logger          logger.Logger
	redisClient     *goredis.Client
	influx          *metrics.InfluxClient
	shutdownTracing telemetry.ShutdownFunc
	supervisor      *supervisor.Supervisor
	tree            *scheduler.Tree
}

// New connects to Redis and wires every component. ctx bounds the startup
// phase only.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.TracingExporter, "sentinel")
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)
	collectors := metrics.NewCollectors()

	aggregator, err := newAggregator(cfg, store, loggerClient.Named("health"))
	if err != nil {
		utils.MustClose(redisClient, "redis", loggerClient)
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	metricsClient, influx, err := newMetricsClient(cfg, loggerClient.Named("metrics"))
	if err != nil {
		utils.MustClose(redisClient, "redis", loggerClient)
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	scorer := anomaly.NewScorer(anomaly.LeastSquares{}, store, collectors, loggerClient.Named("anomaly"))
	if err := scorer.Restore(ctx); err != nil {
		loggerClient.Info("starting without anomaly model", logger.Error(err))
	}

	dispatcher := alert.NewDispatcher(
		alert.Config{PerMinute: cfg.AlertRate},
		collectors,
		loggerClient.Named("alert"),
		alert.NewLogSink(loggerClient.Named("alert")),
		alert.NewRedisSink(store, cfg.AlertChannel),
	)

	sup := supervisor.New(supervisor.Config{
		CPUThreshold:     cfg.CPUThreshold,
		AnomalyThreshold: cfg.AnomalyThreshold,
		CheckTimeout:     cfg.CheckTimeout,
		RestartTimeout:   cfg.RestartTimeout,
	}, supervisor.Deps{
		Health:   aggregator,
		Scanner:  aggregator,
		Metrics:  metricsClient,
		Scorer:   scorer,
		Alerter:  dispatcher,
		Observer: collectors,
		Logger:   loggerClient.Named("supervisor"),
	})

	source := discovery.NewFileSource(cfg.DiscoveryFile)
	discoverer := discovery.NewDiscoverer(source, sup, loggerClient.Named("discovery"))
	historyGC := scheduler.NewHistoryCollector(store, loggerClient.Named("history"), cfg.HistoryRetention)

	discoveryJob := scheduler.NewPeriodic("discovery", cfg.DiscoveryInterval, discoverer.Job(), loggerClient, scheduler.RunOnStart())
	retrainJob := scheduler.NewPeriodic("anomaly-retrain", cfg.RetrainInterval, scorer.Retrain, loggerClient)
	scanJob := scheduler.NewPeriodic("global-scan", cfg.GlobalScanInterval, sup.ScanJob(), loggerClient)
	gcJob := scheduler.NewPeriodic("history-gc", cfg.HistoryGCInterval, historyGC.Collect, loggerClient)

	// Dependencies passed to routes.
	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        time.Now(),
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		AllowedHosts:     cfg.AllowedHosts,
		AllowedCIDRS:     cfg.AllowedCIDRS,
		TrustProxy:       cfg.TrustProxy,
		TriggerRate:      cfg.TriggerRate,
		Supervisor:       sup,
		Health:           aggregator,
		History:          store,
		DiscoveryTrigger: discoveryJob.Trigger,
		Metrics:          collectors.Handler(),
	}
	server := httpserver.New(cfg, loggerClient, d)

	tree := scheduler.NewTree("sentinel", loggerClient.Named("tree"), scheduler.TreeConfig{
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	tree.Add(sup)
	tree.Add(discoveryJob)
	tree.Add(retrainJob)
	tree.Add(scanJob)
	tree.Add(gcJob)
	tree.Add(server)
	if cfg.DiscoveryWatch {
		tree.Add(discovery.NewWatcher(source.Path(), discoveryJob.Trigger, loggerClient.Named("discovery")))
	}

	return &App{
		cfg:             cfg,
		logger:          loggerClient,
		redisClient:     redisClient,
		influx:          influx,
		shutdownTracing: shutdownTracing,
		supervisor:      sup,
		tree:            tree,
	}, nil
}

func newAggregator(cfg *config.Config, store *redisstore.Store, log logger.Logger) (*health.Aggregator, error) {
	aggregator := health.NewAggregator(health.AggregatorConfig{
		Timeout:      cfg.CheckTimeout,
		MaxResultAge: cfg.GlobalScanInterval / 2,
	}, store, log)

	aggregator.Register(health.NewStorageChecker(store, storageSlowThreshold))
	aggregator.Register(health.NewMemoryChecker(health.MemoryCheckerConfig{
		WarningThreshold:  cfg.MemoryWarn,
		CriticalThreshold: cfg.MemoryCritical,
	}))
	aggregator.Register(health.NewDiskChecker(health.DiskCheckerConfig{
		Path:              cfg.DiskPath,
		WarningThreshold:  cfg.DiskWarn,
		CriticalThreshold: cfg.DiskCritical,
	}))

	names := make([]string, 0, len(cfg.DependencyURLs))
	for name := range cfg.DependencyURLs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		checker, err := health.NewDependencyChecker(name, cfg.DependencyURLs[name], cfg.CheckTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency %q: %w", name, err)
		}
		aggregator.Register(checker)
	}

	log.Info("aggregator configured", logger.Strings("checks", aggregator.CheckerNames()))
	return aggregator, nil
}

// newMetricsClient returns the configured backend behind a circuit breaker.
// The influx client is returned separately so it can be closed on shutdown.
func newMetricsClient(cfg *config.Config, log logger.Logger) (metrics.Client, *metrics.InfluxClient, error) {
	var (
		next   metrics.Client
		influx *metrics.InfluxClient
	)
	switch cfg.MetricsBackend {
	case "prometheus":
		p, err := metrics.NewPrometheusClient(cfg.PrometheusURL, cfg.PrometheusQuery, cfg.MetricsWindow)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create prometheus client: %w", err)
		}
		next = p
	case "influx":
		influx = metrics.NewInfluxClient(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.MetricsWindow)
		next = influx
	default:
		log.Info("no metrics backend, CPU signal disabled")
		return metrics.NopClient{}, nil, nil
	}

	log.Info("metrics backend configured", logger.String("backend", cfg.MetricsBackend))
	return metrics.NewBreakerClient(next, metrics.BreakerConfig{Name: cfg.MetricsBackend}, log), influx, nil
}

// Run serves until ctx is done, then releases every external resource.
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("🚀 Starting Sentinel v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Info(version.String())

	err := a.tree.Serve(ctx)
	if ctx.Err() != nil {
		a.logger.Info("⏳ Shutting down gracefully...")
		err = nil
	}

	if report, rerr := a.tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		a.logger.Warn("services did not stop in time", logger.Int("count", len(report)))
	}
	a.supervisor.Shutdown()

	if a.influx != nil {
		a.influx.Close()
	}
	if a.redisClient != nil {
		utils.MustClose(a.redisClient, "redis", a.logger)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if terr := a.shutdownTracing(flushCtx); terr != nil {
		a.logger.Warn("failed to flush traces", logger.Error(terr))
	}

	if err != nil {
		return fmt.Errorf("supervision tree stopped: %w", err)
	}
	a.logger.Info("✅ Sentinel stopped cleanly")
	return nil
}
