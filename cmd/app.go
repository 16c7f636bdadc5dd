package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/reunite/internal/alerting"
	"github.com/kozaktomas/reunite/internal/config"
	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/database/mock"
	"github.com/kozaktomas/reunite/internal/database/postgres"
	"github.com/kozaktomas/reunite/internal/events"
	"github.com/kozaktomas/reunite/internal/facematch"
	"github.com/kozaktomas/reunite/internal/faces"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/metrics"
	"github.com/kozaktomas/reunite/internal/notify"
	"github.com/kozaktomas/reunite/internal/stations"
	"github.com/kozaktomas/reunite/internal/storage"
	"github.com/kozaktomas/reunite/internal/surveillance"
	"github.com/kozaktomas/reunite/internal/web"
	"github.com/prometheus/client_golang/prometheus"
)

// app is the fully wired set of components shared by the commands.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     database.Store
	images    storage.ImageStore
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	detector  *faces.EmbeddingClient
	extractor *facematch.Extractor
	engine    *facematch.Engine
	directory *stations.Directory
	queue     *alerting.Queue
	service   *alerting.Service
	events    events.Publisher
	pipeline  *surveillance.Pipeline
	closers   []func()
}

type appOptions struct {
	// memory keeps identities, alerts and evidence in process memory.
	memory bool
	// model fails construction when the face model does not answer its health check.
	model bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: logging.Module("app")}
	if err := a.openStorage(ctx, opts.memory); err != nil {
		a.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	m, err := metrics.New(a.registry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.metrics = m

	matchLog := logging.Module("facematch")
	a.detector = faces.NewEmbeddingClient(cfg.Embedding.URL, cfg.Embedding.Timeout)
	a.extractor = facematch.NewExtractor(a.detector, facematch.ExtractorOptions{
		Dim:     cfg.Embedding.Dim,
		Timeout: cfg.Embedding.Timeout,
		Logger:  matchLog,
	})
	if err := a.extractor.Reload(ctx); err != nil {
		if opts.model {
			a.Close()
			return nil, fmt.Errorf("face model at %s: %w", a.detector.BaseURL(), err)
		}
		a.log.Warn("face model unavailable", "url", a.detector.BaseURL(), "error", err)
	}
	a.engine = facematch.NewEngine(a.extractor, a.store, facematch.EngineOptions{
		Threshold:     cfg.Match.Threshold,
		CacheTTL:      cfg.Match.CacheTTL,
		Index:         cfg.Match.Index,
		HNSWCandidate: cfg.Match.HNSWCandidate,
		Logger:        matchLog,
	})
	a.directory = stations.NewDirectory(a.store, logging.Module("stations"))

	alertLog := logging.Module("alerting")
	primary, secondary, err := a.senders()
	if err != nil {
		a.Close()
		return nil, err
	}
	if primary == nil {
		a.log.Warn("no notification channel configured, alerts will stay undispatched")
	}
	dispatcher := alerting.NewDispatcher(a.store, a.store, a.store, a.images, a.directory, alerting.DispatcherOptions{
		Primary:         primary,
		Secondary:       secondary,
		NearestStations: cfg.Alert.NearestStations,
		Metrics:         m,
		Logger:          alertLog,
	})
	a.queue = alerting.NewQueue(dispatcher, alerting.QueueOptions{
		Workers: cfg.Alert.Workers,
		Size:    cfg.Alert.QueueSize,
		Retry: alerting.RetryConfig{
			MaxAttempts:  cfg.Alert.MaxAttempts,
			InitialDelay: cfg.Alert.RetryDelay,
		},
		Metrics: m,
		Logger:  alertLog,
	})
	a.service = alerting.NewService(a.store, a.store, a.store)

	a.events = events.Noop{}
	if cfg.MQTT.Broker != "" {
		pub, err := events.NewMQTTPublisher(&cfg.MQTT, logging.Module("events"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect event broker: %w", err)
		}
		a.events = pub
		a.closers = append(a.closers, pub.Close)
	}

	a.pipeline = surveillance.New(surveillance.Deps{
		Identities: a.store,
		Gallery:    a.store,
		Alerts:     a.store,
		Extractor:  a.extractor,
		Engine:     a.engine,
		Aggregator: facematch.NewAggregator(a.extractor, constants.DefaultEnrollConcurrency, matchLog),
		Evidence:   alerting.NewEvidenceLogger(a.store, a.images, m, alertLog),
		Throttle:   alerting.NewThrottle(a.store, cfg.Alert.Cooldown, m, alertLog),
		Queue:      a.queue,
		Events:     a.events,
		Metrics:    m,
		Logger:     logging.Module("pipeline"),
	})
	return a, nil
}

func (a *app) openStorage(ctx context.Context, memory bool) error {
	if memory {
		a.log.Warn("using in-memory storage, nothing survives a restart")
		a.store = mock.NewStore()
		a.images = storage.NewMemStore()
		return nil
	}

	store, err := openStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			a.log.Warn("closing database", "error", err)
		}
	})

	images, err := storage.NewFileStore(a.cfg.Evidence.Dir)
	if err != nil {
		return fmt.Errorf("open evidence directory: %w", err)
	}
	a.images = images
	return nil
}

// senders builds the configured notification channels. E-mail is primary when
// SMTP is configured; otherwise the push channel takes that role.
func (a *app) senders() (notify.Sender, []notify.Sender, error) {
	var all []notify.Sender
	if a.cfg.SMTP.Enabled() {
		mailer, err := notify.NewMailer(&a.cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, mailer)
	}
	if len(a.cfg.Notify.URLs) > 0 {
		push, err := notify.NewPushNotifier(a.cfg.Notify.URLs, a.cfg.Notify.Timeout)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, push)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

func (a *app) webDeps() web.Deps {
	return web.Deps{
		Ingester:   a.pipeline,
		Enroller:   a.pipeline,
		Alerts:     a.service,
		Identities: a.store,
		Gallery:    a.store,
		Stations:   a.store,
		Directory:  a.directory,
		Ready:      a.pipeline.Ready,
		Gatherer:   a.registry,
		Metrics:    a.metrics,
		Ingest:     a.cfg.Ingest,
		Origins:    a.cfg.Web.AllowedOrigins,
		Logger:     logging.Module("web"),
	}
}

// Close releases connections in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openStore connects to PostgreSQL for commands that only need the repositories.
func openStore(ctx context.Context, cfg *config.Config) (*postgres.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	return postgres.Open(ctx, &cfg.Database)
}
