// Package app assembles the registry process: ledger, role directory,
// services, HTTP router and outbox relay.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jwttoken "credreg/internal/jwt_token"
	"credreg/internal/platform/config"
	"credreg/internal/platform/database"
	"credreg/internal/platform/health"
	"credreg/internal/platform/kafka/producer"
	"credreg/internal/platform/redis"
	"credreg/internal/registry/accreditation"
	"credreg/internal/registry/credential"
	"credreg/internal/registry/directory"
	"credreg/internal/registry/handler"
	"credreg/internal/registry/metrics"
	"credreg/internal/registry/outbox"
	"credreg/internal/registry/store"
	"credreg/internal/registry/tracer"
	"credreg/pkg/platform/circuit"
	"credreg/pkg/platform/middleware/auth"
	request "credreg/pkg/platform/middleware/request"
	"credreg/pkg/platform/middleware/requesttime"
	"credreg/pkg/validation"
)

// Ledger is what the services and the outbox relay need from a store.
type Ledger interface {
	credential.Ledger
	accreditation.Ledger
	outbox.Store
	handler.EventLog
	Ping(ctx context.Context) error
}

// Directory confirms roles on every authenticated request.
type Directory interface {
	auth.RoleDirectory
}

type App struct {
	Router http.Handler
	Ledger Ledger
	// Worker is nil when no Kafka brokers are configured; events then stay
	// pending in the outbox.
	Worker *outbox.Worker

	Credentials    *credential.Service
	Accreditations *accreditation.Service
	Tokens         *jwttoken.JWTService

	closers []func() error
	logger  *slog.Logger
}

type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	directory  Directory
	ledger     Ledger
	publisher  outbox.Publisher
	tracer     tracer.Tracer
	clock      func() time.Time
}

// WithRegistry registers every collector on reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = reg
	}
}

// WithDirectory overrides the directory chosen from configuration.
func WithDirectory(d Directory) Option {
	return func(o *options) { o.directory = d }
}

// WithLedger overrides the ledger chosen from configuration.
func WithLedger(l Ledger) Option {
	return func(o *options) { o.ledger = l }
}

// WithPublisher enables the outbox relay with p instead of a Kafka producer.
func WithPublisher(p outbox.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithClock replaces the wall clock pinned on each request.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New builds the registry from cfg. Call Close when done.
func New(ctx context.Context, cfg config.Server, logger *slog.Logger, opts ...Option) (_ *App, err error) {
	o := &options{
		registerer: prometheus.DefaultRegisterer,
		gatherer:   prometheus.DefaultGatherer,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.JWTSigningKey == "" {
		return nil, errors.New("JWT_SIGNING_KEY is required")
	}

	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	checks := health.New(cfg.Environment)

	if a.Ledger = o.ledger; a.Ledger == nil {
		if a.Ledger, err = a.openLedger(ctx, cfg, checks, o.registerer); err != nil {
			return nil, err
		}
	}
	checks.RegisterCheck("ledger", a.Ledger.Ping)
	checks.ReportHeight(a.Ledger.Height)

	dir := o.directory
	if dir == nil {
		if dir, err = a.openDirectory(ctx, cfg, checks, o.registerer); err != nil {
			return nil, err
		}
	}

	trc := o.tracer
	if trc == nil {
		trc = tracer.NewOTel()
	}
	m := metrics.New(o.registerer)
	a.Accreditations = accreditation.New(a.Ledger,
		accreditation.WithLogger(logger),
		accreditation.WithMetrics(m),
		accreditation.WithTracer(trc))
	a.Credentials = credential.New(a.Ledger, a.Accreditations,
		credential.WithLogger(logger),
		credential.WithMetrics(m),
		credential.WithTracer(trc),
		credential.WithMaxBatch(cfg.MaxBatchVerify))

	publisher := o.publisher
	if publisher == nil && cfg.UsesKafka() {
		if publisher, err = a.openProducer(cfg, checks); err != nil {
			return nil, err
		}
	}
	if publisher != nil {
		a.Worker = outbox.New(a.Ledger, publisher,
			outbox.WithTopic(cfg.KafkaTopic),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithMetrics(outbox.NewMetrics(o.registerer)),
			outbox.WithBreaker(circuit.New("kafka-relay",
				circuit.WithFailureThreshold(5),
				circuit.WithCooldown(cfg.OutboxPollInterval*30))),
			outbox.WithLogger(logger))
	}

	a.Tokens = jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL)
	var revocations auth.TokenRevocationChecker
	if rc, ok := dir.(auth.TokenRevocationChecker); ok {
		revocations = rc
	}
	requireCaller := auth.RequireCaller(jwttoken.NewJWTServiceAdapter(a.Tokens), dir, revocations, logger)

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(requesttime.WithClock(o.clock))
	r.Use(request.LatencyMiddleware(request.NewMetrics(o.registerer)))
	r.Use(request.Timeout(30 * time.Second))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(request.ContentTypeJSON)

	checks.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	handler.New(a.Credentials, a.Accreditations, a.Ledger, logger).Register(r, requireCaller)
	a.Router = r

	return a, nil
}

func (a *App) openLedger(ctx context.Context, cfg config.Server, checks *health.Handler, reg prometheus.Registerer) (Ledger, error) {
	if !cfg.UsesPostgres() {
		a.logger.WarnContext(ctx, "DATABASE_URL not set; using in-memory ledger")
		return store.NewMemory(store.WithMemoryTxTimeout(cfg.TxTimeout)), nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	dbCfg.Registerer = reg
	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)
	if err := database.Migrate(ctx, pool.DB()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	checks.RegisterCheck("database", pool.Health)
	return store.NewPostgres(pool.DB(), store.WithPostgresTxTimeout(cfg.TxTimeout)), nil
}

// openDirectory prefers Redis, then the YAML file.
func (a *App) openDirectory(ctx context.Context, cfg config.Server, checks *health.Handler, reg prometheus.Registerer) (Directory, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client != nil {
		a.closers = append(a.closers, client.Close)
		if err := client.RegisterMetrics(reg); err != nil {
			return nil, fmt.Errorf("register redis metrics: %w", err)
		}
		checks.RegisterCheck("redis", client.Health)
		return directory.NewRedis(client.Client), nil
	}
	if cfg.RoleDirectoryFile == "" {
		return nil, errors.New("role directory not configured: set REDIS_URL or ROLE_DIRECTORY_FILE")
	}
	return directory.LoadStatic(cfg.RoleDirectoryFile)
}

func (a *App) openProducer(cfg config.Server, checks *health.Handler) (outbox.Publisher, error) {
	p, err := producer.New(producer.DefaultConfig(cfg.KafkaBrokers), a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	checks.RegisterOptional("kafka", p.Ping)
	return p, nil
}

// RunBackground runs the outbox relay until ctx is done.
func (a *App) RunBackground(ctx context.Context) error {
	if a.Worker == nil {
		<-ctx.Done()
		return nil
	}
	return a.Worker.Run(ctx)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
