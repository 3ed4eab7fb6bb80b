// Package app wires configuration, infrastructure and the dedup and merge engine together.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/store"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/quality"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/survivorship"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	depTracing  = "tracing"
	depDatabase = "database"
	depRedis    = "redis"
	depKafka    = "kafka"
	depEngine   = "engine"
)

// App holds the running services. Engine fields are set once Start succeeds.
type App struct {
	Config *config.Config
	Logger ectologger.Logger

	DB            database.DB
	Store         *store.Store
	RuleValidator *survivorship.RuleValidator
	Finder        *matching.Finder
	Orchestrator  *merging.Orchestrator
	Quality       *quality.Scorer

	redis           *redis.Client
	producer        *kafka.Producer
	startup         *startup.Startup
	tracingShutdown func(context.Context) error
}

func New(cfg *config.Config, logger ectologger.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}
}

// StartDatabase brings up tracing and the database only
func (a *App) StartDatabase(ctx context.Context) error {
	a.registerCore()
	return a.startup.Start(ctx)
}

func (a *App) registerCore() {
	a.startup.AddDependency(&startup.Func{
		Name:    depTracing,
		StartFn: a.startTracing,
		StopFn: func(ctx context.Context) error {
			if a.tracingShutdown == nil {
				return nil
			}
			return a.tracingShutdown(ctx)
		},
	})

	a.startup.AddDependency(&startup.Func{
		Name:     depDatabase,
		Requires: []string{depTracing},
		StartFn:  a.startDatabase,
		StopFn: func(context.Context) error {
			return a.DB.Close()
		},
	})
}

// Start brings up every configured dependency and builds the engine
func (a *App) Start(ctx context.Context) error {
	cfg := a.Config
	a.registerCore()

	engineRequires := []string{depTracing, depDatabase}

	if cfg.RedisEnabled {
		engineRequires = append(engineRequires, depRedis)
		a.startup.AddDependency(&startup.Func{
			Name: depRedis,
			StartFn: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, a.Logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFn: func(context.Context) error {
				return a.redis.Close()
			},
		})
	}

	if cfg.KafkaEnabled {
		engineRequires = append(engineRequires, depKafka)
		a.startup.AddDependency(&startup.Func{
			Name: depKafka,
			StartFn: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, a.Logger)
				return nil
			},
			StopFn: func(context.Context) error {
				return a.producer.Close()
			},
		})
	}

	a.startup.AddDependency(&startup.Func{
		Name:     depEngine,
		Requires: engineRequires,
		StartFn: func(context.Context) error {
			a.buildEngine()
			return nil
		},
	})

	return a.startup.Start(ctx)
}

func (a *App) startTracing(ctx context.Context) error {
	if !a.Config.TracingEnabled {
		return nil
	}
	shutdown, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: a.Config.AppName,
		Endpoint:    a.Config.TracingEndpoint,
		Protocol:    a.Config.TracingProtocol,
		Insecure:    a.Config.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.tracingShutdown = shutdown
	return nil
}

func (a *App) startDatabase(ctx context.Context) error {
	cfg := a.Config
	db, err := database.Connect(ctx, database.Config{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.DB = db

	if cfg.DatabaseAutoMigrate {
		return a.Migrate()
	}
	return nil
}

// Migrate applies the configured schema migrations
func (a *App) Migrate() error {
	cfg := a.Config
	migrations := database.NewMigrationService(a.Logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.MigratePostgres(a.DB.SQLDB(), cfg.DatabaseName)
}

func (a *App) buildEngine() {
	cfg := a.Config

	resolver := survivorship.NewExpressionResolver(nil)
	a.RuleValidator = survivorship.NewRuleValidator(resolver)
	a.Store = store.New(a.DB, a.Logger, a.RuleValidator)
	a.Quality = quality.NewScorer()

	a.Finder = matching.NewFinder(a.Store, matching.NewSimilarityScorer(), a.Logger, matching.FinderConfig{
		MaxCandidates: cfg.MaxDuplicateCandidates,
	})

	opts := []merging.Option{merging.WithHistoryLimit(cfg.MergeHistoryLimit)}
	if cfg.QualityOnMerge {
		opts = append(opts, merging.WithQualityScorer(a.Quality))
	}
	if a.redis != nil {
		opts = append(opts, merging.WithLocker(redis.NewLocker(a.redis, redis.LockerConfig{
			TTL:  cfg.RedisLockTTL,
			Wait: cfg.RedisLockTimeout,
		})))
	}
	if a.producer != nil {
		opts = append(opts, merging.WithEmitter(events.NewEmitter(a.producer, a.Logger)))
	}

	engine := survivorship.NewEngine(a.Logger, survivorship.WithCustomResolver(resolver))
	a.Orchestrator = merging.NewOrchestrator(a.Store, engine, a.Logger, opts...)
}

// Health pings the database and, when enabled, redis and kafka. Redis and kafka
// only degrade the report since merges stay correct without the lock or events.
func (a *App) Health(ctx context.Context) health.Report {
	checker := health.NewChecker()

	var db health.Pinger
	if a.DB != nil {
		db = health.PingerFunc(a.DB.PingContext)
	}
	checker.Register(depDatabase, db)

	if a.Config.RedisEnabled {
		var pinger health.Pinger
		if a.redis != nil {
			pinger = a.redis
		}
		checker.RegisterOptional(depRedis, pinger)
	}
	if a.Config.KafkaEnabled {
		var pinger health.Pinger
		if a.producer != nil {
			pinger = a.producer
		}
		checker.RegisterOptional(depKafka, pinger)
	}

	report := checker.Check(ctx)
	a.Logger.WithContext(ctx).WithField("status", report.Status).Debug("Health checked")
	return report
}

// Stop releases every started dependency
func (a *App) Stop(ctx context.Context) error {
	return a.startup.Stop(ctx)
}
