package app

import (
	"github.com/healthbridge/platform/pkg/common/config"
	"github.com/healthbridge/platform/pkg/common/database"
	"github.com/healthbridge/platform/pkg/common/kafka"
	"github.com/healthbridge/platform/pkg/common/logger"
	"github.com/healthbridge/platform/pkg/dlp"
	"github.com/healthbridge/platform/pkg/documents"
	"github.com/healthbridge/platform/pkg/normalizer"
	"github.com/healthbridge/platform/pkg/pipeline"
	"github.com/healthbridge/platform/pkg/storage"
	"github.com/healthbridge/platform/pkg/terminology"
)

// App holds the process-wide services shared by the binaries.
type App struct {
	Config     *config.Config
	Pipeline   *pipeline.Pipeline
	Normalizer *normalizer.Service
	Documents  *documents.Service

	store   *normalizer.GormStore
	repo    *documents.GormRepository
	closers []func() error
}

// NewPipeline builds the provider chains, with the Redis result cache when a
// TTL is configured.
func NewPipeline(cfg *config.Config) *pipeline.Pipeline {
	p := pipeline.NewFromConfig(cfg)
	if cfg.ResultCacheTTL > 0 {
		p = p.WithCache(storage.NewResultCache(database.GetRedis(), cfg.ResultCacheTTL))
	}
	return p
}

func Catalog(cfg *config.Config) terminology.Catalog {
	cat, err := terminology.Load(cfg.TerminologyPath)
	if err != nil {
		logger.Log.WithError(err).WithField("path", cfg.TerminologyPath).Warn("using built-in disease catalog")
		return terminology.DefaultCatalog()
	}
	return cat
}

func Masker(cfg *config.Config) *dlp.Detector {
	rules, err := dlp.LoadRules(cfg.DLPRulesPath)
	if err != nil {
		logger.Log.WithError(err).Warn("using built-in DLP rules")
		rules = dlp.DefaultRules()
	}
	detector, err := dlp.NewDetector(rules)
	if err != nil {
		logger.Log.WithError(err).Warn("invalid DLP rules, falling back to defaults")
		detector, _ = dlp.NewDetector(dlp.DefaultRules())
	}
	return detector
}

// New connects to Postgres and wires the document service. withKafka enables
// the job, event and DLQ producers.
func New(cfg *config.Config, withKafka bool) (*App, error) {
	db, err := database.GetPostgres()
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Pipeline: NewPipeline(cfg),
		store:    normalizer.NewGormStore(db),
		repo:     documents.NewGormRepository(db),
	}
	a.closers = append(a.closers, database.ClosePostgres)
	if cfg.ResultCacheTTL > 0 {
		a.closers = append(a.closers, database.CloseRedis)
	}

	a.Normalizer = normalizer.NewService(a.store, Catalog(cfg))
	a.Documents = documents.NewService(
		documents.NewValidator(cfg.MaxRequestBody),
		a.repo,
		a.Pipeline,
		a.Normalizer,
		Masker(cfg),
		documents.Defaults{Hospital: cfg.DefaultHospital, Location: cfg.DefaultLocation},
		cfg.DocumentRetention,
	).WithRetries(cfg.JobMaxAttempts, cfg.PublishAttempts, cfg.PublishBackoff)

	if withKafka {
		jobs := kafka.NewProducer(cfg, cfg.KafkaJobsTopic)
		events := kafka.NewProducer(cfg, cfg.KafkaProcessedTopic)
		a.closers = append(a.closers, jobs.Close, events.Close)

		var dlq documents.Publisher
		if cfg.KafkaDLQTopic != "" {
			producer := kafka.NewProducer(cfg, cfg.KafkaDLQTopic)
			a.closers = append(a.closers, producer.Close)
			dlq = producer
		}
		a.Documents.WithPublishers(jobs, events, dlq)
	}
	return a, nil
}

func (a *App) Migrate() error {
	if err := a.store.AutoMigrate(); err != nil {
		return err
	}
	return a.repo.AutoMigrate()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Log.WithError(err).Warn("error during shutdown")
		}
	}
}
