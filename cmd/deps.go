package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/ai/gemini"
	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/filestore"
	"github.com/spigell/resume-screener/internal/jobs"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/queue"
	"github.com/spigell/resume-screener/internal/secrets"
	"github.com/spigell/resume-screener/internal/skills"
	"github.com/spigell/resume-screener/internal/store"
)

// setup builds the logger and loads the config shared by every command.
func setup(command string) (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	logger.Info("starting the "+app, zap.String("command", command), zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(*config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

func redacted(cfg Config) Config {
	if cfg.Database.DSN != "" {
		cfg.Database.DSN = "***"
	}
	if cfg.AI.Gemini.APIKey != "" {
		cfg.AI.Gemini.APIKey = "***"
	}
	if cfg.Queue.Redis.Password != "" {
		cfg.Queue.Redis.Password = "***"
	}
	if cfg.Queue.RabbitMQ.URL != "" {
		cfg.Queue.RabbitMQ.URL = "***"
	}
	return cfg
}

// openStore connects to the database. DATABASE_URL is honoured when no DSN is configured.
func openStore(cfg *Config, logger *zap.Logger) (*store.Store, error) {
	dsn, err := secrets.Load(secrets.Source{
		Name:  "database dsn",
		Value: cfg.Database.DSN,
		Env:   "DATABASE_URL",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set database.dsn or %s_DATABASE_DSN)", err, envPrefix)
	}

	dbCfg := cfg.Database
	dbCfg.DSN = dsn
	return store.Open(dbCfg, logger)
}

// newFileResolver picks where resume files are read from.
func newFileResolver(ctx context.Context, cfg StorageConfig) (filestore.Resolver, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "local":
		local, err := filestore.NewLocal(cfg.Local.Root)
		if err != nil {
			return nil, nil, err
		}
		return local, nil, nil
	case "gcs":
		gcs, err := filestore.NewGCS(ctx, cfg.GCS)
		if err != nil {
			return nil, nil, err
		}
		return gcs, gcs, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func newAnalyzer(ctx context.Context, cfg AIConfig, logger *zap.Logger) (*gemini.Analyzer, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: cfg.Gemini.APIKey,
		File:  cfg.Gemini.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	genLogger := logger.With(
		zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
	)

	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:       apiKey,
		Model:        cfg.Gemini.Model,
		MaxRetries:   cfg.Gemini.MaxRetries,
		RetryBackoff: cfg.Gemini.RetryBackoff,
		Timeout:      cfg.Gemini.Timeout,
		Temperature:  cfg.Gemini.Temperature,
	}, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewAnalyzer(generator, gemini.Locale(strings.ToLower(strings.TrimSpace(cfg.Locale))), logger, cfg.Gemini.MaxLogLength)
}

// pipeline holds everything a worker needs to run analyses.
type pipeline struct {
	store  *store.Store
	queue  queue.Queue
	runner *jobs.Runner

	closers []io.Closer
}

func newPipeline(ctx context.Context, cfg *Config, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{}

	db, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	p.store = db
	p.closers = append(p.closers, db)

	q, err := queue.New(ctx, cfg.Queue, logger)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create queue: %w", err)
	}
	p.queue = q
	p.closers = append(p.closers, q)

	resolver, closer, err := newFileResolver(ctx, cfg.Storage)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("create file storage: %w", err)
	}
	if closer != nil {
		p.closers = append(p.closers, closer)
	}

	analyzer, err := newAnalyzer(ctx, cfg.AI, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	orchestrator := jobs.NewOrchestrator(
		db.Analyses,
		extract.New(resolver, logger),
		analyzer,
		skills.NewResolver(db.Skills, logger),
		cfg.Jobs.Lease(),
		logger,
	)
	p.runner = jobs.NewRunner(q, orchestrator, cfg.Jobs, logger)

	return p, nil
}

// Close releases resources in reverse order of creation.
func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i].Close()
	}
}
