package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/config"
	"github.com/xkilldash9x/metagraph/internal/graph"
	"github.com/xkilldash9x/metagraph/internal/jobs"
	"github.com/xkilldash9x/metagraph/internal/metadataapi"
	"github.com/xkilldash9x/metagraph/internal/network"
	"github.com/xkilldash9x/metagraph/internal/pipeline"
	"github.com/xkilldash9x/metagraph/internal/snapshot"
	"github.com/xkilldash9x/metagraph/internal/store"
)

// Options selects how components are built.
type Options struct {
	// InMemory uses the in-process store instead of PostgreSQL. Nothing
	// survives the process.
	InMemory bool
}

// Components holds every initialized service a command needs and releases
// them in order.
type Components struct {
	Store     schemas.Store
	Tracker   *jobs.Tracker
	Analyzer  *pipeline.Analyzer
	Driver    *pipeline.Driver
	Service   *Service
	Graph     *graph.Reader
	Snapshots schemas.ArchiveSink

	HTTPClient *network.Client
	DBPool     *pgxpool.Pool

	log *zap.Logger
}

// ComponentFactory builds Components. Commands depend on the interface so
// tests can substitute an in-memory stack.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, opts Options, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory returns the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the store, the snapshot sink, the HTTP client and the job
// pipeline. Partially built components are shut down on failure.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, opts Options, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Components{log: logger}

	var initErr error
	defer func() {
		if initErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initErr))
			c.Shutdown()
		}
	}()

	// 1. Store
	if opts.InMemory {
		logger.Warn("Using the in-memory store; results are lost on exit.")
		c.Store = store.NewMemStore(logger)
	} else {
		st, pool, err := openPostgres(ctx, cfg.Database(), logger)
		if pool != nil {
			c.DBPool = pool
		}
		if err != nil {
			initErr = err
			return nil, initErr
		}
		c.Store = st
	}
	logger.Debug("Store initialized.")

	// 2. Snapshot sink
	if cfg.Snapshot().Enabled {
		sink, err := snapshot.New(cfg.Snapshot(), logger)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize snapshot sink: %w", err)
			return nil, initErr
		}
		c.Snapshots = sink
		logger.Debug("Snapshot sink initialized.", zap.String("bucket", cfg.Snapshot().Bucket))
	}

	// 3. HTTP client
	clientCfg, err := network.ClientConfigFromNetwork(cfg.Network(), logger)
	if err != nil {
		initErr = err
		return nil, initErr
	}
	c.HTTPClient = network.NewClient(clientCfg)

	// 4. Pipeline
	c.Tracker = jobs.NewTracker(c.Store, logger)
	c.Analyzer = pipeline.NewAnalyzer(c.Store, nil, pipeline.AnalyzerConfig{
		APIVersion:  cfg.Remote().APIVersion,
		Concurrency: cfg.Extraction().AnalysisConcurrency,
	}, logger)
	c.Driver = pipeline.NewDriver(c.Analyzer, c.Snapshots, pipeline.DriverConfig{
		PollInterval:    cfg.Remote().PollInterval,
		MaxPollAttempts: cfg.Remote().MaxPollAttempts,
	}, logger)

	remote := cfg.Remote()
	httpClient := c.HTTPClient
	c.Service = New(c.Tracker, c.Driver, c.Snapshots, func(session metadataapi.Session) (pipeline.RemoteClient, error) {
		return metadataapi.NewClient(httpClient, session, remote, logger)
	}, logger)

	// 5. Graph reads
	c.Graph, err = graph.NewReader(c.Store, cfg.Graph().CacheSize, logger)
	if err != nil {
		initErr = err
		return nil, initErr
	}

	logger.Debug("All components initialized.")
	return c, nil
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("database URL is not configured (hint: set METAGRAPH_DATABASE_URL or use --memory)")
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(cfg.URL, logger); err != nil {
			return nil, nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	st, err := store.New(ctx, pool, logger)
	if err != nil {
		return nil, pool, fmt.Errorf("failed to initialize database store: %w", err)
	}
	return st, pool, nil
}

// Shutdown waits for running jobs, then releases the HTTP transport and the
// database pool.
func (c *Components) Shutdown() {
	logger := c.log
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.Service != nil {
		c.Service.Wait()
		logger.Debug("All jobs finished.")
	}
	if c.HTTPClient != nil {
		c.HTTPClient.CloseIdleConnections()
	}
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}
	logger.Debug("All components shut down.")
}
