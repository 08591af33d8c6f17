package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	recordanchoring "notary/contexts/ledger-anchoring/record-anchoring-service"
	ledgeradapter "notary/contexts/ledger-anchoring/record-anchoring-service/adapters/ledger"
	postgresadapter "notary/contexts/ledger-anchoring/record-anchoring-service/adapters/postgres"
	signeradapter "notary/contexts/ledger-anchoring/record-anchoring-service/adapters/signer"
	"notary/contexts/ledger-anchoring/record-anchoring-service/application/workers"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
	"notary/internal/platform/config"
	"notary/internal/platform/db"
	"notary/internal/platform/httpserver"
	"notary/internal/platform/messaging"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const stopTimeoutSlack = 5 * time.Second

type APIApp struct {
	server   *httpserver.Server
	module   recordanchoring.Module
	database *db.Database
	// inProcessWorker is set for the memory store, which no separate worker
	// process can see.
	inProcessWorker bool
	workerConfig    recordanchoring.WorkerConfig
	logger          *slog.Logger
}

type WorkerApp struct {
	module       recordanchoring.Module
	database     *db.Database
	workerConfig recordanchoring.WorkerConfig
	logger       *slog.Logger
}

// Runtime is the wired module plus the resources that must be closed with it.
type Runtime struct {
	Module       recordanchoring.Module
	Database     *db.Database
	Repository   *postgresadapter.Repository
	WorkerConfig recordanchoring.WorkerConfig
}

func (r *Runtime) Close() error {
	if r == nil || r.Database == nil {
		return nil
	}
	return r.Database.Close()
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	rt, err := BuildRuntime(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	var opts []httpserver.Option
	if !cfg.EnableSwagger {
		opts = append(opts, httpserver.WithoutSwagger())
	}
	server := httpserver.New(rt.Module, logger, normalizeAddr(cfg.HTTPPort), opts...)
	return &APIApp{
		server:          server,
		module:          rt.Module,
		database:        rt.Database,
		inProcessWorker: cfg.StoreDriver == config.StoreDriverMemory,
		workerConfig:    rt.WorkerConfig,
		logger:          logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver == config.StoreDriverMemory {
		return nil, errors.New("worker process needs a shared store; STORE_DRIVER=memory only runs inside the api process")
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	rt, err := BuildRuntime(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{
		module:       rt.Module,
		database:     rt.Database,
		workerConfig: rt.WorkerConfig,
		logger:       logger,
	}, nil
}

// BuildRuntime opens the configured store, ledger, signer and bus and wires the
// anchoring module over them. The lifecycle audit subscription lives as long as ctx.
func BuildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	ledger, err := buildLedger(cfg.Ledger, logger)
	if err != nil {
		return nil, err
	}
	signer, err := buildSigner(ctx, cfg.Signer, logger)
	if err != nil {
		return nil, err
	}

	var publisher ports.EventPublisher
	if cfg.EnableOutboxRelay {
		bus := messaging.NewBus(logger)
		if cfg.EnableLifecycleAudit {
			audit := workers.LifecycleAudit{Topics: cfg.AuditTopics, Logger: logger}
			if err := audit.Subscribe(ctx, bus); err != nil {
				return nil, err
			}
		}
		publisher = bus
	}

	rt := &Runtime{WorkerConfig: WorkerConfigFrom(cfg.Worker)}
	if cfg.StoreDriver == config.StoreDriverMemory {
		rt.Module = recordanchoring.NewInMemoryModule(nil, ledger, signer, publisher, logger)
		return rt, nil
	}

	database, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	repo := postgresadapter.NewRepository(database.DB, logger)
	if database.Driver == config.StoreDriverSQLite {
		if err := repo.Migrate(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	rt.Database = database
	rt.Repository = repo
	rt.Module = recordanchoring.NewModule(recordanchoring.Dependencies{
		Records:       repo,
		Submissions:   repo,
		Confirmations: repo,
		Outbox:        repo,
		Publisher:     publisher,
		Ledger:        ledger,
		Signer:        signer,
		Clock:         postgresadapter.SystemClock{},
		IDGenerator:   postgresadapter.UUIDGenerator{},
		WorkerID:      cfg.Worker.ID,
		Logger:        logger,
	})
	return rt, nil
}

// OpenDatabase connects to the configured SQL store.
func OpenDatabase(cfg config.Config) (*db.Database, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		return db.ConnectPostgres(cfg.PostgresDSN)
	case config.StoreDriverSQLite:
		return db.ConnectSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store driver %q has no database", cfg.StoreDriver)
	}
}

func WorkerConfigFrom(cfg config.WorkerConfig) recordanchoring.WorkerConfig {
	return recordanchoring.WorkerConfig{
		PollInterval:             cfg.PollInterval,
		BatchSize:                cfg.BatchSize,
		MaxRetries:               cfg.MaxRetries,
		BaseDelay:                cfg.BaseDelay,
		MaxDelay:                 cfg.MaxDelay,
		ConfirmationPollInterval: cfg.ConfirmationPollInterval,
		ConfirmationBatchSize:    cfg.ConfirmationBatchSize,
		Concurrency:              cfg.Concurrency,
		WorkerLoops:              cfg.Loops,
		AttemptTimeout:           cfg.AttemptTimeout,
		LeaseTTL:                 cfg.LeaseTTL,
		ShutdownGrace:            cfg.ShutdownGrace,
	}
}

func buildLedger(cfg config.LedgerConfig, logger *slog.Logger) (ports.LedgerClient, error) {
	switch cfg.Driver {
	case config.LedgerDriverSimulated:
		return ledgeradapter.NewSimulated(cfg.ConfirmAfter, logger), nil
	case config.LedgerDriverRPC:
		return ledgeradapter.NewRPCClient(ledgeradapter.RPCConfig{
			Endpoint:  cfg.Endpoint,
			AuthToken: cfg.AuthToken,
			Timeout:   cfg.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
}

func buildSigner(ctx context.Context, cfg config.SignerConfig, logger *slog.Logger) (ports.Signer, error) {
	switch cfg.Driver {
	case config.SignerDriverLocal:
		signer, err := signeradapter.NewLocal(cfg.SeedHex)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(cfg.SeedHex) == "" {
			logger.Warn("local signer generated an ephemeral key",
				"event", "bootstrap_ephemeral_signer_key",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"identity", signer.PublicIdentity(),
			)
		}
		return signer, nil
	case config.SignerDriverRemote:
		identityCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return signeradapter.NewRemote(identityCtx, signeradapter.RemoteConfig{
			BaseURL:   cfg.RemoteURL,
			AuthToken: cfg.AuthToken,
			KeyID:     cfg.KeyID,
			Timeout:   cfg.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported signer driver %q", cfg.Driver)
	}
}

// Run serves HTTP until ctx is cancelled, then shuts the server (and the
// in-process worker, if any) down.
func (a *APIApp) Run(ctx context.Context) error {
	if a.inProcessWorker {
		if err := a.module.StartWorker(ctx, a.workerConfig); err != nil {
			return err
		}
	}
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"in_process_worker", a.inProcessWorker,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), a.stopTimeout())
	defer cancel()
	if serveErr == nil {
		if err := a.server.Shutdown(stopCtx); err != nil {
			serveErr = err
		}
	}
	if a.inProcessWorker {
		if err := a.module.StopWorker(stopCtx); err != nil && serveErr == nil {
			serveErr = err
		}
	}
	return serveErr
}

func (a *APIApp) Close() error {
	if a.database != nil {
		return a.database.Close()
	}
	return nil
}

func (a *APIApp) stopTimeout() time.Duration {
	return a.workerConfig.ShutdownGrace + stopTimeoutSlack
}

// Run starts the anchoring loops and blocks until ctx is cancelled and the
// loops have drained.
func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.module.StartWorker(ctx, w.workerConfig); err != nil {
		return err
	}

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.workerConfig.PollInterval.String(),
		"worker_loops", w.workerConfig.WorkerLoops,
	)

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), w.workerConfig.ShutdownGrace+stopTimeoutSlack)
	defer cancel()
	if err := w.module.StopWorker(stopCtx); err != nil {
		return err
	}
	w.logger.Info("worker app stopped",
		"event", "bootstrap_worker_stopped",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)
	return nil
}

func (w *WorkerApp) Close() error {
	if w.database != nil {
		return w.database.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
