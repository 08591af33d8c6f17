package recordanchoring

import (
	"context"
	"log/slog"
	"sync"
	"time"

	httpadapter "notary/contexts/ledger-anchoring/record-anchoring-service/adapters/http"
	"notary/contexts/ledger-anchoring/record-anchoring-service/adapters/memory"
	"notary/contexts/ledger-anchoring/record-anchoring-service/application/commands"
	"notary/contexts/ledger-anchoring/record-anchoring-service/application/queries"
	"notary/contexts/ledger-anchoring/record-anchoring-service/application/workers"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/entities"
	"notary/contexts/ledger-anchoring/record-anchoring-service/domain/services"
	"notary/contexts/ledger-anchoring/record-anchoring-service/ports"
)

// Module is the composition surface for record anchoring.
// Runtime wiring should consume Handler and the worker lifecycle; Store is
// exposed for tests/inspection when the module runs on memory adapters.
type Module struct {
	Handler httpadapter.Handler
	Store   *memory.Store

	createRecord commands.CreateRecordUseCase
	getRecord    queries.GetRecordUseCase
	listRecords  queries.ListRecordsUseCase
	deps         Dependencies
	worker       *workerControl
}

type Dependencies struct {
	Records       ports.RecordRepository
	Submissions   ports.SubmissionQueue
	Confirmations ports.ConfirmationQueue
	Outbox        ports.OutboxRepository
	Publisher     ports.EventPublisher
	Ledger        ports.LedgerClient
	Signer        ports.Signer
	Clock         ports.Clock
	IDGenerator   ports.IDGenerator
	WorkerID      string
	Logger        *slog.Logger
}

// WorkerConfig tunes the background anchoring loops. Zero values fall back to
// the worker defaults.
type WorkerConfig struct {
	PollInterval             time.Duration
	BatchSize                int
	MaxRetries               int
	BaseDelay                time.Duration
	MaxDelay                 time.Duration
	ConfirmationPollInterval time.Duration
	ConfirmationBatchSize    int
	Concurrency              int
	WorkerLoops              int
	AttemptTimeout           time.Duration
	LeaseTTL                 time.Duration
	ShutdownGrace            time.Duration
	// Jitter overrides the backoff jitter source; nil uses a time-seeded one.
	Jitter func(limit time.Duration) time.Duration
}

type workerControl struct {
	mu     sync.Mutex
	runner *workers.Runner
}

// NewModule wires record anchoring use cases against explicit ports.
func NewModule(deps Dependencies) Module {
	createRecord := commands.CreateRecordUseCase{
		Records:     deps.Records,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	getRecord := queries.GetRecordUseCase{
		Records: deps.Records,
		Logger:  deps.Logger,
	}
	listRecords := queries.ListRecordsUseCase{
		Records: deps.Records,
		Logger:  deps.Logger,
	}

	return Module{
		Handler: httpadapter.Handler{
			CreateRecord: createRecord,
			GetRecord:    getRecord,
			ListRecords:  listRecords,
			Logger:       deps.Logger,
		},
		createRecord: createRecord,
		getRecord:    getRecord,
		listRecords:  listRecords,
		deps:         deps,
		worker:       &workerControl{},
	}
}

// NewInMemoryModule wires the module against the in-memory store. Ledger and
// signer stay explicit so callers decide between simulated and real endpoints.
func NewInMemoryModule(
	seed []entities.Record,
	ledger ports.LedgerClient,
	signer ports.Signer,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) Module {
	store := memory.NewStore(seed, logger)
	module := NewModule(Dependencies{
		Records:       store,
		Submissions:   store,
		Confirmations: store,
		Outbox:        store,
		Publisher:     publisher,
		Ledger:        ledger,
		Signer:        signer,
		Clock:         store,
		IDGenerator:   store,
		Logger:        logger,
	})
	module.Store = store
	return module
}

// CreateRecord stores content as a pending record. It never waits on the ledger.
func (m Module) CreateRecord(ctx context.Context, content []byte) (entities.Record, error) {
	result, err := m.createRecord.Execute(ctx, commands.CreateRecordCommand{Content: content})
	if err != nil {
		return entities.Record{}, err
	}
	return result.Record, nil
}

func (m Module) GetRecord(ctx context.Context, recordID string) (entities.Record, error) {
	result, err := m.getRecord.Execute(ctx, queries.GetRecordQuery{RecordID: recordID})
	if err != nil {
		return entities.Record{}, err
	}
	return result.Record, nil
}

func (m Module) ListRecords(ctx context.Context, status string, limit int) ([]entities.Record, error) {
	result, err := m.listRecords.Execute(ctx, queries.ListRecordsQuery{Status: status, Limit: limit})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// StartWorker launches the submission and confirmation loops (and the outbox
// relay when a publisher is wired). It returns workers.ErrRunnerAlreadyStarted
// if the loops are already running.
func (m Module) StartWorker(ctx context.Context, cfg WorkerConfig) error {
	m.worker.mu.Lock()
	defer m.worker.mu.Unlock()
	if m.worker.runner != nil && m.worker.runner.Running() {
		return workers.ErrRunnerAlreadyStarted
	}

	runner := m.buildRunner(cfg)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	m.worker.runner = runner
	return nil
}

// StopWorker signals the loops to stop and waits until they exit or ctx expires.
// After a timeout the loops keep draining; StartWorker succeeds once they have.
func (m Module) StopWorker(ctx context.Context) error {
	m.worker.mu.Lock()
	runner := m.worker.runner
	m.worker.mu.Unlock()
	if runner == nil {
		return nil
	}
	if err := runner.Stop(ctx); err != nil {
		return err
	}

	m.worker.mu.Lock()
	if m.worker.runner == runner {
		m.worker.runner = nil
	}
	m.worker.mu.Unlock()
	return nil
}

func (m Module) buildRunner(cfg WorkerConfig) *workers.Runner {
	jitter := cfg.Jitter
	if jitter == nil {
		jitter = services.RandomJitter(time.Now().UnixNano())
	}
	workerID := m.deps.WorkerID
	if workerID == "" {
		workerID = "anchoring"
	}

	var relay *workers.OutboxRelay
	if m.deps.Outbox != nil && m.deps.Publisher != nil {
		relay = &workers.OutboxRelay{
			Outbox:    m.deps.Outbox,
			Publisher: m.deps.Publisher,
			Clock:     m.deps.Clock,
			BatchSize: cfg.BatchSize,
			Logger:    m.deps.Logger,
		}
	}

	return &workers.Runner{
		Submission: workers.SubmissionWorker{
			Queue:       m.deps.Submissions,
			Ledger:      m.deps.Ledger,
			Signer:      m.deps.Signer,
			Clock:       m.deps.Clock,
			IDGenerator: m.deps.IDGenerator,
			WorkerID:    workerID,
			Policy: services.RetryPolicy{
				MaxRetries: cfg.MaxRetries,
				BaseDelay:  cfg.BaseDelay,
				MaxDelay:   cfg.MaxDelay,
				Jitter:     jitter,
			}.Normalized(),
			BatchSize:      cfg.BatchSize,
			Concurrency:    cfg.Concurrency,
			LeaseTTL:       cfg.LeaseTTL,
			AttemptTimeout: cfg.AttemptTimeout,
			Logger:         m.deps.Logger,
		},
		Confirmation: workers.ConfirmationSweeper{
			Queue:          m.deps.Confirmations,
			Ledger:         m.deps.Ledger,
			Clock:          m.deps.Clock,
			IDGenerator:    m.deps.IDGenerator,
			WorkerID:       workerID + "-confirmation",
			BatchSize:      cfg.ConfirmationBatchSize,
			LeaseTTL:       cfg.LeaseTTL,
			AttemptTimeout: cfg.AttemptTimeout,
			Logger:         m.deps.Logger,
		},
		Relay:                    relay,
		PollInterval:             cfg.PollInterval,
		ConfirmationPollInterval: cfg.ConfirmationPollInterval,
		WorkerLoops:              cfg.WorkerLoops,
		ShutdownGrace:            cfg.ShutdownGrace,
		Logger:                   m.deps.Logger,
	}
}
