package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	application "notary/contexts/ledger-anchoring/record-anchoring-service/application"
)

const (
	defaultPollInterval             = 2 * time.Second
	defaultConfirmationPollInterval = 15 * time.Second
	defaultShutdownGrace            = 10 * time.Second
)

var ErrRunnerAlreadyStarted = errors.New("anchoring runner already started")

// Runner owns the long-lived worker loops: WorkerLoops submission loops, one
// confirmation loop and, when Relay is set, one outbox relay loop.
//
// Stopping is a broadcast. Each loop observes it at its next safe point (top of
// a cycle or during a sleep) and exits; a cycle already running keeps its I/O
// context for up to ShutdownGrace, after which that context is cancelled.
type Runner struct {
	Submission               SubmissionWorker
	Confirmation             ConfirmationSweeper
	Relay                    *OutboxRelay
	PollInterval             time.Duration
	ConfirmationPollInterval time.Duration
	WorkerLoops              int
	ShutdownGrace            time.Duration
	Logger                   *slog.Logger

	mu   sync.Mutex
	stop context.CancelFunc
	done chan struct{}
}

// Start launches the loops and returns immediately. Cancelling ctx has the same
// effect as calling Stop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return ErrRunnerAlreadyStarted
	}
	logger := application.ResolveLogger(r.Logger)

	loopCtx, stopLoops := context.WithCancel(ctx)
	workCtx, abortWork := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	var wg sync.WaitGroup

	loops := r.WorkerLoops
	if loops <= 0 {
		loops = 1
	}
	baseID := r.Submission.WorkerID
	if baseID == "" {
		baseID = "submission"
	}
	for i := 0; i < loops; i++ {
		worker := r.Submission
		worker.WorkerID = fmt.Sprintf("%s-%d", baseID, i+1)
		wg.Add(1)
		go r.loop(loopCtx, workCtx, &wg, worker.WorkerID, r.pollInterval(), func(ctx context.Context) error {
			_, err := worker.RunOnce(ctx)
			return err
		})
	}

	sweeper := r.Confirmation
	if sweeper.WorkerID == "" {
		sweeper.WorkerID = baseID + "-confirmation"
	}
	wg.Add(1)
	go r.loop(loopCtx, workCtx, &wg, sweeper.WorkerID, r.confirmationPollInterval(), func(ctx context.Context) error {
		_, err := sweeper.RunOnce(ctx)
		return err
	})

	if r.Relay != nil {
		relay := *r.Relay
		wg.Add(1)
		go r.loop(loopCtx, workCtx, &wg, baseID+"-outbox", r.pollInterval(), relay.RunOnce)
	}

	go func() {
		wg.Wait()
		abortWork()
		stopLoops()
		close(done)
		r.clear(done)
	}()
	go r.enforceGrace(loopCtx, done, abortWork)

	r.stop = stopLoops
	r.done = done

	if configured := r.Submission.LeaseTTL; configured > 0 {
		if effective := EffectiveLeaseTTL(configured, r.Submission.attemptTimeout()); effective != configured {
			logger.Warn("lease ttl raised to cover a full attempt",
				"event", "anchoring_runner_lease_ttl_raised",
				"module", application.ModuleName,
				"layer", "worker",
				"configured", configured.String(),
				"effective", effective.String(),
			)
		}
	}

	logger.Info("anchoring runner started",
		"event", "anchoring_runner_started",
		"module", application.ModuleName,
		"layer", "worker",
		"worker_loops", loops,
		"poll_interval", r.pollInterval().String(),
		"confirmation_poll_interval", r.confirmationPollInterval().String(),
	)
	return nil
}

// Stop broadcasts shutdown and waits for every loop to exit or ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}

	stop()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.clear(done)

	application.ResolveLogger(r.Logger).Info("anchoring runner stopped",
		"event", "anchoring_runner_stopped",
		"module", application.ModuleName,
		"layer", "worker",
	)
	return nil
}

// Running reports whether loops from the last Start are still alive. It turns
// false on its own when the Start context is cancelled.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done != nil
}

func (r *Runner) clear(done chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == done {
		r.stop = nil
		r.done = nil
	}
}

func (r *Runner) loop(
	loopCtx context.Context,
	workCtx context.Context,
	wg *sync.WaitGroup,
	name string,
	interval time.Duration,
	cycle func(context.Context) error,
) {
	defer wg.Done()
	logger := application.ResolveLogger(r.Logger)
	for {
		if loopCtx.Err() != nil {
			return
		}
		if err := cycle(workCtx); err != nil {
			// Store outages land here; nothing was mutated, so the next cycle simply retries.
			logger.Warn("worker cycle aborted",
				"event", "anchoring_worker_cycle_aborted",
				"module", application.ModuleName,
				"layer", "worker",
				"loop", name,
				"error", err.Error(),
			)
		}
		if !SleepOrStop(loopCtx, interval) {
			return
		}
	}
}

func (r *Runner) enforceGrace(loopCtx context.Context, done <-chan struct{}, abortWork context.CancelFunc) {
	select {
	case <-done:
		return
	case <-loopCtx.Done():
	}

	grace := r.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		application.ResolveLogger(r.Logger).Warn("shutdown grace elapsed, abandoning in-flight attempts",
			"event", "anchoring_runner_grace_elapsed",
			"module", application.ModuleName,
			"layer", "worker",
			"grace", grace.String(),
		)
		abortWork()
	}
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval <= 0 {
		return defaultPollInterval
	}
	return r.PollInterval
}

func (r *Runner) confirmationPollInterval() time.Duration {
	if r.ConfirmationPollInterval <= 0 {
		return defaultConfirmationPollInterval
	}
	return r.ConfirmationPollInterval
}

// SleepOrStop races a timer against ctx. It returns false when ctx wins, and
// also when both are ready, so a pending stop always takes priority.
func SleepOrStop(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return ctx.Err() == nil
	}
}
