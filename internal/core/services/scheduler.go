package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/testctx/internal/core/domain"
	"github.com/custodia-labs/testctx/internal/core/ports/driven"
	"github.com/custodia-labs/testctx/internal/core/ports/driving"
	"github.com/custodia-labs/testctx/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// historyRetention is the number of results kept per task.
const historyRetention = 100

// retryBatchSize bounds the chunks re-embedded per embedding-retry run.
const retryBatchSize = 100

// Scheduler manages background task execution.
// It is a pure core service with no external control API.
type Scheduler struct {
	config domain.SchedulerConfig
	store  driven.SchedulerStore
	ingest driving.IngestService
	tick   time.Duration

	mu      sync.Mutex
	running bool
	active  map[string]struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler with configuration.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	ingest driving.IngestService,
) *Scheduler {
	return &Scheduler{
		config: config,
		store:  store,
		ingest: ingest,
		tick:   time.Minute,
		active: make(map[string]struct{}),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		logger.Info("Scheduler disabled")
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	// Initialise tasks in store
	if err := s.initialiseTasks(ctx); err != nil {
		logger.Warn("scheduler: failed to initialise tasks: %v", err)
	}

	// Run the main scheduler loop
	err := s.run(ctx, stopCh)

	s.mu.Lock()
	if s.running && s.stopCh == stopCh {
		s.running = false
		close(stopCh)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	tasks := []struct {
		id   string
		name string
	}{
		{domain.TaskIDEmbeddingRetry, "Embedding Retry"},
		{domain.TaskIDIndexRebuild, "Index Rebuild"},
	}
	for _, t := range tasks {
		if err := s.ensureTask(ctx, t.id, t.name, s.config.GetTaskConfig(t.id)); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
// Disabled tasks are kept so their history survives a config toggle.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		if !cfg.Enabled {
			return nil
		}
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		// Update interval if changed
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			// Recalculate next run from now
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	// Check for due tasks immediately on startup
	s.checkAndRunDueTasks(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Warn("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task in the background.
// A task still running from an earlier tick is skipped.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.stopCh != nil && !s.running {
		// Stopped; no new work.
		s.mu.Unlock()
		return
	}
	if _, busy := s.active[task.ID]; busy {
		s.mu.Unlock()
		return
	}
	s.active[task.ID] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDEmbeddingRetry:
			result.ItemsProcessed, err = s.runEmbeddingRetry(ctx)
		case domain.TaskIDIndexRebuild:
			result.ItemsProcessed, err = s.runIndexRebuild(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			result.Success = false
			result.Error = err.Error()
			task.LastError = err.Error()
			logger.Warn("scheduler: task %s failed: %v", task.ID, err)
		} else {
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
			logger.Debug("scheduler: task %s processed %d items", task.ID, result.ItemsProcessed)
		}

		// Update task state
		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		// Bookkeeping outlives a cancelled run context.
		storeCtx := context.WithoutCancel(ctx)

		if saveErr := s.store.SaveTask(storeCtx, task); saveErr != nil {
			logger.Warn("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}

		// Record result for history
		if recordErr := s.store.RecordResult(storeCtx, result); recordErr != nil {
			logger.Warn("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}

		if pruneErr := s.store.PruneHistory(storeCtx, historyRetention); pruneErr != nil {
			logger.Warn("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

// runEmbeddingRetry re-embeds chunks left unembedded by failed ingestions.
func (s *Scheduler) runEmbeddingRetry(ctx context.Context) (int, error) {
	if s.ingest == nil {
		return 0, nil
	}
	return s.ingest.RetryUnembedded(ctx, retryBatchSize)
}

// runIndexRebuild regenerates chunks and embeddings from version history.
func (s *Scheduler) runIndexRebuild(ctx context.Context) (int, error) {
	if s.ingest == nil {
		return 0, nil
	}
	return s.ingest.Rebuild(ctx)
}
