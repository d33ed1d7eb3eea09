package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/reminder-api/internal/cache"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/redact"
	"github.com/phrazzld/reminder-api/internal/scheduler"
)

// MaintainerConfig holds configuration for the background sweeps.
type MaintainerConfig struct {
	// LeaseEnabled turns on the expired-lease reaper.
	LeaseEnabled bool

	// LeaseTimeout is how long a claim may stay unfinalized before the
	// reaper releases it.
	LeaseTimeout time.Duration

	// LeaseCheckInterval defines how often to look for expired leases.
	LeaseCheckInterval time.Duration

	// ReconcileEnabled turns on the reconciliation sweep.
	ReconcileEnabled bool

	// ReconcileInterval defines how often SCHEDULED tasks are checked for
	// a pending reminder job.
	ReconcileInterval time.Duration

	// RetryDelay is the smallest delay given to a re-registered job.
	RetryDelay time.Duration

	// BatchSize bounds the tasks examined per sweep. Zero means no bound.
	BatchSize int
}

// DefaultMaintainerConfig returns a MaintainerConfig with reasonable defaults
func DefaultMaintainerConfig() MaintainerConfig {
	return MaintainerConfig{
		LeaseEnabled:       true,
		LeaseTimeout:       5 * time.Minute,
		LeaseCheckInterval: time.Minute,
		ReconcileEnabled:   true,
		ReconcileInterval:  time.Minute,
		RetryDelay:         30 * time.Second,
		BatchSize:          100,
	}
}

// Maintainer runs the two sweeps that keep tasks moving when a delivery is
// lost: the reaper releases claims whose worker never finalized, and the
// reconciliation re-registers reminder jobs for SCHEDULED tasks that have
// none (publish-failure retries and released leases end up there).
type Maintainer struct {
	repo   *Repository
	queue  scheduler.Queue
	cache  *cache.Guard
	config MaintainerConfig
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMaintainer creates a Maintainer. readCache may be nil.
func NewMaintainer(repo *Repository, queue scheduler.Queue, readCache *cache.Guard, config MaintainerConfig, log *slog.Logger) *Maintainer {
	defaults := DefaultMaintainerConfig()
	if config.LeaseTimeout <= 0 {
		config.LeaseTimeout = defaults.LeaseTimeout
	}
	if config.LeaseCheckInterval <= 0 {
		config.LeaseCheckInterval = defaults.LeaseCheckInterval
	}
	if config.ReconcileInterval <= 0 {
		config.ReconcileInterval = defaults.ReconcileInterval
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if log == nil {
		log = slog.Default()
	}
	if readCache == nil {
		readCache = cache.NewGuard(nil, log)
	}
	return &Maintainer{
		repo:   repo,
		queue:  queue,
		cache:  readCache,
		config: config,
		logger: log.With(slog.String("component", "task_maintainer")),
		now:    time.Now,
	}
}

// Start launches the enabled sweeps. They stop when ctx is cancelled or
// Stop is called.
func (m *Maintainer) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	if m.config.LeaseEnabled {
		m.wg.Add(1)
		go m.loop(ctx, "lease_reaper", m.config.LeaseCheckInterval, m.ReapExpiredLeases)
	}
	if m.config.ReconcileEnabled {
		m.wg.Add(1)
		go m.loop(ctx, "reconcile", m.config.ReconcileInterval, m.Reconcile)
	}
}

// Stop halts the sweeps and waits for a running pass to finish.
func (m *Maintainer) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Maintainer) loop(ctx context.Context, name string, every time.Duration, sweep func(context.Context) (int, error)) {
	defer m.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	m.logger.Debug("starting sweep", slog.String("sweep", name), slog.Duration("interval", every))
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("stopping sweep", slog.String("sweep", name))
			return

		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				m.logger.Error("sweep failed",
					slog.String("sweep", name),
					slog.String("error", redact.Error(err)))
				continue
			}
			if n > 0 {
				m.logger.Info("sweep repaired tasks", slog.String("sweep", name), slog.Int("count", n))
			}
		}
	}
}

// ReapExpiredLeases releases claims older than the lease timeout and
// registers a new reminder job for every task sent back to SCHEDULED. It
// returns the number of leases released.
func (m *Maintainer) ReapExpiredLeases(ctx context.Context) (int, error) {
	expired, err := m.repo.FindExpiredLeases(ctx, m.config.LeaseTimeout, m.config.BatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, t := range expired {
		log := m.logger.With(slog.String("task_id", t.ID.String()))

		updated, ok, err := m.repo.ReleaseExpiredLease(ctx, t, "lease expired before finalization")
		if err != nil {
			log.Error("failed to release expired lease", slog.String("error", redact.Error(err)))
			continue
		}
		if !ok {
			continue
		}
		released++
		invalidate(ctx, m.cache, updated)

		if updated.Status == domain.TaskStatusFailed {
			log.Error("reminder failed, attempts exhausted after expired lease",
				slog.Int("attempts", updated.Attempts))
			continue
		}
		log.Warn("released expired lease", slog.Int("attempts", updated.Attempts))
		if err := ScheduleReminder(ctx, m.queue, updated.ID, m.retryDelay(updated)); err != nil {
			log.Error("failed to re-register reminder after lease release",
				slog.String("error", redact.Error(err)))
		}
	}
	return released, nil
}

// Reconcile registers a reminder job for every SCHEDULED task that has no
// pending one and returns how many it registered.
func (m *Maintainer) Reconcile(ctx context.Context) (int, error) {
	scheduled, err := m.repo.FindByStatus(ctx, domain.TaskStatusScheduled, m.config.BatchSize)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, t := range scheduled {
		log := m.logger.With(slog.String("task_id", t.ID.String()))

		job, err := m.queue.GetJob(ctx, scheduler.ReminderQueue, scheduler.ReminderJobID(t.ID))
		if err != nil {
			log.Error("failed to look up reminder job", slog.String("error", redact.Error(err)))
			continue
		}
		if job != nil {
			continue
		}

		delay := m.retryDelay(t)
		if err := ScheduleReminder(ctx, m.queue, t.ID, delay); err != nil {
			log.Error("failed to re-register reminder", slog.String("error", redact.Error(err)))
			continue
		}
		registered++
		log.Info("re-registered missing reminder job", slog.Duration("delay", delay))
	}
	return registered, nil
}

// retryDelay is the time until the task is due, but at least RetryDelay.
func (m *Maintainer) retryDelay(t *domain.Task) time.Duration {
	delay := t.DueDate.Sub(m.now())
	if delay < m.config.RetryDelay {
		delay = m.config.RetryDelay
	}
	return delay
}
