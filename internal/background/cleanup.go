package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/billdesk/internal/clock"
)

// CleanupTask removes expired state and reports how many entries went.
type CleanupTask struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// CleanupManager periodically sweeps expired challenges, revocations and
// idle rate limiters from the development backend's memory.
type CleanupManager struct {
	tasks    []CleanupTask
	logger   *slog.Logger
	interval time.Duration
	clock    clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(tasks []CleanupTask, logger *slog.Logger, interval time.Duration, clk clock.Clock) *CleanupManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &CleanupManager{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		clock:    clk,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep immediately and then on every interval until ctx
// is done or Stop is called. Blocks; run it in a goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := cm.clock.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce executes every task once.
func (cm *CleanupManager) RunOnce(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, task := range cm.tasks {
		removed, err := task.Run(cleanupCtx)
		if err != nil {
			cm.logger.Error("cleanup task failed", slog.String("task", task.Name), slog.Any("error", err))
			continue
		}
		if removed > 0 {
			cm.logger.Info("cleanup completed", slog.String("task", task.Name), slog.Int("removed", removed))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
