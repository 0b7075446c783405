package alert

import (
	"context"
	"time"

	"cryptotrack-alerts/internal/lock"
	"cryptotrack-alerts/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Runner runs one sweep.
type Runner interface {
	RunSweep(ctx context.Context) (types.SweepSummary, error)
}

// RunLocked runs one sweep while holding locker. It returns lock.ErrHeld when
// another sweep is in progress.
func RunLocked(ctx context.Context, runner Runner, locker lock.Locker) (types.SweepSummary, error) {
	release, err := locker.Acquire(ctx)
	if err != nil {
		return types.SweepSummary{}, err
	}
	defer release()

	return runner.RunSweep(ctx)
}

// StartSweepService sweeps right away and then every interval until ctx is done.
// The returned channel is closed once the loop has exited.
func StartSweepService(ctx context.Context, runner Runner, locker lock.Locker, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			sweepOnce(ctx, runner, locker)

			select {
			case <-ctx.Done():
				log.Info("🛑 Alert service stopped.")
				return
			case <-ticker.C:
			}
		}
	}()

	log.Infof("🚀 Alert service started, checking every %s.", interval)
	return done
}

func sweepOnce(ctx context.Context, runner Runner, locker lock.Locker) {
	_, err := RunLocked(ctx, runner, locker)
	switch {
	case err == nil:
	case errors.Is(err, lock.ErrHeld):
		log.Info("⏭️ Previous sweep still running, skipping this tick.")
	default:
		log.Errorf("❌ Sweep failed: %v", err)
	}
}
