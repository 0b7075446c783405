package alert

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"cryptotrack-alerts/internal/price"
	"cryptotrack-alerts/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Stages of per-alert processing, used in logs, sweep errors and metrics.
const (
	StageFetch   = "fetch"
	StageResolve = "resolve"
	StageNotify  = "notify"
	StageMark    = "mark"
	StagePanic   = "panic"
)

// Repository is the persistent side of a sweep.
type Repository interface {
	FetchActive(ctx context.Context) ([]types.Alert, error)
	MarkTriggered(ctx context.Context, id string) error
	ResolveNotificationAddress(ctx context.Context, userID string) (string, error)
}

// Notifier delivers a message for a triggered alert.
type Notifier interface {
	Send(ctx context.Context, address string, a types.Alert, snapshot types.Snapshot) error
}

// Observer receives sweep telemetry.
type Observer interface {
	StageFailed(stage string)
	NotificationResult(err error)
	SweepFinished(summary types.SweepSummary, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) StageFailed(string)                              {}
func (noopObserver) NotificationResult(error)                        {}
func (noopObserver) SweepFinished(types.SweepSummary, time.Duration) {}

// Options tune a Sweeper. Zero values are valid.
type Options struct {
	// Workers bounds how many alerts are processed at once. Values below 2 run sequentially.
	Workers  int
	Observer Observer
}

// Sweeper runs one pass over all active alerts.
type Sweeper struct {
	repo     Repository
	gateway  price.Fetcher
	notifier Notifier
	workers  int
	observer Observer
}

// NewSweeper wires a sweep. notifier may be nil, in which case triggered alerts are
// marked without notification.
func NewSweeper(repo Repository, gateway price.Fetcher, notifier Notifier, opts Options) *Sweeper {
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	return &Sweeper{
		repo:     repo,
		gateway:  gateway,
		notifier: notifier,
		workers:  opts.Workers,
		observer: opts.Observer,
	}
}

type outcome struct {
	processed bool
	err       *types.SweepError
	notifyErr *types.SweepError
}

// RunSweep evaluates every active alert. Only a failure to list alerts is returned as
// an error; everything else is isolated per alert and reported in the summary.
func (s *Sweeper) RunSweep(ctx context.Context) (types.SweepSummary, error) {
	start := time.Now()
	log.Info("🔄 Checking alerts...")

	alerts, err := s.repo.FetchActive(ctx)
	if err != nil {
		log.Errorf("❌ Failed to fetch alerts from the database: %v", err)
		return types.SweepSummary{}, errors.Wrap(err, "could not load active alerts")
	}

	summary := types.SweepSummary{
		Processed:    []string{},
		Errors:       []types.SweepError{},
		TotalChecked: len(alerts),
	}

	if len(alerts) == 0 {
		log.Info("✅ No active alerts to check.")
		s.observer.SweepFinished(summary, time.Since(start))
		return summary, nil
	}

	snapshots := price.NewCache(s.gateway, 0)
	outcomes := make([]outcome, len(alerts))

	s.forEach(len(alerts), func(i int) {
		outcomes[i] = s.process(ctx, snapshots, alerts[i])
	})

	for i, o := range outcomes {
		if o.err != nil {
			summary.Errors = append(summary.Errors, *o.err)
		}
		if o.notifyErr != nil {
			summary.NotificationErrors = append(summary.NotificationErrors, *o.notifyErr)
		}
		if o.processed {
			summary.Processed = append(summary.Processed, alerts[i].ID)
		}
	}

	elapsed := time.Since(start)
	s.observer.SweepFinished(summary, elapsed)

	log.WithFields(log.Fields{
		"checked":   summary.TotalChecked,
		"triggered": len(summary.Processed),
		"errors":    len(summary.Errors),
		"elapsed":   elapsed,
	}).Info("✅ Alert check completed.")

	return summary, nil
}

// forEach calls fn for 0..n-1, using up to s.workers goroutines.
func (s *Sweeper) forEach(n int, fn func(i int)) {
	if s.workers < 2 || n < 2 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	workers := s.workers
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func (s *Sweeper) process(ctx context.Context, snapshots price.Fetcher, a types.Alert) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("🔥 Panic recovered while processing alert %s: %v\nStack trace: %s", a.ID, r, stackTrace)

			o = outcome{err: s.fail(a, StagePanic, errors.Errorf("panic: %v", r))}
		}
	}()

	snapshot, err := snapshots.Fetch(ctx, a.Asset)
	if err != nil {
		return outcome{err: s.fail(a, StageFetch, err)}
	}

	threshold := types.Threshold(a.Condition)
	if !IsTriggered(a, snapshot) {
		log.Debugf("🔍 Alert %s | %s %s | observed %v | threshold %v | not triggered",
			a.ID, a.Asset, a.Condition.Kind(), Observed(a.Condition, snapshot), derefOrNil(threshold))
		return outcome{}
	}

	log.Infof("🚨 Alert %s triggered | %s %s | observed %v | threshold %v",
		a.ID, a.Asset, a.Condition.Kind(), Observed(a.Condition, snapshot), derefOrNil(threshold))

	if a.NotifyByEmail {
		o.notifyErr = s.notify(ctx, a, snapshot)
	}

	if err := s.repo.MarkTriggered(ctx, a.ID); err != nil {
		o.err = s.fail(a, StageMark, err)
		return o
	}

	o.processed = true
	return o
}

// notify never fails the alert. Its error, or a panic in the transport, only ends up in the summary.
func (s *Sweeper) notify(ctx context.Context, a types.Alert, snapshot types.Snapshot) (notifyErr *types.SweepError) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered while notifying alert %s: %v", a.ID, r)
			notifyErr = s.fail(a, StageNotify, errors.Errorf("panic: %v", r))
		}
	}()

	if s.notifier == nil {
		log.Warnf("⚠️ No notifier configured, alert %s is marked without notification", a.ID)
		return nil
	}

	address, err := s.repo.ResolveNotificationAddress(ctx, a.UserID)
	if err != nil {
		return s.fail(a, StageResolve, err)
	}
	if address == "" {
		log.Infof("📭 No notification address for user %s, skipping alert %s", a.UserID, a.ID)
		return nil
	}

	err = s.notifier.Send(ctx, address, a, snapshot)
	s.observer.NotificationResult(err)
	if err != nil {
		return s.fail(a, StageNotify, err)
	}

	return nil
}

func (s *Sweeper) fail(a types.Alert, stage string, err error) *types.SweepError {
	log.WithFields(log.Fields{
		"alert_id": a.ID,
		"asset":    a.Asset,
		"stage":    stage,
	}).Errorf("❌ %v", err)

	s.observer.StageFailed(stage)

	return &types.SweepError{ID: a.ID, Message: fmt.Sprintf("%s: %v", stage, err)}
}

func derefOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
