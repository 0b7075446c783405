package alert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cryptotrack-alerts/internal/database"
	"cryptotrack-alerts/internal/lock"
	"cryptotrack-alerts/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu         sync.Mutex
	alerts     []types.Alert
	listErr    error
	markErr    map[string]error
	resolveErr map[string]error
	addresses  map[string]string
	marked     []string
}

func (r *fakeRepo) FetchActive(context.Context) ([]types.Alert, error) {
	return r.alerts, r.listErr
}

func (r *fakeRepo) MarkTriggered(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.markErr[id]; err != nil {
		return err
	}
	r.marked = append(r.marked, id)
	return nil
}

func (r *fakeRepo) ResolveNotificationAddress(_ context.Context, userID string) (string, error) {
	if err := r.resolveErr[userID]; err != nil {
		return "", err
	}
	return r.addresses[userID], nil
}

type fakeGateway struct {
	mu        sync.Mutex
	snapshots map[string]types.Snapshot
	panics    map[string]bool
	calls     map[string]int
}

func (g *fakeGateway) Fetch(_ context.Context, asset string) (types.Snapshot, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[asset]++
	g.mu.Unlock()

	if g.panics[asset] {
		panic("provider exploded")
	}
	s, ok := g.snapshots[asset]
	if !ok {
		return types.Snapshot{}, fmt.Errorf("all providers failed for %s: %w", asset, types.ErrDataUnavailable)
	}
	return s, nil
}

type sentNotification struct {
	address string
	alertID string
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []sentNotification
}

func (n *fakeNotifier) Send(_ context.Context, address string, a types.Alert, _ types.Snapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, sentNotification{address: address, alertID: a.ID})
	return n.err
}

type recordingObserver struct {
	mu       sync.Mutex
	stages   []string
	notified []error
	finished int
}

func (o *recordingObserver) StageFailed(stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) NotificationResult(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notified = append(o.notified, err)
}

func (o *recordingObserver) SweepFinished(types.SweepSummary, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
}

func newAlert(id, asset string, c types.Condition) types.Alert {
	return types.Alert{ID: id, UserID: "user-" + id, Asset: asset, Condition: c, NotifyByEmail: true, Active: true}
}

func TestRunSweepEmpty(t *testing.T) {
	obs := &recordingObserver{}
	s := NewSweeper(&fakeRepo{}, &fakeGateway{}, &fakeNotifier{}, Options{Observer: obs})

	summary, err := s.RunSweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Processed)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 0, summary.TotalChecked)
	assert.NotNil(t, summary.Processed)
	assert.NotNil(t, summary.Errors)
	assert.Equal(t, 1, obs.finished)
}

func TestRunSweepListFailureIsFatal(t *testing.T) {
	repo := &fakeRepo{listErr: types.ErrStoreUnavailable}
	s := NewSweeper(repo, &fakeGateway{}, &fakeNotifier{}, Options{})

	_, err := s.RunSweep(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStoreUnavailable))
}

func TestRunSweepScenarios(t *testing.T) {
	repo := &fakeRepo{
		alerts: []types.Alert{
			newAlert("boundary-above", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(50000)}),
			newAlert("below-miss", "bitcoin-b", types.PriceCondition{Direction: types.Below, Threshold: types.Float(50000)}),
			newAlert("pct", "ethereum", types.PercentChangeCondition{Direction: types.Above, Threshold: types.Float(5)}),
			newAlert("vol-miss", "solana", types.VolumeCondition{Threshold: types.Float(1000000000)}),
			newAlert("vol-hit", "cardano", types.VolumeCondition{Threshold: types.Float(1000000000)}),
		},
		addresses: map[string]string{},
	}
	gateway := &fakeGateway{snapshots: map[string]types.Snapshot{
		"bitcoin":   {CurrentPrice: 50000},
		"bitcoin-b": {CurrentPrice: 50001},
		"ethereum":  {PercentChange24h: 5.01},
		"solana":    {TotalVolume24h: 999999999},
		"cardano":   {TotalVolume24h: 1000000000},
	}}

	summary, err := NewSweeper(repo, gateway, &fakeNotifier{}, Options{}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"boundary-above", "pct", "vol-hit"}, summary.Processed)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 5, summary.TotalChecked)
	assert.ElementsMatch(t, []string{"boundary-above", "pct", "vol-hit"}, repo.marked)
}

func TestRunSweepFaultIsolation(t *testing.T) {
	repo := &fakeRepo{
		alerts: []types.Alert{
			newAlert("a", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)}),
			newAlert("boom", "cursed", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)}),
			newAlert("missing", "nowhere", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)}),
			newAlert("mark-fails", "ethereum", types.PriceCondition{Direction: types.Below, Threshold: types.Float(1)}),
			newAlert("c", "ethereum", types.PriceCondition{Direction: types.Below, Threshold: types.Float(1)}),
		},
		markErr: map[string]error{"mark-fails": types.ErrStoreUnavailable},
	}
	gateway := &fakeGateway{
		snapshots: map[string]types.Snapshot{
			"bitcoin":  {CurrentPrice: 100},
			"ethereum": {CurrentPrice: 0.5},
		},
		panics: map[string]bool{"cursed": true},
	}
	obs := &recordingObserver{}

	summary, err := NewSweeper(repo, gateway, nil, Options{Observer: obs}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, summary.Processed)
	require.Len(t, summary.Errors, 3)
	assert.Equal(t, "boom", summary.Errors[0].ID)
	assert.Contains(t, summary.Errors[0].Message, "panic")
	assert.Equal(t, "missing", summary.Errors[1].ID)
	assert.Contains(t, summary.Errors[1].Message, StageFetch)
	assert.Equal(t, "mark-fails", summary.Errors[2].ID)
	assert.Contains(t, summary.Errors[2].Message, StageMark)
	assert.ElementsMatch(t, []string{StagePanic, StageFetch, StageMark}, obs.stages)
}

func TestRunSweepNotifiesBeforeMarking(t *testing.T) {
	repo := &fakeRepo{
		alerts: []types.Alert{
			newAlert("with-address", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)}),
			newAlert("no-address", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)}),
		},
		addresses: map[string]string{"user-with-address": "user@example.com"},
	}
	quiet := newAlert("opted-out", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)})
	quiet.NotifyByEmail = false
	repo.alerts = append(repo.alerts, quiet)
	repo.addresses["user-opted-out"] = "other@example.com"

	gateway := &fakeGateway{snapshots: map[string]types.Snapshot{"bitcoin": {CurrentPrice: 2}}}
	notifier := &fakeNotifier{}

	summary, err := NewSweeper(repo, gateway, notifier, Options{}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"with-address", "no-address", "opted-out"}, summary.Processed)
	assert.Equal(t, []sentNotification{{address: "user@example.com", alertID: "with-address"}}, notifier.sent)
	assert.Equal(t, 1, gateway.calls["bitcoin"], "one fetch per asset per sweep")
}

func TestRunSweepNotificationFailureStillMarks(t *testing.T) {
	repo := &fakeRepo{
		alerts:    []types.Alert{newAlert("a", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)})},
		addresses: map[string]string{"user-a": "user@example.com"},
	}
	gateway := &fakeGateway{snapshots: map[string]types.Snapshot{"bitcoin": {CurrentPrice: 2}}}
	notifier := &fakeNotifier{err: types.ErrNotificationFailed}
	obs := &recordingObserver{}

	summary, err := NewSweeper(repo, gateway, notifier, Options{Observer: obs}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, summary.Processed)
	assert.Empty(t, summary.Errors)
	require.Len(t, summary.NotificationErrors, 1)
	assert.Equal(t, "a", summary.NotificationErrors[0].ID)
	assert.Equal(t, []string{"a"}, repo.marked)
	require.Len(t, obs.notified, 1)
	assert.Error(t, obs.notified[0])
}

type panicNotifier struct{}

func (panicNotifier) Send(context.Context, string, types.Alert, types.Snapshot) error {
	panic("transport exploded")
}

func TestRunSweepNotifierPanicStillMarks(t *testing.T) {
	repo := &fakeRepo{
		alerts:    []types.Alert{newAlert("a", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)})},
		addresses: map[string]string{"user-a": "user@example.com"},
	}
	gateway := &fakeGateway{snapshots: map[string]types.Snapshot{"bitcoin": {CurrentPrice: 2}}}
	obs := &recordingObserver{}

	summary, err := NewSweeper(repo, gateway, panicNotifier{}, Options{Observer: obs}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, summary.Processed)
	assert.Empty(t, summary.Errors)
	require.Len(t, summary.NotificationErrors, 1)
	assert.Contains(t, summary.NotificationErrors[0].Message, "transport exploded")
	assert.Equal(t, []string{"a"}, repo.marked)
	assert.Equal(t, []string{StageNotify}, obs.stages)
}

func TestRunSweepResolveFailureStillMarks(t *testing.T) {
	repo := &fakeRepo{
		alerts:     []types.Alert{newAlert("a", "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)})},
		resolveErr: map[string]error{"user-a": types.ErrStoreUnavailable},
	}
	gateway := &fakeGateway{snapshots: map[string]types.Snapshot{"bitcoin": {CurrentPrice: 2}}}
	notifier := &fakeNotifier{}
	obs := &recordingObserver{}

	summary, err := NewSweeper(repo, gateway, notifier, Options{Observer: obs}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, summary.Processed)
	assert.Empty(t, summary.Errors)
	require.Len(t, summary.NotificationErrors, 1)
	assert.Equal(t, "a", summary.NotificationErrors[0].ID)
	assert.Contains(t, summary.NotificationErrors[0].Message, StageResolve)
	assert.Equal(t, []string{"a"}, repo.marked)
	assert.Empty(t, notifier.sent)
	assert.Equal(t, []string{StageResolve}, obs.stages)
}

func TestRunSweepWorkersShareAssetFetch(t *testing.T) {
	var alerts []types.Alert
	for i := 0; i < 8; i++ {
		alerts = append(alerts, newAlert(fmt.Sprintf("a%d", i), "bitcoin", types.PriceCondition{Direction: types.Above, Threshold: types.Float(1)}))
	}
	repo := &fakeRepo{alerts: alerts}
	gateway := &fakeGateway{snapshots: map[string]types.Snapshot{"bitcoin": {CurrentPrice: 2}}}

	summary, err := NewSweeper(repo, gateway, nil, Options{Workers: 8}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Len(t, summary.Processed, 8)
	assert.Equal(t, 1, gateway.calls["bitcoin"])
}

func TestRunSweepWorkersKeepOrder(t *testing.T) {
	var alerts []types.Alert
	snapshots := map[string]types.Snapshot{}
	var expected []string
	for i := 0; i < 40; i++ {
		asset := fmt.Sprintf("coin-%d", i)
		id := fmt.Sprintf("alert-%02d", i)
		alerts = append(alerts, newAlert(id, asset, types.PriceCondition{Direction: types.Above, Threshold: types.Float(10)}))
		if i%3 == 0 {
			snapshots[asset] = types.Snapshot{CurrentPrice: 20}
			expected = append(expected, id)
		} else {
			snapshots[asset] = types.Snapshot{CurrentPrice: 5}
		}
	}
	repo := &fakeRepo{alerts: alerts}

	summary, err := NewSweeper(repo, &fakeGateway{snapshots: snapshots}, nil, Options{Workers: 8}).RunSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, expected, summary.Processed)
	assert.Equal(t, 40, summary.TotalChecked)
	assert.ElementsMatch(t, expected, repo.marked)
}

func TestRunLockedSkipsWhenHeld(t *testing.T) {
	locker := lock.NewLocalLocker()
	release, err := locker.Acquire(context.Background())
	require.NoError(t, err)

	s := NewSweeper(&fakeRepo{}, &fakeGateway{}, nil, Options{})
	_, err = RunLocked(context.Background(), s, locker)
	assert.True(t, errors.Is(err, lock.ErrHeld))

	release()
	_, err = RunLocked(context.Background(), s, locker)
	assert.NoError(t, err)
}

type countingRunner struct {
	mu    sync.Mutex
	calls int
}

func (c *countingRunner) RunSweep(context.Context) (types.SweepSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return types.SweepSummary{}, nil
}

func (c *countingRunner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestStartSweepService(t *testing.T) {
	runner := &countingRunner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := StartSweepService(ctx, runner, lock.NewLocalLocker(), 5*time.Millisecond)

	assert.Eventually(t, func() bool { return runner.count() >= 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
}

func TestRunSweepAgainstSQLite(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	defer db.Close()
	store := database.NewSQLiteStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertUser(ctx, &types.User{ID: "u1", Email: "user@example.com"}))
	hit := types.Alert{UserID: "u1", Asset: "bitcoin", NotifyByEmail: true, Active: true,
		Condition: types.PriceCondition{Direction: types.Above, Threshold: types.Float(50000)}}
	miss := types.Alert{UserID: "u1", Asset: "bitcoin", Active: true,
		Condition: types.PriceCondition{Direction: types.Below, Threshold: types.Float(40000)}}
	require.NoError(t, store.InsertAlert(ctx, &hit))
	require.NoError(t, store.InsertAlert(ctx, &miss))

	gateway := &fakeGateway{snapshots: map[string]types.Snapshot{"bitcoin": {CurrentPrice: 50000}}}
	notifier := &fakeNotifier{}
	s := NewSweeper(store, gateway, notifier, Options{})

	summary, err := s.RunSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{hit.ID}, summary.Processed)
	assert.Equal(t, 2, summary.TotalChecked)
	assert.Equal(t, []sentNotification{{address: "user@example.com", alertID: hit.ID}}, notifier.sent)

	stored, err := store.GetAlert(ctx, hit.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Active)
	assert.NotNil(t, stored.TriggeredAt)

	summary, err = s.RunSweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.Processed)
	assert.Equal(t, 1, summary.TotalChecked)
	assert.Len(t, notifier.sent, 1)
}
