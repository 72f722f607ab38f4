package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/harvester/internal/ingest"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/scheduler"
)

const (
	testSlice   = 5 * time.Millisecond
	waitFor     = time.Second
	pollEvery   = 2 * time.Millisecond
	quietPeriod = 60 * time.Millisecond
)

type fakeSettings struct {
	mu        sync.Mutex
	enabled   bool
	force     bool
	intervals []time.Duration
	consumed  int
	marked    []time.Time
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{enabled: true}
}

func (f *fakeSettings) CheckInterval(context.Context) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.intervals) == 0 {
		return time.Hour
	}
	d := f.intervals[0]
	if len(f.intervals) > 1 {
		f.intervals = f.intervals[1:]
	}
	return d
}

func (f *fakeSettings) Enabled(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeSettings) ConsumeForceCheck(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.force {
		return false
	}
	f.force = false
	f.consumed++
	return true
}

func (f *fakeSettings) MarkChecked(_ context.Context, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, at)
	return nil
}

func (f *fakeSettings) setEnabled(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = v
}

func (f *fakeSettings) requestCheck() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.force = true
}

func (f *fakeSettings) snapshot() (force bool, consumed, marked int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.force, f.consumed, len(f.marked)
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	panics int
	stats  ingest.CycleStats
	onRun  func(call int)
}

func (r *fakeRunner) Run(context.Context, ingest.Source) (ingest.CycleStats, error) {
	r.mu.Lock()
	r.calls++
	shouldPanic := r.panics > 0
	if shouldPanic {
		r.panics--
	}
	var err error
	if len(r.errs) > 0 {
		err = r.errs[0]
		r.errs = r.errs[1:]
	}
	stats := r.stats
	call := r.calls
	onRun := r.onRun
	r.mu.Unlock()

	if onRun != nil {
		onRun(call)
	}
	if shouldPanic {
		panic("parser exploded")
	}
	return stats, err
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type stateRecorder struct {
	mu     sync.Mutex
	states []string
	last   int
}

func (s *stateRecorder) SetLoopState(_, state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *stateRecorder) SetLastCycle(_ string, _ time.Time, newRecords int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = newRecords
}

func newLoop(t *testing.T, settings scheduler.Settings, runner scheduler.Runner, opts ...scheduler.Option) *scheduler.Loop {
	t.Helper()

	loop := scheduler.New(
		ingest.Source{Name: "documents"},
		settings,
		runner,
		scheduler.Config{Slice: testSlice, RecoveryDelay: 10 * time.Millisecond},
		logger.NewNop(),
		opts...,
	)
	t.Cleanup(loop.Stop)
	return loop
}

func TestLoop_RunsImmediatelyThenWaits(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{stats: ingest.CycleStats{New: 2}}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())

	require.Eventually(t, func() bool { return runner.count() == 1 }, waitFor, pollEvery)
	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateIdleWaiting }, waitFor, pollEvery)
	time.Sleep(quietPeriod)

	assert.Equal(t, 1, runner.count())
	status := loop.Status()
	assert.Equal(t, 1, status.Cycles)
	assert.Equal(t, 2, status.LastNew)
	assert.NotNil(t, status.LastSuccess)
	_, _, marked := settings.snapshot()
	assert.Equal(t, 1, marked)
}

func TestLoop_ForceCheckRunsOneCycleAndClears(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())
	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateIdleWaiting }, waitFor, pollEvery)

	settings.requestCheck()

	require.Eventually(t, func() bool { return runner.count() == 2 }, waitFor, pollEvery)
	time.Sleep(quietPeriod)

	assert.Equal(t, 2, runner.count())
	force, consumed, _ := settings.snapshot()
	assert.False(t, force)
	assert.Equal(t, 1, consumed)
}

func TestLoop_ForceAndIntervalInSameSliceRunOnce(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	// The first wait expires immediately and a force check lands while the
	// first cycle is still running.
	settings.intervals = []time.Duration{0, time.Hour}
	runner := &fakeRunner{onRun: func(call int) {
		if call == 1 {
			settings.requestCheck()
		}
	}}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())

	require.Eventually(t, func() bool { return runner.count() == 2 }, waitFor, pollEvery)
	time.Sleep(quietPeriod)

	assert.Equal(t, 2, runner.count())
	force, consumed, _ := settings.snapshot()
	assert.False(t, force)
	assert.Equal(t, 1, consumed)
}

func TestLoop_PendingCheckAnsweredByStartingCycle(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	settings.enabled = false
	runner := &fakeRunner{}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())
	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateDisabled }, waitFor, pollEvery)

	// A check requested while disabled is both persisted and signalled.
	settings.requestCheck()
	loop.Trigger()
	settings.setEnabled(true)

	require.Eventually(t, func() bool { return runner.count() == 1 }, waitFor, pollEvery)
	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateIdleWaiting }, waitFor, pollEvery)
	time.Sleep(quietPeriod)

	assert.Equal(t, 1, runner.count())
	force, consumed, _ := settings.snapshot()
	assert.False(t, force)
	assert.Equal(t, 1, consumed)
}

func TestLoop_DisabledSkipsCyclesUntilEnabled(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	settings.enabled = false
	runner := &fakeRunner{}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())

	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateDisabled }, waitFor, pollEvery)
	time.Sleep(quietPeriod)
	assert.Zero(t, runner.count())

	settings.setEnabled(true)

	require.Eventually(t, func() bool { return runner.count() == 1 }, waitFor, pollEvery)
}

func TestLoop_DisablingDuringWait(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())
	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateIdleWaiting }, waitFor, pollEvery)

	settings.setEnabled(false)

	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateDisabled }, waitFor, pollEvery)
	assert.Equal(t, 1, runner.count())
}

func TestLoop_CycleErrorWaitsNormalInterval(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{errs: []error{errors.New("fetch documents: HTTP 503")}}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())

	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateIdleWaiting }, waitFor, pollEvery)
	time.Sleep(quietPeriod)

	assert.Equal(t, 1, runner.count())
	status := loop.Status()
	assert.Contains(t, status.LastError, "HTTP 503")
	assert.Nil(t, status.LastSuccess)
	_, _, marked := settings.snapshot()
	assert.Zero(t, marked, "failed cycles do not update last check time")
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{panics: 1}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())

	require.Eventually(t, func() bool { return runner.count() == 2 }, waitFor, pollEvery)
	require.Eventually(t, func() bool { return loop.Status().LastSuccess != nil }, waitFor, pollEvery)
}

func TestLoop_TriggerWakesIdleLoop(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{}
	loop := newLoop(t, settings, runner)

	loop.Start(context.Background())
	require.Eventually(t, func() bool { return loop.Status().State == scheduler.StateIdleWaiting }, waitFor, pollEvery)

	loop.Trigger()

	require.Eventually(t, func() bool { return runner.count() == 2 }, waitFor, pollEvery)
}

func TestLoop_StopEndsLoop(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{}
	rec := &stateRecorder{}
	loop := newLoop(t, settings, runner, scheduler.WithRecorder(rec))

	loop.Start(context.Background())
	require.Eventually(t, func() bool { return runner.count() == 1 }, waitFor, pollEvery)

	loop.Stop()

	assert.Equal(t, scheduler.StateStopped, loop.Status().State)
	loop.Trigger()
	time.Sleep(quietPeriod)
	assert.Equal(t, 1, runner.count())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, string(scheduler.StateChecking), rec.states[0])
	assert.Equal(t, string(scheduler.StateStopped), rec.states[len(rec.states)-1])
}

func TestLoop_RunOnceRecordsCycle(t *testing.T) {
	t.Parallel()

	settings := newFakeSettings()
	runner := &fakeRunner{stats: ingest.CycleStats{Found: 3, New: 1}}
	rec := &stateRecorder{}
	fixed := time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)
	loop := newLoop(t, settings, runner,
		scheduler.WithRecorder(rec),
		scheduler.WithClock(func() time.Time { return fixed }),
	)

	stats, err := loop.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)
	require.NotNil(t, loop.Status().LastSuccess)
	assert.Equal(t, fixed, *loop.Status().LastSuccess)
	assert.Equal(t, 1, rec.last)

	settings.mu.Lock()
	defer settings.mu.Unlock()
	require.Len(t, settings.marked, 1)
	assert.Equal(t, fixed, settings.marked[0])
}

func TestManager_OrderAndLookup(t *testing.T) {
	t.Parallel()

	m := scheduler.NewManager()
	docs := scheduler.New(ingest.Source{Name: "documents"}, newFakeSettings(), &fakeRunner{}, scheduler.Config{}, logger.NewNop())
	events := scheduler.New(ingest.Source{Name: "events"}, newFakeSettings(), &fakeRunner{}, scheduler.Config{}, logger.NewNop())
	m.Add(docs)
	m.Add(events)

	loops := m.Loops()
	require.Len(t, loops, 2)
	assert.Equal(t, "documents", loops[0].Name())
	assert.Equal(t, "events", loops[1].Name())

	got, ok := m.Get("events")
	assert.True(t, ok)
	assert.Same(t, events, got)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}
