// Package scheduler runs one polling control loop per source. Each loop
// re-reads its runtime settings every slice so interval, enable and
// force-check changes take effect without a restart.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/harvester/internal/ingest"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/retry"
)

const (
	defaultSlice         = 10 * time.Second
	defaultRecoveryDelay = 60 * time.Second
)

// State is the externally visible loop state.
type State string

// Loop states.
const (
	StateIdleWaiting State = "idle_waiting"
	StateChecking    State = "checking"
	StateDisabled    State = "disabled"
	StateStopped     State = "stopped"
)

// Settings is the runtime control surface a loop polls.
type Settings interface {
	CheckInterval(ctx context.Context) time.Duration
	Enabled(ctx context.Context) bool
	ConsumeForceCheck(ctx context.Context) bool
	MarkChecked(ctx context.Context, at time.Time) error
}

// Runner executes one ingestion cycle.
type Runner interface {
	Run(ctx context.Context, src ingest.Source) (ingest.CycleStats, error)
}

// Recorder exports loop state.
type Recorder interface {
	SetLoopState(source, state string)
	SetLastCycle(source string, at time.Time, newRecords int)
}

// Config holds loop timing.
type Config struct {
	Slice         time.Duration
	RecoveryDelay time.Duration
}

// Status is a snapshot of a loop.
type Status struct {
	Source      string            `json:"source"`
	State       State             `json:"state"`
	LastSuccess *time.Time        `json:"last_success,omitempty"`
	LastNew     int               `json:"last_new"`
	LastError   string            `json:"last_error,omitempty"`
	Cycles      int               `json:"cycles"`
	LastStats   ingest.CycleStats `json:"last_stats"`
}

// Option configures a Loop.
type Option func(*Loop)

// WithRecorder exports state changes to r.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// Loop is the control loop of a single source.
type Loop struct {
	source   ingest.Source
	settings Settings
	runner   Runner
	recorder Recorder
	log      logger.Logger
	now      func() time.Time

	slice         time.Duration
	recoveryDelay time.Duration

	trigger chan struct{}

	statusMu sync.RWMutex
	status   Status

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a loop for src.
func New(src ingest.Source, settings Settings, runner Runner, cfg Config, log logger.Logger, opts ...Option) *Loop {
	if cfg.Slice <= 0 {
		cfg.Slice = defaultSlice
	}
	if cfg.RecoveryDelay <= 0 {
		cfg.RecoveryDelay = defaultRecoveryDelay
	}

	l := &Loop{
		source:        src,
		settings:      settings,
		runner:        runner,
		log:           log.With(logger.Source(src.Name)),
		now:           time.Now,
		slice:         cfg.Slice,
		recoveryDelay: cfg.RecoveryDelay,
		trigger:       make(chan struct{}, 1),
		status:        Status{Source: src.Name, State: StateStopped},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the source name.
func (l *Loop) Name() string {
	return l.source.Name
}

// Start runs the loop in the background until ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Unlock()

	l.wg.Add(1)
	go l.run(ctx)

	l.log.Info("Control loop started",
		logger.Duration("slice", l.slice),
		logger.Duration("recovery_delay", l.recoveryDelay),
	)
}

// Stop cancels the loop and waits for the current iteration to return.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.mu.Unlock()

	cancel()
	l.wg.Wait()
	l.log.Info("Control loop stopped")
}

// Trigger wakes an idle loop for an immediate cycle. It never blocks.
func (l *Loop) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Status returns a copy of the loop status.
func (l *Loop) Status() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()

	s := l.status
	if s.LastSuccess != nil {
		at := *s.LastSuccess
		s.LastSuccess = &at
	}
	return s
}

// RunOnce runs a single cycle in the caller's goroutine, recording it like a
// scheduled one.
func (l *Loop) RunOnce(ctx context.Context) (ingest.CycleStats, error) {
	return l.cycle(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	defer l.setState(StateStopped)

	for ctx.Err() == nil {
		if err := l.iterate(ctx); err != nil {
			l.log.Error("Control loop iteration panicked",
				logger.Error(err),
				logger.Duration("recovery_delay", l.recoveryDelay),
			)
			if sleepErr := retry.SleepContext(ctx, l.recoveryDelay); sleepErr != nil {
				return
			}
		}
	}
}

// iterate runs one cycle (or one disabled slice) followed by the wait for
// the next one. A panic is returned as an error.
func (l *Loop) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if !l.settings.Enabled(ctx) {
		l.setState(StateDisabled)
		_ = retry.SleepContext(ctx, l.slice)
		return nil
	}

	if _, cycleErr := l.cycle(ctx); cycleErr != nil && ctx.Err() != nil {
		return nil
	}

	l.wait(ctx)
	return nil
}

// wait sleeps in slices until the interval elapses, a force check or
// trigger arrives, the loop is disabled, or ctx ends.
func (l *Loop) wait(ctx context.Context) {
	interval := l.settings.CheckInterval(ctx)
	deadline := l.now().Add(interval)
	l.setState(StateIdleWaiting)

	l.log.Debug("Waiting for next cycle",
		logger.Duration("interval", interval),
		logger.Time("next_check", deadline),
	)

	ticker := time.NewTicker(l.slice)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.trigger:
			l.settings.ConsumeForceCheck(ctx)
			l.log.Info("Cycle triggered")
			return
		case <-ticker.C:
			// The flag is consumed every slice so a force check that lands
			// together with the interval expiry yields a single cycle.
			forced := l.settings.ConsumeForceCheck(ctx)
			if forced {
				l.log.Info("Force check requested")
				return
			}
			if !l.now().Before(deadline) {
				return
			}
			if !l.settings.Enabled(ctx) {
				return
			}
		}
	}
}

// cycle runs the pipeline once and records the outcome.
func (l *Loop) cycle(ctx context.Context) (ingest.CycleStats, error) {
	l.setState(StateChecking)
	started := l.now()
	l.clearPending(ctx)

	stats, err := l.runner.Run(ctx, l.source)

	l.statusMu.Lock()
	l.status.Cycles++
	l.status.LastStats = stats
	if err != nil {
		l.status.LastError = err.Error()
	} else {
		l.status.LastError = ""
		l.status.LastSuccess = &started
		l.status.LastNew = stats.New
	}
	l.statusMu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			l.log.Warn("Cycle failed, waiting for next interval", logger.Error(err))
		}
		return stats, err
	}

	if markErr := l.settings.MarkChecked(ctx, started); markErr != nil {
		l.log.Warn("Failed to record last check time", logger.Error(markErr))
	}
	if l.recorder != nil {
		l.recorder.SetLastCycle(l.source.Name, started, stats.New)
	}

	return stats, nil
}

// clearPending drops check requests made before the cycle started; the
// starting cycle answers them.
func (l *Loop) clearPending(ctx context.Context) {
	select {
	case <-l.trigger:
	default:
	}
	if l.settings.ConsumeForceCheck(ctx) {
		l.log.Debug("Pending force check answered by starting cycle")
	}
}

func (l *Loop) setState(state State) {
	l.statusMu.Lock()
	changed := l.status.State != state
	l.status.State = state
	l.statusMu.Unlock()

	if l.recorder != nil {
		l.recorder.SetLoopState(l.source.Name, string(state))
	}
	if changed {
		l.log.Debug("Loop state changed", logger.String("state", string(state)))
	}
}
