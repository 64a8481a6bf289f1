package housekeeper

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/dbsmedya/proxyhk/internal/logger"
	"github.com/dbsmedya/proxyhk/internal/rtc"
	"github.com/dbsmedya/proxyhk/internal/sqlutil"
)

// DefaultStartupDelay is the idle time before the first scheduled cycle.
const DefaultStartupDelay = 30 * time.Minute

// Opener opens a database handle for one cycle. The worker closes it when
// the cycle ends.
type Opener interface {
	Open(ctx context.Context) (*sql.DB, error)
}

// CycleRecorder receives the result of every cycle.
type CycleRecorder interface {
	RecordCycle(result RunResult)
}

// Guard is consulted before every cycle. An error means this worker may no
// longer run, e.g. because another instance took over the database.
type Guard interface {
	Verify(ctx context.Context) error
}

// State is the scheduler state.
type State int

const (
	StateStartupIdle State = iota
	StateWaiting
	StateRunning
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateStartupIdle:
		return "startup_idle"
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// WorkerConfig configures the scheduling loop.
type WorkerConfig struct {
	// Frequency between scheduled cycles. 0 means cycles only run on command.
	Frequency    time.Duration
	StartupDelay time.Duration
	Window       RetentionWindow
	Dialect      sqlutil.Dialect
	// Tables defaults to Tables.
	Tables []TableSpec
	// Guard is optional.
	Guard Guard
}

// Worker is the housekeeping scheduler.
type Worker struct {
	cfg      WorkerConfig
	clock    clock.Clock
	inbox    *rtc.Inbox
	opener   Opener
	engine   *Engine
	recorder CycleRecorder
	logger   *logger.Logger

	mu     sync.Mutex
	state  State
	status string
}

// NewWorker creates a worker reading commands from inbox. clk and recorder
// may be nil.
func NewWorker(cfg WorkerConfig, inbox *rtc.Inbox, opener Opener, clk clock.Clock, recorder CycleRecorder, log *logger.Logger) (*Worker, error) {
	if inbox == nil {
		return nil, fmt.Errorf("inbox is nil")
	}
	if opener == nil {
		return nil, fmt.Errorf("opener is nil")
	}
	if cfg.Frequency < 0 {
		return nil, fmt.Errorf("frequency cannot be negative: %s", cfg.Frequency)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = DefaultStartupDelay
	}
	if len(cfg.Tables) == 0 {
		cfg.Tables = Tables
	}

	return &Worker{
		cfg:      cfg,
		clock:    clk,
		inbox:    inbox,
		opener:   opener,
		engine:   NewEngine(cfg.Dialect, cfg.Window, log.WithComponent("retention")),
		recorder: recorder,
		logger:   log,
		state:    StateStartupIdle,
	}, nil
}

// State returns the current scheduler state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns a short human readable description of what the worker does.
func (w *Worker) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Worker) setState(state State, status string) {
	w.mu.Lock()
	w.state = state
	w.status = status
	w.mu.Unlock()
	w.logger.Debugf("housekeeper [%s]", status)
}

// Run executes the scheduling loop until a shutdown command arrives or ctx
// is cancelled. Cancellation is only observed while waiting; a running
// cycle always completes. Run returns nil on shutdown and an error when the
// guard refuses a cycle.
func (w *Worker) Run(ctx context.Context) error {
	idle := w.idleText()
	nextWait := rtc.WaitForever
	if w.cfg.Frequency > 0 {
		nextWait = w.cfg.StartupDelay
		w.setState(StateStartupIdle, fmt.Sprintf("startup idle for %d minutes", int(w.cfg.StartupDelay/time.Minute)))
	} else {
		w.setState(StateWaiting, idle)
	}

	w.logger.Infow("housekeeper started",
		"frequency", w.cfg.Frequency.String(),
		"offline_buffer_hours", w.cfg.Window.OfflineBufferHours,
		"local_buffer_hours", w.cfg.Window.LocalBufferHours,
	)

	for {
		sleepStart := w.clock.Now()

		trigger, shutdown := w.wait(ctx, nextWait)
		if shutdown {
			w.setState(StateShutdown, "terminated")
			w.logger.Info("housekeeper stopped")
			return nil
		}

		nextWait = rtc.WaitForever
		if w.cfg.Frequency > 0 {
			nextWait = w.cfg.Frequency
		}

		dbCtx := context.WithoutCancel(ctx)
		if w.cfg.Guard != nil {
			if err := w.cfg.Guard.Verify(dbCtx); err != nil {
				w.setState(StateShutdown, "terminated")
				w.logger.Errorf("housekeeper stopped: %v", err)
				return fmt.Errorf("cannot continue housekeeping: %w", err)
			}
		}

		result := w.RunCycle(dbCtx, trigger, w.clock.Now().Sub(sleepStart))
		w.logger.WithCycle(result.CycleID).Warnf("deleted %d records in %f sec, %s",
			result.RecordsDeleted, result.Duration.Seconds(), idle)

		w.setState(StateWaiting, idle)
	}
}

// wait blocks for up to timeout and decides what ends the wait: timer
// expiry, a forced execution or shutdown. Once a forced execution is
// received, remaining commands are drained without blocking.
func (w *Worker) wait(ctx context.Context, timeout time.Duration) (Trigger, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = w.clock.Now().Add(timeout)
	}
	forced := false

	for {
		cmds, err := w.inbox.Wait(ctx, timeout)
		if err != nil {
			w.logger.Infof("wait interrupted: %v", err)
			return "", true
		}
		if len(cmds) == 0 {
			if forced {
				return TriggerForced, false
			}
			return TriggerScheduled, false
		}

		for _, cmd := range cmds {
			switch cmd {
			case rtc.CommandExecute:
				if forced {
					w.logger.Warn("housekeeping procedure is already in progress")
					continue
				}
				w.logger.Warn("forced execution of the housekeeper")
				forced = true
			case rtc.CommandShutdown:
				return "", true
			default:
				w.logger.Warnf("ignoring unsupported runtime control command %s", cmd)
			}
		}

		switch {
		case forced:
			timeout = 0
		case timeout > 0:
			timeout = deadline.Sub(w.clock.Now())
			if timeout <= 0 {
				return TriggerScheduled, false
			}
		}
	}
}

// RunCycle performs one housekeeping pass over every table. The database is
// opened at the start and closed at the end of the cycle. A failing table
// does not stop the remaining ones.
func (w *Worker) RunCycle(ctx context.Context, trigger Trigger, timeSlept time.Duration) *RunResult {
	started := w.clock.Now()
	period := ComputePeriod(timeSlept)
	cycle := CycleContext{Now: started.Unix(), SchedulePeriodSeconds: period}
	result := newRunResult(uuid.NewString(), trigger, period)
	log := w.logger.WithCycle(result.CycleID)

	w.setState(StateRunning, "connecting to the database")
	log.Warnf("executing housekeeper (%s, period %ds)", trigger, period)

	db, err := w.opener.Open(ctx)
	if err != nil {
		log.Errorf("cannot open database: %v", err)
		result.Err = err
		w.finish(result, started)
		return result
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warnf("failed to close database: %v", err)
		}
	}()

	w.setState(StateRunning, "removing old history")
	for _, spec := range w.cfg.Tables {
		deleted, err := w.engine.DeleteTable(ctx, db, spec, cycle)
		if err != nil {
			log.WithTable(spec.TableName).Errorf("housekeeping failed: %v", err)
			result.fail(spec.TableName)
			continue
		}
		result.record(spec.TableName, deleted)
		log.WithTable(spec.TableName).Debugf("deleted %d records", deleted)
	}

	w.finish(result, started)
	return result
}

func (w *Worker) finish(result *RunResult, started time.Time) {
	result.Duration = w.clock.Now().Sub(started)
	if w.recorder != nil {
		w.recorder.RecordCycle(*result)
	}
}

func (w *Worker) idleText() string {
	if w.cfg.Frequency == 0 {
		return "waiting for user command"
	}
	return fmt.Sprintf("idle for %d hour(s)", int(w.cfg.Frequency/time.Hour))
}
