package housekeeper

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dbsmedya/proxyhk/internal/logger"
	"github.com/dbsmedya/proxyhk/internal/rtc"
	"github.com/dbsmedya/proxyhk/internal/sqlutil"
)

const testWait = 5 * time.Second

var epoch = time.Unix(1_700_000_000, 0)

type staticOpener struct {
	db *sql.DB
}

func (o *staticOpener) Open(context.Context) (*sql.DB, error) {
	return o.db, nil
}

type failingOpener struct{}

func (failingOpener) Open(context.Context) (*sql.DB, error) {
	return nil, errors.New("dial tcp: connection refused")
}

// mockOpener hands out a fresh sqlmock database per cycle in which no table
// has a watermark.
type mockOpener struct {
	t     *testing.T
	mu    sync.Mutex
	mocks []sqlmock.Sqlmock
}

func (o *mockOpener) Open(context.Context) (*sql.DB, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}

	for range Tables {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(qWatermark)).
			WillReturnRows(sqlmock.NewRows([]string{"nextid"}))
		mock.ExpectRollback()
	}
	mock.ExpectClose()

	o.mu.Lock()
	o.mocks = append(o.mocks, mock)
	o.mu.Unlock()
	return db, nil
}

func (o *mockOpener) verify() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, mock := range o.mocks {
		assert.NoError(o.t, mock.ExpectationsWereMet())
	}
}

type recorder struct {
	results chan RunResult
}

func newRecorder() *recorder {
	return &recorder{results: make(chan RunResult, 16)}
}

func (r *recorder) RecordCycle(result RunResult) {
	r.results <- result
}

func (r *recorder) next(t *testing.T) RunResult {
	t.Helper()
	select {
	case result := <-r.results:
		return result
	case <-time.After(testWait):
		t.Fatal("timed out waiting for a housekeeping cycle")
		return RunResult{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case result := <-r.results:
		t.Fatalf("unexpected cycle: %+v", result)
	case <-time.After(50 * time.Millisecond):
	}
}

type harness struct {
	worker   *Worker
	inbox    *rtc.Inbox
	clock    *testclock.Clock
	opener   *mockOpener
	recorder *recorder
	logs     *observer.ObservedLogs
	done     chan error
	finished chan struct{}
	cancel   context.CancelFunc
}

// startWorker runs a worker on a test clock. pending commands are queued
// before the worker starts waiting.
func startWorker(t *testing.T, frequency time.Duration, pending ...rtc.Command) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	clk := testclock.NewClock(epoch)
	h := &harness{
		inbox:    rtc.NewInbox(clk),
		clock:    clk,
		opener:   &mockOpener{t: t},
		recorder: newRecorder(),
		logs:     logs,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
	}
	for _, cmd := range pending {
		require.True(t, h.inbox.Post(cmd))
	}

	w, err := NewWorker(WorkerConfig{
		Frequency: frequency,
		Window:    RetentionWindow{OfflineBufferHours: 1},
		Dialect:   sqlutil.MySQL,
	}, h.inbox, h.opener, clk, h.recorder, logger.NewFromCore(core))
	require.NoError(t, err)
	h.worker = w

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- w.Run(ctx)
		close(h.finished)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.finished:
		case <-time.After(testWait):
		}
	})
	return h
}

func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	require.NoError(t, h.clock.WaitAdvance(d, testWait, 1))
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	require.True(t, h.inbox.Post(rtc.CommandShutdown))
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, StateShutdown, h.worker.State())
	h.opener.verify()
}

func TestWorker_StartupDelayThenHourly(t *testing.T) {
	h := startWorker(t, time.Hour)

	h.advance(t, 30*time.Minute)
	first := h.recorder.next(t)
	assert.Equal(t, TriggerScheduled, first.Trigger)
	assert.Equal(t, int64(3600), first.PeriodSeconds)
	assert.NotEmpty(t, first.CycleID)

	h.advance(t, time.Hour)
	second := h.recorder.next(t)
	assert.Equal(t, TriggerScheduled, second.Trigger)
	assert.Equal(t, int64(3600), second.PeriodSeconds)
	assert.NotEqual(t, first.CycleID, second.CycleID)

	h.stop(t)
}

func TestWorker_TwoHourFrequency(t *testing.T) {
	h := startWorker(t, 2*time.Hour)

	h.advance(t, 30*time.Minute)
	h.recorder.next(t)

	h.advance(t, 2*time.Hour)
	result := h.recorder.next(t)
	assert.Equal(t, int64(7200), result.PeriodSeconds)

	h.stop(t)
}

func TestWorker_ManualOnlyWaitsForCommand(t *testing.T) {
	h := startWorker(t, 0)

	h.clock.Advance(48 * time.Hour)
	h.recorder.none(t)
	assert.Equal(t, StateWaiting, h.worker.State())
	assert.Equal(t, "waiting for user command", h.worker.Status())

	require.True(t, h.inbox.Post(rtc.CommandExecute))
	assert.Equal(t, TriggerForced, h.recorder.next(t).Trigger)

	h.stop(t)
}

func TestWorker_DuplicateExecuteRunsOnce(t *testing.T) {
	h := startWorker(t, 0, rtc.CommandExecute, rtc.CommandExecute)

	result := h.recorder.next(t)
	assert.Equal(t, TriggerForced, result.Trigger)
	h.recorder.none(t)

	h.stop(t)

	assert.Equal(t, 1, h.logs.FilterMessage("forced execution of the housekeeper").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("housekeeping procedure is already in progress").Len())
}

func TestWorker_ForcedDuringStartupIdle(t *testing.T) {
	h := startWorker(t, time.Hour)

	h.advance(t, 10*time.Minute)
	require.True(t, h.inbox.Post(rtc.CommandExecute))

	result := h.recorder.next(t)
	assert.Equal(t, TriggerForced, result.Trigger)
	assert.Equal(t, int64(3600), result.PeriodSeconds)

	// The schedule restarts from the forced run.
	h.advance(t, time.Hour)
	assert.Equal(t, TriggerScheduled, h.recorder.next(t).Trigger)

	h.stop(t)
}

func TestWorker_UnknownCommandKeepsWaiting(t *testing.T) {
	h := startWorker(t, time.Hour)

	require.True(t, h.inbox.Post(rtc.Command(99)))
	h.recorder.none(t)

	h.advance(t, 30*time.Minute)
	assert.Equal(t, TriggerScheduled, h.recorder.next(t).Trigger)

	h.stop(t)
	assert.Equal(t, 1, h.logs.FilterMessageSnippet("ignoring unsupported runtime control command").Len())
}

func TestWorker_ShutdownDuringStartupIdle(t *testing.T) {
	h := startWorker(t, time.Hour)
	h.stop(t)
	h.recorder.none(t)
}

func TestWorker_ShutdownWinsOverPendingExecute(t *testing.T) {
	h := startWorker(t, 0, rtc.CommandExecute, rtc.CommandShutdown)

	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("worker did not stop")
	}
	h.recorder.none(t)
}

func TestWorker_ContextCancelStops(t *testing.T) {
	h := startWorker(t, time.Hour)

	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
	case <-time.After(testWait):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, StateShutdown, h.worker.State())
}

func TestRunCycle_TableFailureDoesNotStopOthers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("deadlock found"))
	for range Tables[1:] {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(qWatermark)).
			WillReturnRows(sqlmock.NewRows([]string{"nextid"}))
		mock.ExpectRollback()
	}
	mock.ExpectClose()

	rec := newRecorder()
	w, err := NewWorker(WorkerConfig{Window: RetentionWindow{OfflineBufferHours: 1}},
		rtc.NewInbox(nil), &staticOpener{db: db}, nil, rec, logger.NewDefault())
	require.NoError(t, err)

	result := w.RunCycle(context.Background(), TriggerForced, 0)

	assert.Equal(t, []string{"proxy_history"}, result.Failed)
	assert.Equal(t, []string{"proxy_dhistory", "proxy_autoreg_host"}, result.PerTable.Keys())
	assert.Equal(t, "partial", result.Outcome())
	assert.False(t, result.Succeeded())
	assert.Equal(t, result.CycleID, rec.next(t).CycleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCycle_OpenFailure(t *testing.T) {
	rec := newRecorder()
	w, err := NewWorker(WorkerConfig{Window: RetentionWindow{OfflineBufferHours: 1}},
		rtc.NewInbox(nil), failingOpener{}, nil, rec, logger.NewDefault())
	require.NoError(t, err)

	result := w.RunCycle(context.Background(), TriggerScheduled, time.Hour)

	require.Error(t, result.Err)
	assert.Equal(t, "failed", result.Outcome())
	assert.Equal(t, 0, result.PerTable.Len())
	recorded := rec.next(t)
	assert.Equal(t, "failed", recorded.Outcome())
}

// countingGuard allows the first allow cycles and refuses every later one.
type countingGuard struct {
	mu    sync.Mutex
	calls int
	allow int
}

func (g *countingGuard) Verify(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.calls > g.allow {
		return errors.New("advisory lock lost")
	}
	return nil
}

func TestWorker_GuardRefusalStopsBeforeCycle(t *testing.T) {
	inbox := rtc.NewInbox(nil)
	require.True(t, inbox.Post(rtc.CommandExecute))
	guard := &countingGuard{allow: 1}
	opener := &mockOpener{t: t}
	rec := newRecorder()

	w, err := NewWorker(WorkerConfig{
		Window:  RetentionWindow{OfflineBufferHours: 1},
		Dialect: sqlutil.MySQL,
		Guard:   guard,
	}, inbox, opener, nil, rec, logger.NewDefault())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	assert.Equal(t, TriggerForced, rec.next(t).Trigger)

	require.True(t, inbox.Post(rtc.CommandExecute))
	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "advisory lock lost")
	case <-time.After(testWait):
		t.Fatal("worker did not stop")
	}

	rec.none(t)
	assert.Equal(t, StateShutdown, w.State())
	assert.Equal(t, 2, guard.calls)
	opener.mu.Lock()
	assert.Len(t, opener.mocks, 1)
	opener.mu.Unlock()
	opener.verify()
}

func TestNewWorker_Validation(t *testing.T) {
	inbox := rtc.NewInbox(nil)

	_, err := NewWorker(WorkerConfig{}, nil, failingOpener{}, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{}, inbox, nil, nil, nil, nil)
	assert.Error(t, err)

	_, err = NewWorker(WorkerConfig{Frequency: -time.Hour}, inbox, failingOpener{}, nil, nil, nil)
	assert.Error(t, err)

	w, err := NewWorker(WorkerConfig{}, inbox, failingOpener{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultStartupDelay, w.cfg.StartupDelay)
	assert.Equal(t, Tables, w.cfg.Tables)
	assert.Equal(t, StateStartupIdle, w.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "startup_idle", StateStartupIdle.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "shutdown", StateShutdown.String())
	assert.Equal(t, "state(9)", State(9).String())
}

// runSingleCycle runs one forced cycle against opener with a one hour
// offline buffer and the wall clock.
func runSingleCycle(t *testing.T, opener Opener, dialect sqlutil.Dialect) *RunResult {
	t.Helper()
	w, err := NewWorker(WorkerConfig{
		Window:  RetentionWindow{OfflineBufferHours: 1},
		Dialect: dialect,
	}, rtc.NewInbox(nil), opener, nil, nil, logger.NewDefault())
	require.NoError(t, err)
	return w.RunCycle(context.Background(), TriggerForced, 0)
}
