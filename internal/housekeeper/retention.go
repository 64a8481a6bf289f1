package housekeeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dbsmedya/proxyhk/internal/logger"
	"github.com/dbsmedya/proxyhk/internal/sqlutil"
)

// maxDeletePeriods caps how many scheduling periods past the oldest row a
// single pass may reach into already sent data.
const maxDeletePeriods = 4

const secondsPerHour = 3600

// RetentionWindow holds the configured buffer windows.
type RetentionWindow struct {
	OfflineBufferHours int // unsent data older than this is dropped
	LocalBufferHours   int // sent data is kept at least this long
}

// CycleContext is built once per cycle and passed into every deletion.
type CycleContext struct {
	Now                   int64 // unix seconds at cycle start
	SchedulePeriodSeconds int64
}

// Watermark is a row of the ids table: the last id the data sender
// confirmed as delivered.
type Watermark struct {
	TableName string
	FieldName string
	NextID    int64
}

// Snapshot holds the bounds of a table observed at the start of a pass.
type Snapshot struct {
	MinClock int64
	MaxID    int64 // ceiling; rows at or above it are never touched
}

// Bounds returns the two clock thresholds of the deletion predicate.
// Rows older than retentionFloor are removed whether sent or not; sent rows
// are removed when older than deleteBound.
func Bounds(w RetentionWindow, c CycleContext, minClock int64) (retentionFloor, deleteBound int64) {
	retentionFloor = c.Now - int64(w.OfflineBufferHours)*secondsPerHour
	deleteBound = min(
		c.Now-int64(w.LocalBufferHours)*secondsPerHour,
		minClock+maxDeletePeriods*c.SchedulePeriodSeconds,
	)
	return retentionFloor, deleteBound
}

// Engine applies the retention predicate to one table at a time.
type Engine struct {
	dialect sqlutil.Dialect
	window  RetentionWindow
	logger  *logger.Logger
}

// NewEngine creates a retention engine for the given SQL dialect.
func NewEngine(dialect sqlutil.Dialect, window RetentionWindow, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{
		dialect: dialect,
		window:  window,
		logger:  log,
	}
}

// Window returns the configured buffer windows.
func (e *Engine) Window() RetentionWindow {
	return e.window
}

// DeleteTable prunes one table inside a single transaction and returns the
// number of deleted rows. A missing watermark or an empty table is a no-op:
// the transaction is rolled back and 0 is returned without error.
func (e *Engine) DeleteTable(ctx context.Context, db *sql.DB, spec TableSpec, cycle CycleContext) (int64, error) {
	log := e.logger.WithTable(spec.TableName)

	table, err := e.dialect.QuoteSafe(spec.TableName)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Warnf("rollback failed: %v", rbErr)
		}
	}()

	wm, snap, state, err := e.observe(ctx, tx, table, spec)
	if err != nil || state != observed {
		return 0, err
	}

	floor, bound := Bounds(e.window, cycle, snap.MinClock)
	log.Debugf("deleting: maxid:%d nextid:%d floor:%d bound:%d", snap.MaxID, wm.NextID, floor, bound)

	res, err := tx.ExecContext(ctx, deleteQuery(table), snap.MaxID, floor, wm.NextID, bound)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", spec.TableName, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", spec.TableName, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete on %s: %w", spec.TableName, err)
	}
	committed = true

	return deleted, nil
}

type observation int

const (
	observed observation = iota
	noWatermark
	emptyTable
)

// observe reads the watermark and the table snapshot inside tx. Anything
// other than observed means a precondition is missing.
func (e *Engine) observe(ctx context.Context, tx *sql.Tx, table string, spec TableSpec) (Watermark, Snapshot, observation, error) {
	log := e.logger.WithTable(spec.TableName)
	wm := Watermark{TableName: spec.TableName, FieldName: spec.IDFieldName}
	var snap Snapshot

	err := tx.QueryRowContext(ctx, watermarkQuery, spec.TableName, spec.IDFieldName).Scan(&wm.NextID)
	if errors.Is(err, sql.ErrNoRows) {
		log.Debugf("no watermark for %s.%s, skipping", spec.TableName, spec.IDFieldName)
		return wm, snap, noWatermark, nil
	}
	if err != nil {
		return wm, snap, noWatermark, fmt.Errorf("failed to read watermark for %s: %w", spec.TableName, err)
	}

	var minClock, maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, minClockQuery(table)).Scan(&minClock); err != nil {
		return wm, snap, emptyTable, fmt.Errorf("failed to read oldest clock of %s: %w", spec.TableName, err)
	}
	if !minClock.Valid {
		log.Debug("table is empty, skipping")
		return wm, snap, emptyTable, nil
	}

	if err := tx.QueryRowContext(ctx, maxIDQuery(table)).Scan(&maxID); err != nil {
		return wm, snap, emptyTable, fmt.Errorf("failed to read max id of %s: %w", spec.TableName, err)
	}
	if !maxID.Valid {
		log.Debug("table is empty, skipping")
		return wm, snap, emptyTable, nil
	}

	snap.MinClock = minClock.Int64
	snap.MaxID = maxID.Int64
	return wm, snap, observed, nil
}

const watermarkQuery = "SELECT nextid FROM ids WHERE table_name = ? AND field_name = ?"

const predicate = "id < ? AND (clock < ? OR (id <= ? AND clock < ?))"

func minClockQuery(table string) string {
	return fmt.Sprintf("SELECT MIN(clock) FROM %s", table)
}

func maxIDQuery(table string) string {
	return fmt.Sprintf("SELECT MAX(id) FROM %s", table)
}

func deleteQuery(table string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", table, predicate)
}

func countQuery(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, predicate)
}
