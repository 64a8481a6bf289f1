package housekeeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TableReport describes what a pass over one table would see right now.
type TableReport struct {
	Table          TableSpec
	HasWatermark   bool
	NextID         int64
	Empty          bool
	Snapshot       Snapshot
	RetentionFloor int64
	DeleteBound    int64
	Eligible       int64 // rows the predicate matches; -1 when not counted
}

// Skipped reports why a pass over the table would be a no-op, or "".
func (r *TableReport) Skipped() string {
	switch {
	case !r.HasWatermark:
		return "no watermark"
	case r.Empty:
		return "empty table"
	default:
		return ""
	}
}

// Inspect observes one table the same way DeleteTable does without changing
// anything. With count set, it also counts the rows the predicate matches.
// The read transaction is always rolled back.
func (e *Engine) Inspect(ctx context.Context, db *sql.DB, spec TableSpec, cycle CycleContext, count bool) (*TableReport, error) {
	table, err := e.dialect.QuoteSafe(spec.TableName)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.logger.Warnf("rollback failed: %v", rbErr)
		}
	}()

	report := &TableReport{Table: spec, Eligible: -1}

	wm, snap, state, err := e.observe(ctx, tx, table, spec)
	if err != nil {
		return nil, err
	}
	switch state {
	case noWatermark:
		return report, nil
	case emptyTable:
		report.HasWatermark = true
		report.NextID = wm.NextID
		report.Empty = true
		return report, nil
	}

	report.HasWatermark = true
	report.NextID = wm.NextID
	report.Snapshot = snap
	report.RetentionFloor, report.DeleteBound = Bounds(e.window, cycle, snap.MinClock)

	if count {
		if err := tx.QueryRowContext(ctx, countQuery(table),
			snap.MaxID, report.RetentionFloor, wm.NextID, report.DeleteBound).Scan(&report.Eligible); err != nil {
			return nil, fmt.Errorf("failed to count eligible rows in %s: %w", spec.TableName, err)
		}
	}

	return report, nil
}
