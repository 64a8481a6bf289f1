package housekeeper

import (
	"time"

	"github.com/elliotchance/orderedmap/v2"
)

// Trigger tells why a cycle ran.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerForced    Trigger = "forced"
)

// RunResult summarises one housekeeping cycle.
type RunResult struct {
	CycleID        string
	Trigger        Trigger
	PeriodSeconds  int64
	RecordsDeleted int64
	Duration       time.Duration
	// PerTable holds deleted counts in processing order.
	PerTable *orderedmap.OrderedMap[string, int64]
	Failed   []string
	// Err is set when the cycle could not reach the database at all.
	Err error
}

func newRunResult(cycleID string, trigger Trigger, period int64) *RunResult {
	return &RunResult{
		CycleID:       cycleID,
		Trigger:       trigger,
		PeriodSeconds: period,
		PerTable:      orderedmap.NewOrderedMap[string, int64](),
	}
}

func (r *RunResult) record(table string, deleted int64) {
	r.PerTable.Set(table, deleted)
	r.RecordsDeleted += deleted
}

func (r *RunResult) fail(table string) {
	r.Failed = append(r.Failed, table)
}

// Succeeded reports whether every table was processed.
func (r RunResult) Succeeded() bool {
	return r.Err == nil && len(r.Failed) == 0
}

// Outcome labels the cycle for metrics: ok, partial or failed.
func (r RunResult) Outcome() string {
	switch {
	case r.Err != nil:
		return "failed"
	case len(r.Failed) > 0:
		return "partial"
	default:
		return "ok"
	}
}
