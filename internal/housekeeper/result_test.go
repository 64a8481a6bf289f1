package housekeeper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunResultKeepsTableOrder(t *testing.T) {
	r := newRunResult("id", TriggerScheduled, 3600)
	r.record("proxy_autoreg_host", 1)
	r.record("proxy_history", 20)
	r.record("proxy_dhistory", 300)

	assert.Equal(t, []string{"proxy_autoreg_host", "proxy_history", "proxy_dhistory"}, r.PerTable.Keys())
	assert.Equal(t, int64(321), r.RecordsDeleted)
	assert.True(t, r.Succeeded())
	assert.Equal(t, "ok", r.Outcome())
}

func TestRunResultOutcome(t *testing.T) {
	partial := newRunResult("id", TriggerForced, 3600)
	partial.fail("proxy_history")
	assert.Equal(t, "partial", partial.Outcome())
	assert.False(t, partial.Succeeded())

	failed := newRunResult("id", TriggerForced, 3600)
	failed.Err = errors.New("boom")
	failed.fail("proxy_history")
	assert.Equal(t, "failed", failed.Outcome())
}

func TestRunResultOutcomeOnCopy(t *testing.T) {
	copied := func() RunResult {
		return RunResult{Err: errors.New("connection refused")}
	}

	assert.Equal(t, "failed", copied().Outcome())
	assert.False(t, copied().Succeeded())
	assert.Equal(t, "ok", RunResult{}.Outcome())
}
