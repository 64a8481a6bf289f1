package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/proxyhk/internal/rtc"
)

func TestTablesCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seedHistory(t)

	out, err := executeCommand(t, "tables", "--config", env.configPath)
	require.NoError(t, err)

	assert.Contains(t, out, "TABLE")
	assert.Contains(t, out, "proxy_history")
	assert.Contains(t, out, "history_lastid")
	assert.Contains(t, out, "dhistory_lastid")
	assert.Contains(t, out, "autoreg_host_lastid")
	assert.NotContains(t, out, "ELIGIBLE")
}

func TestDryrunCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seedHistory(t)

	out, err := executeCommand(t, "dry-run", "--config", env.configPath)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Dry Run ===")
	assert.Contains(t, out, "ELIGIBLE")
	assert.Contains(t, out, "skip: no watermark")
	assert.Contains(t, out, "Total rows to delete: 2")
	assert.Equal(t, 3, env.count(t, "proxy_history"), "dry-run must not delete")
}

func TestDryrunCommand_MissingConfig(t *testing.T) {
	_, err := executeCommand(t, "dry-run", "--config", "/tmp/nonexistent_dryrun_config.yaml")
	assert.Error(t, err)
}

func TestRunOnceCommand(t *testing.T) {
	env := newTestEnv(t)
	env.seedHistory(t)

	out, err := executeCommand(t, "run", "--once", "--config", env.configPath)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Housekeeping Complete ===")
	assert.Contains(t, out, "Records Deleted: 2")
	assert.Equal(t, 1, env.count(t, "proxy_history"))
}

func TestRunCommand_RuntimeControl(t *testing.T) {
	env := newTestEnv(t)
	env.seedHistory(t)

	origCfgFile, origFreq := cfgFile, frequencyHours
	defer func() {
		cfgFile, frequencyHours = origCfgFile, origFreq
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"run", "--config", env.configPath, "--frequency", "0"})

	done := make(chan error, 1)
	go func() { done <- rootCmd.Execute() }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(env.socket)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "control socket never appeared")

	reply, err := rtc.Send(context.Background(), env.socket, "housekeeper_execute", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "housekeeper_execute sent to 1 process(es)", reply)

	assert.Eventually(t, func() bool {
		var n int
		if err := env.db.QueryRow("SELECT COUNT(*) FROM proxy_history").Scan(&n); err != nil {
			return false
		}
		return n == 1
	}, 5*time.Second, 20*time.Millisecond, "forced cycle did not prune proxy_history")

	_, err = rtc.Send(context.Background(), env.socket, "shutdown", time.Second)
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("housekeeper did not stop on shutdown")
	}

	_, err = os.Stat(env.socket)
	assert.True(t, os.IsNotExist(err), "control socket should be removed on exit")
}

func TestRuntimeControlCommand(t *testing.T) {
	env := newTestEnv(t)

	bus := rtc.NewBus(nil)
	inbox := bus.Subscribe(workerIdentity, rtc.CommandExecute)
	server := rtc.NewServer(env.socket, bus, time.Second, nil)
	require.NoError(t, server.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		server.Serve(ctx)
	}()
	defer func() {
		cancel()
		<-served
	}()

	out, err := executeCommand(t, "runtime-control", "housekeeper_execute", "--config", env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "housekeeper_execute sent to 1 process(es)")
	assert.Equal(t, 1, inbox.Pending())
}

func TestRuntimeControlCommand_UnknownOption(t *testing.T) {
	env := newTestEnv(t)

	_, err := executeCommand(t, "runtime-control", "log_level_increase", "--config", env.configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown runtime control option")
}

func TestRuntimeControlCommand_NoServer(t *testing.T) {
	env := newTestEnv(t)

	out, err := executeCommand(t, "runtime-control", "shutdown", "--config", env.configPath)
	require.Error(t, err)
	assert.Contains(t, out, "error:")
}

func TestValidateCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := executeCommand(t, "validate", "--config", env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
	assert.Contains(t, out, "All checks passed")
}

func TestValidateCommand_MissingTable(t *testing.T) {
	env := newTestEnv(t)
	env.exec(t, "DROP TABLE proxy_dhistory")

	out, err := executeCommand(t, "validate", "--config", env.configPath)
	require.Error(t, err)
	assert.Contains(t, out, "Preflight checks failed")
	assert.Contains(t, out, "proxy_dhistory")
}

func TestValidateCommandStructure(t *testing.T) {
	assert.Equal(t, "validate", validateCmd.Use)
	assert.Contains(t, validateCmd.Long, "Example:")
	assert.Contains(t, validateCmd.Long, "proxyhk validate")
	assert.Nil(t, validateCmd.Flags().Lookup("job"))
}

func TestRunCommandFlags(t *testing.T) {
	once := runCmd.Flags().Lookup("once")
	require.NotNil(t, once)
	assert.Equal(t, "false", once.DefValue)

	force := runCmd.Flags().Lookup("force")
	require.NotNil(t, force)
	assert.Equal(t, "false", force.DefValue)
}
