package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/proxyhk/internal/config"
	"github.com/dbsmedya/proxyhk/internal/database"
	"github.com/dbsmedya/proxyhk/internal/housekeeper"
	"github.com/dbsmedya/proxyhk/internal/lock"
	"github.com/dbsmedya/proxyhk/internal/logger"
	"github.com/dbsmedya/proxyhk/internal/rtc"
	"github.com/dbsmedya/proxyhk/internal/sqlutil"
)

var (
	runOnce  bool
	runForce bool
)

// workerIdentity is the runtime control identity of the housekeeper.
var workerIdentity = rtc.Identity{ProcessType: "housekeeper", ProcessNum: 1}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the housekeeper",
	Long: `Run starts the housekeeping worker. After a startup delay it prunes the
buffered tables every frequency_hours; with frequency 0 it only runs when
asked to through runtime control.

While running, the worker accepts runtime control commands on the control
socket and stops on SIGINT or SIGTERM once any pass in progress completes.

Example:
  proxyhk run --config proxyhk.yaml
  proxyhk run --once --config proxyhk.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false,
		"Run a single housekeeping cycle immediately and exit")
	runCmd.Flags().BoolVar(&runForce, "force", false,
		"Skip the advisory lock (use with caution)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Infow("Starting housekeeper",
		"config", GetConfigFile(),
		"driver", cfg.Database.Driver,
		"frequency_hours", cfg.Housekeeper.FrequencyHours,
	)

	connector := database.NewConnector(cfg.Database)

	bus := rtc.NewBus(nil)
	ctx, cancel := database.SetupSignalHandlerWithCallback(func(sig os.Signal) {
		log.Warnf("Received %s, shutting down", sig)
		bus.Publish(rtc.CommandShutdown)
	})
	defer cancel()

	guard, release, err := acquireWorkerLock(ctx, cfg, connector, log)
	if err != nil {
		return err
	}
	defer release()

	var recorder housekeeper.CycleRecorder
	if cfg.Metrics.Enabled {
		metrics := housekeeper.NewMetrics()
		recorder = metrics
		stop := serveMetrics(cfg.Metrics.Listen, metrics, log)
		defer stop()
	}

	workerCfg := housekeeper.WorkerConfig{
		Frequency:    cfg.Housekeeper.Frequency(),
		StartupDelay: cfg.Housekeeper.StartupDelay(),
		Window:       retentionWindow(cfg),
		Dialect:      connector.Dialect(),
	}
	if guard != nil {
		workerCfg.Guard = guard
	}

	if runOnce {
		worker, err := housekeeper.NewWorker(workerCfg, rtc.NewInbox(nil), connector, nil, recorder, log)
		if err != nil {
			return err
		}
		result := worker.RunCycle(context.WithoutCancel(ctx), housekeeper.TriggerForced, 0)
		printRunResult(cmd.OutOrStdout(), result)
		if !result.Succeeded() {
			return fmt.Errorf("housekeeping cycle did not complete")
		}
		return nil
	}

	inbox := bus.Subscribe(workerIdentity, rtc.CommandExecute)
	defer bus.Unsubscribe(workerIdentity)

	server := rtc.NewServer(cfg.Control.Socket, bus, cfg.Housekeeper.Timeout(), log)
	if err := server.Listen(); err != nil {
		return err
	}
	serverCtx, stopServer := context.WithCancel(context.Background())
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		if err := server.Serve(serverCtx); err != nil {
			log.Errorf("Runtime control server stopped: %v", err)
		}
	}()
	defer func() {
		stopServer()
		<-serverDone
	}()

	worker, err := housekeeper.NewWorker(workerCfg, inbox, connector, nil, recorder, log.WithComponent("housekeeper"))
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}

// lockGuard checks the worker lock before every cycle.
type lockGuard struct {
	session *lock.SessionLock
	log     *logger.Logger
}

func (g *lockGuard) Verify(ctx context.Context) error {
	reacquired, err := g.session.Verify(ctx)
	if err != nil {
		return err
	}
	if reacquired {
		g.log.Warnw("Advisory lock session ended, lock re-acquired", "lock", g.session.Name())
	}
	return nil
}

// acquireWorkerLock takes the MySQL advisory lock for the lifetime of the
// worker and returns a guard that re-checks it before every cycle. SQLite
// databases are local to one proxy and are not locked.
func acquireWorkerLock(ctx context.Context, cfg *config.Config, connector *database.Connector, log *logger.Logger) (*lockGuard, func(), error) {
	noop := func() {}
	if connector.Dialect() != sqlutil.MySQL {
		return nil, noop, nil
	}
	if !cfg.Housekeeper.Lock || runForce {
		log.Warn("Skipping advisory lock acquisition")
		return nil, noop, nil
	}

	db, err := connector.Open(ctx)
	if err != nil {
		return nil, nil, err
	}

	session, err := lock.AcquireSession(ctx, db, lock.HousekeeperLockName)
	if err != nil {
		db.Close()
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, nil, fmt.Errorf("another housekeeper is already running on %s/%s (use --force to override)",
				cfg.Database.Host, cfg.Database.Database)
		}
		return nil, nil, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	log.Infow("Acquired advisory lock", "lock", session.Name())

	return &lockGuard{session: session, log: log}, func() {
		if err := session.Release(); err != nil {
			log.Warnf("Failed to release advisory lock: %v", err)
		}
		db.Close()
	}, nil
}

// serveMetrics exposes /metrics until the returned stop function is called.
func serveMetrics(addr string, metrics *housekeeper.Metrics, log *logger.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infow("Serving metrics", "listen", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func retentionWindow(cfg *config.Config) housekeeper.RetentionWindow {
	return housekeeper.RetentionWindow{
		OfflineBufferHours: cfg.Housekeeper.ProxyOfflineBufferHours,
		LocalBufferHours:   cfg.Housekeeper.ProxyLocalBufferHours,
	}
}
