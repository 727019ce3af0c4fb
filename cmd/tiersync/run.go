package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/tiersync/pkg/api"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/live"
	"github.com/cuemby/tiersync/pkg/log"
	"github.com/cuemby/tiersync/pkg/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync client until interrupted",
	Long: `Run opens the local store, restores every configured database from it
and resumes unfinished work. It then keeps polling remote reachability,
serves /health, /ready, /databases and /metrics, and optionally hosts a live
hub for other clients.

Examples:
  # Run with the default configuration file
  tiersync run

  # Run with a specific file and host the live hub
  tiersync run -c /etc/tiersync.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Duration("drain-timeout", 30*time.Second, "Time to wait for in-flight operations on shutdown")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	drainTimeout, _ := cmd.Flags().GetDuration("drain-timeout")
	logger := log.WithComponent("tiersync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Host the live hub first so this process can dial it.
	var hub *live.Hub
	var hubServer *http.Server
	liveURL := cfg.Live.URL
	if cfg.Live.Listen != "" {
		hub = live.NewHub()
		lis, err := net.Listen("tcp", cfg.Live.Listen)
		if err != nil {
			return fmt.Errorf("failed to listen for live hub: %w", err)
		}
		hubServer = &http.Server{Handler: hub, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := hubServer.Serve(lis); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("Live hub stopped")
			}
		}()
		liveURL = "ws://" + lis.Addr().String()
		fmt.Printf("✓ Live hub listening on %s\n", lis.Addr())
	}

	s, err := buildStack(ctx, cfg, liveURL)
	if err != nil {
		return err
	}
	defer s.close()

	go logEvents(ctx, s.broker)

	dbs := s.sorted()
	apiDBs := make([]api.Database, 0, len(dbs))
	for _, db := range dbs {
		apiDBs = append(apiDBs, db)
	}

	var hs *api.HealthServer
	if s.monitor != nil {
		hs = api.NewHealthServer(Version, s.monitor, apiDBs...)
	} else {
		hs = api.NewHealthServer(Version, nil, apiDBs...)
	}
	if cfg.Metrics.Listen != "" {
		addr, err := hs.Start(cfg.Metrics.Listen)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Metrics and health on http://%s\n", addr)
	}

	collector := metrics.NewCollector(cfg.Connectivity.Interval)
	for _, db := range dbs {
		collector.Add(db)
	}
	collector.Start()
	defer collector.Stop()

	for _, db := range dbs {
		n, err := db.Load(ctx)
		if err != nil {
			return fmt.Errorf("failed to restore %s: %w", db.Name(), err)
		}
		fmt.Printf("✓ Restored %d records into %s\n", n, db.Name())
	}
	hs.SetLoaded()

	if s.monitor != nil {
		s.monitor.Start(ctx)
	}

	fmt.Println()
	fmt.Println("tiersync is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	defer drainCancel()
	for _, db := range dbs {
		if err := db.WaitIdle(drainCtx); err != nil {
			logger.Warn().Err(err).Str("database", db.Name()).Int("in_flight", db.InFlight()).
				Msg("Operations still in flight, they resume on next start")
		}
	}

	if err := hs.Stop(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to stop HTTP server")
	}
	if hubServer != nil {
		hub.Close()
		_ = hubServer.Shutdown(drainCtx)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

// logEvents writes engine and connectivity signals to the log until ctx
// is done.
func logEvents(ctx context.Context, broker *events.Broker) {
	logger := log.WithComponent("events")
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for {
		var ev *events.Event
		select {
		case ev = <-sub:
		case <-ctx.Done():
			return
		}
		entry := logger.Info()
		switch ev.Type {
		case events.EventRecordSaveFailed, events.EventRecordRemoveFailed:
			entry = logger.Warn()
		case events.EventOperationSuperseded, events.EventDatabaseQuiescent:
			entry = logger.Debug()
		}
		entry.Str("type", string(ev.Type)).
			Str("database", ev.Database).
			Str("key", ev.Key).
			Str("message", ev.Message).
			Msg("Event")
	}
}
