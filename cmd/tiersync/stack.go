package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/tiersync/pkg/config"
	"github.com/cuemby/tiersync/pkg/connectivity"
	"github.com/cuemby/tiersync/pkg/engine"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/health"
	"github.com/cuemby/tiersync/pkg/live"
	"github.com/cuemby/tiersync/pkg/log"
	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/remote"
	"github.com/cuemby/tiersync/pkg/storage"
	"github.com/cuemby/tiersync/pkg/tier"
)

// loaded caches the parsed file between PersistentPreRunE and RunE
var loaded *config.Config

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if loaded != nil {
		return loaded, nil
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	loaded = cfg
	return cfg, nil
}

// stack is every long-lived component built from one configuration
type stack struct {
	cfg       *config.Config
	store     storage.Store
	broker    *events.Broker
	monitor   *connectivity.Monitor
	live      *live.Client
	databases map[string]*engine.Database
	logger    zerolog.Logger
}

// buildStack opens the local store and builds one database per configured
// name. liveURL overrides the configured hub, "" disables the live tier.
func buildStack(ctx context.Context, cfg *config.Config, liveURL string) (*stack, error) {
	s := &stack{
		cfg:       cfg,
		broker:    events.NewBroker(),
		databases: make(map[string]*engine.Database),
		logger:    log.WithComponent("tiersync"),
	}

	store, err := storage.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	s.store = store
	metrics.SetCritical(metrics.ComponentLocal)
	metrics.UpdateComponent(metrics.ComponentLocal, true, "")

	s.broker.Start()

	if cfg.Remote.URL != "" {
		s.monitor = connectivity.NewMonitor(ctx, probeFor(cfg),
			connectivity.WithConfig(cfg.HealthConfig()),
			connectivity.WithBroker(s.broker),
		)
	}

	if liveURL != "" {
		s.live = live.Dial(ctx, liveURL, originFor(cfg))
	}

	for _, dc := range cfg.Databases {
		policy, err := dc.CachePolicy()
		if err != nil {
			s.close()
			return nil, err
		}

		tiers := tier.Set{Local: storage.NewTier(store, dc.Name)}
		if cfg.Remote.URL != "" {
			tiers.Remote = remote.NewClient(cfg.Remote.URL, dc.Name,
				remote.WithToken(cfg.Remote.Token),
				remote.WithTimeout(cfg.Remote.Timeout),
			)
		}
		if s.live != nil {
			tiers.Live = s.live
		}

		s.databases[dc.Name] = engine.NewDatabase(dc.Name, tiers, s.monitor,
			engine.WithKey(dc.KeyFunc()),
			engine.WithCachePolicy(policy),
			engine.WithBroker(s.broker),
			engine.WithContext(ctx),
		)
	}

	return s, nil
}

// database returns the named database with its configured default cascade
func (s *stack) database(name string) (*engine.Database, config.DatabaseConfig, error) {
	dc, ok := s.cfg.Database(name)
	if !ok {
		return nil, dc, fmt.Errorf("database %q is not configured", name)
	}
	return s.databases[name], dc, nil
}

// sorted returns the databases ordered by name
func (s *stack) sorted() []*engine.Database {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*engine.Database, 0, len(names))
	for _, name := range names {
		out = append(out, s.databases[name])
	}
	return out
}

func (s *stack) close() {
	for name, db := range s.databases {
		if err := db.Close(); err != nil {
			s.logger.Warn().Err(err).Str("database", name).Msg("Failed to close database")
		}
	}
	if s.live != nil {
		s.live.Close()
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.broker.Stop()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close local store")
		}
	}
}

// probeFor picks the reachability check: an explicit URL, an explicit
// address, or a TCP dial of the remote host.
func probeFor(cfg *config.Config) health.Checker {
	c := cfg.Connectivity
	switch {
	case c.ProbeURL != "":
		return health.NewHTTPChecker(c.ProbeURL).WithTimeout(c.Timeout).WithBearer(cfg.Remote.Token)
	case c.ProbeAddr != "":
		return health.NewTCPChecker(c.ProbeAddr).WithTimeout(c.Timeout)
	}

	probe, err := health.NewTCPCheckerForURL(cfg.Remote.URL)
	if err != nil {
		return health.NewStaticChecker(true)
	}
	return probe.WithTimeout(c.Timeout)
}

// originFor names this client on the live channel. The bearer token's
// client identity is preferred over a random one.
func originFor(cfg *config.Config) string {
	if cfg.Live.Origin != "" {
		return cfg.Live.Origin
	}
	if cfg.Remote.Token != "" {
		if id, err := remote.ClientID(cfg.Remote.Token); err == nil {
			return id
		}
	}
	return uuid.NewString()
}
