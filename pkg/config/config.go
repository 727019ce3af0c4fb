// Package config loads the tiersync YAML configuration file.
//
// A minimal file names the remote service and the databases to sync:
//
//	dataDir: ./tiersync-data
//	remote:
//	  url: https://api.example.com/v1
//	databases:
//	  - name: notes
//	    key: [id]
//
// Everything else falls back to Default.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/health"
	"github.com/cuemby/tiersync/pkg/storage"
	"github.com/cuemby/tiersync/pkg/types"
)

// Config is the root of the configuration file
type Config struct {
	DataDir      string             `yaml:"dataDir"`
	Store        string             `yaml:"store"`
	Remote       RemoteConfig       `yaml:"remote"`
	Live         LiveConfig         `yaml:"live"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Log          LogConfig          `yaml:"log"`
	Databases    []DatabaseConfig   `yaml:"databases"`
}

type RemoteConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// LiveConfig selects the live channel. URL dials an existing hub; Listen
// hosts one in this process.
type LiveConfig struct {
	URL    string `yaml:"url"`
	Listen string `yaml:"listen"`
	Origin string `yaml:"origin"`
}

// ConnectivityConfig controls the reachability probe. ProbeURL takes
// precedence over ProbeAddr; with neither set the remote URL's host is
// dialed over TCP.
type ConnectivityConfig struct {
	ProbeURL  string        `yaml:"probeURL"`
	ProbeAddr string        `yaml:"probeAddr"`
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// DatabaseConfig describes one synced collection
type DatabaseConfig struct {
	Name string `yaml:"name"`
	// Key lists the fields forming the record key. A single field is
	// generated when absent; several are joined with KeySeparator.
	Key          []string `yaml:"key"`
	KeySeparator string   `yaml:"keySeparator"`
	Cache        string   `yaml:"cache"`
	Cascade      string   `yaml:"cascade"`
}

// Default returns a Config with every optional value filled in
func Default() *Config {
	return &Config{
		DataDir: "./tiersync-data",
		Store:   storage.DriverBolt,
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
		Connectivity: ConnectivityConfig{
			Interval: 15 * time.Second,
			Timeout:  2 * time.Second,
			Retries:  1,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9090",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads and validates the file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over Default and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for i := range cfg.Databases {
		cfg.Databases[i].applyDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *DatabaseConfig) applyDefaults() {
	if len(d.Key) == 0 {
		d.Key = []string{"id"}
	}
	if d.KeySeparator == "" {
		d.KeySeparator = "/"
	}
	if d.Cache == "" {
		d.Cache = string(types.CacheAll)
	}
	if d.Cascade == "" {
		d.Cascade = "all"
	}
}

// Validate reports every problem in the configuration at once
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("dataDir is required"))
	}
	switch c.Store {
	case storage.DriverBolt, storage.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("store must be %q or %q, got %q", storage.DriverBolt, storage.DriverSQLite, c.Store))
	}
	if c.Remote.URL != "" {
		if u, err := url.Parse(c.Remote.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("remote.url %q is not an absolute URL", c.Remote.URL))
		}
	}
	if c.Remote.Timeout < 0 {
		errs = append(errs, errors.New("remote.timeout must not be negative"))
	}
	if c.Live.URL != "" && c.Live.Listen != "" {
		errs = append(errs, errors.New("live.url and live.listen are mutually exclusive"))
	}
	if c.Connectivity.Interval <= 0 {
		errs = append(errs, errors.New("connectivity.interval must be positive"))
	}
	if c.Connectivity.Timeout <= 0 {
		errs = append(errs, errors.New("connectivity.timeout must be positive"))
	}
	if c.Connectivity.Retries < 1 {
		errs = append(errs, errors.New("connectivity.retries must be at least 1"))
	}

	if len(c.Databases) == 0 {
		errs = append(errs, errors.New("at least one database is required"))
	}
	seen := make(map[string]bool, len(c.Databases))
	for i, d := range c.Databases {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("databases[%d]: name is required", i))
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("databases[%d]: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = true
		if _, err := d.CachePolicy(); err != nil {
			errs = append(errs, fmt.Errorf("database %s: %w", d.Name, err))
		}
		if _, err := d.Mask(); err != nil {
			errs = append(errs, fmt.Errorf("database %s: %w", d.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Database looks up a database by name
func (c *Config) Database(name string) (DatabaseConfig, bool) {
	for _, d := range c.Databases {
		if d.Name == name {
			return d, true
		}
	}
	return DatabaseConfig{}, false
}

// HealthConfig converts the probe settings for the connectivity monitor
func (c *Config) HealthConfig() health.Config {
	return health.Config{
		Interval: c.Connectivity.Interval,
		Timeout:  c.Connectivity.Timeout,
		Retries:  c.Connectivity.Retries,
	}
}

func (d DatabaseConfig) CachePolicy() (types.CachePolicy, error) {
	return types.ParseCachePolicy(d.Cache)
}

// Mask is the default cascade for operations started from the CLI
func (d DatabaseConfig) Mask() (cascade.Mask, error) {
	return cascade.Parse(d.Cascade)
}

func (d DatabaseConfig) KeyFunc() types.KeyFunc {
	switch len(d.Key) {
	case 0:
		return types.SimpleKey("id")
	case 1:
		return types.SimpleKey(d.Key[0])
	}
	return types.CompositeKey(d.KeySeparator, d.Key...)
}
