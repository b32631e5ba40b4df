// Package config is the in memory form of a ledger repo's config.toml.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-ledger/pkg/constants"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRPC    = "rpc"
)

// Config is an in memory representation of the ledger configuration file.
type Config struct {
	API       *APIConfig       `toml:"api"`
	Store     *StoreConfig     `toml:"store"`
	Datastore *DatastoreConfig `toml:"datastore"`
	Ledger    *LedgerConfig    `toml:"ledger"`
	Log       *LogConfig       `toml:"log"`
	Metrics   *MetricsConfig   `toml:"metrics"`
}

// APIConfig holds the listen address of `ledger serve`.
type APIConfig struct {
	Address string `toml:"address"`
}

func newDefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Address: "127.0.0.1:3460",
	}
}

// StoreConfig selects and tunes the content-addressed store.
type StoreConfig struct {
	Backend string `toml:"backend"`
	// MaxPayloadSize is a human readable size such as "1MiB".
	MaxPayloadSize string     `toml:"maxPayloadSize"`
	CacheSize      int        `toml:"cacheSize"`
	HashOnRead     bool       `toml:"hashOnRead"`
	LogOperations  bool       `toml:"logOperations"`
	RPC            *RPCConfig `toml:"rpc"`
}

// RPCConfig locates a remote store served by `ledger serve`.
type RPCConfig struct {
	Address string `toml:"address"`
	Token   string `toml:"token"`
	Timeout string `toml:"timeout"`
}

func newDefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Backend:        BackendBadger,
		MaxPayloadSize: "1MiB",
		CacheSize:      constants.DefaultCacheSize,
		RPC: &RPCConfig{
			Address: "ws://127.0.0.1:3460/rpc/v0",
			Timeout: "30s",
		},
	}
}

// PayloadLimit parses MaxPayloadSize into bytes.
func (c *StoreConfig) PayloadLimit() (int, error) {
	n, err := units.RAMInBytes(c.MaxPayloadSize)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid maxPayloadSize %q", c.MaxPayloadSize)
	}
	if n <= 0 {
		return 0, fmt.Errorf("maxPayloadSize must be positive, got %q", c.MaxPayloadSize)
	}
	return int(n), nil
}

// CallTimeout parses the RPC timeout.
func (c *RPCConfig) CallTimeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid rpc timeout %q", c.Timeout)
	}
	return d, nil
}

// DatastoreConfig holds all the configuration options for the datastore.
type DatastoreConfig struct {
	Type string `toml:"type"`
	Path string `toml:"path"`
}

func newDefaultDatastoreConfig() *DatastoreConfig {
	return &DatastoreConfig{
		Type: "badgerds",
		Path: "badger",
	}
}

// LedgerConfig tunes the state machine.
type LedgerConfig struct {
	// CheckInvariants verifies the total balance after every message and
	// panics on a mismatch.
	CheckInvariants bool `toml:"checkInvariants"`
}

func newDefaultLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		CheckInvariants: true,
	}
}

// LogConfig holds the default log level.
type LogConfig struct {
	Level string `toml:"level"`
}

func newDefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level: "info",
	}
}

// MetricsConfig controls the prometheus endpoint `ledger serve` mounts next
// to the store API.
type MetricsConfig struct {
	PrometheusEnabled bool   `toml:"prometheusEnabled"`
	ReportInterval    string `toml:"reportInterval"`
}

func newDefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		PrometheusEnabled: false,
		ReportInterval:    "5s",
	}
}

// Interval parses ReportInterval.
func (c *MetricsConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.ReportInterval)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid metrics reportInterval %q", c.ReportInterval)
	}
	return d, nil
}

// NewDefaultConfig returns a config object with all the fields filled out to
// their default values
func NewDefaultConfig() *Config {
	return &Config{
		API:       newDefaultAPIConfig(),
		Store:     newDefaultStoreConfig(),
		Datastore: newDefaultDatastoreConfig(),
		Ledger:    newDefaultLedgerConfig(),
		Log:       newDefaultLogConfig(),
		Metrics:   newDefaultMetricsConfig(),
	}
}

// Validate reports every problem in cfg at once.
func (cfg *Config) Validate() error {
	var result *multierror.Error

	switch cfg.Store.Backend {
	case BackendMemory, BackendBadger:
	case BackendRPC:
		if cfg.Store.RPC == nil || cfg.Store.RPC.Address == "" {
			result = multierror.Append(result, fmt.Errorf("store.rpc.address is required for the rpc backend"))
		} else if _, err := cfg.Store.RPC.CallTimeout(); err != nil {
			result = multierror.Append(result, err)
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown store backend %q", cfg.Store.Backend))
	}
	if _, err := cfg.Store.PayloadLimit(); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.Store.CacheSize < 0 {
		result = multierror.Append(result, fmt.Errorf("store.cacheSize must not be negative"))
	}
	if cfg.Datastore.Type != "badgerds" {
		result = multierror.Append(result, fmt.Errorf("unsupported datastore type %q", cfg.Datastore.Type))
	}
	if cfg.Datastore.Path == "" {
		result = multierror.Append(result, fmt.Errorf("datastore.path is required"))
	}
	if _, err := cfg.Metrics.Interval(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// WriteFile writes the config to the given filepath.
func (cfg *Config) WriteFile(file string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if err := toml.NewEncoder(f).Encode(*cfg); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// ReadFile reads a config file from disk. Keys missing from the file keep
// their defaults.
func ReadFile(file string) (*Config, error) {
	cfg := NewDefaultConfig()
	if _, err := toml.DecodeFile(file, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", file)
	}
	return cfg, nil
}

// Get returns the value at a dotted key such as "store.rpc.timeout".
func (cfg *Config) Get(key string) (interface{}, error) {
	v, err := cfg.lookup(key)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Set decodes tomlVal, e.g. `"memory"` or `2048`, into the field at key.
func (cfg *Config) Set(key string, tomlVal string) error {
	field, err := cfg.lookup(key)
	if err != nil {
		return err
	}
	if field.Kind() == reflect.Ptr || field.Kind() == reflect.Struct {
		return fmt.Errorf("key %s names a section, set its fields instead", key)
	}

	path := strings.Split(key, ".")
	doc := fmt.Sprintf("%s = %s\n", path[len(path)-1], tomlVal)
	if len(path) > 1 {
		doc = fmt.Sprintf("[%s]\n%s", strings.Join(path[:len(path)-1], "."), doc)
	}

	next := *cfg
	next.Store = &StoreConfig{}
	*next.Store = *cfg.Store
	if cfg.Store.RPC != nil {
		rpc := *cfg.Store.RPC
		next.Store.RPC = &rpc
	}
	api, ds, lc, lg, mc := *cfg.API, *cfg.Datastore, *cfg.Ledger, *cfg.Log, *cfg.Metrics
	next.API, next.Datastore, next.Ledger, next.Log, next.Metrics = &api, &ds, &lc, &lg, &mc

	if _, err := toml.Decode(doc, &next); err != nil {
		return errors.Wrapf(err, "input could not be decoded into %s", key)
	}
	*cfg = next
	return nil
}

func (cfg *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, fmt.Errorf("empty key is invalid")
	}
	v := reflect.ValueOf(cfg).Elem()
	for _, name := range strings.Split(key, ".") {
		v = reflect.Indirect(v)
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key: %s invalid for config", key)
		}
		found := false
		for i := 0; i < v.NumField(); i++ {
			if strings.Split(v.Type().Field(i).Tag.Get("toml"), ",")[0] == name {
				v = v.Field(i)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, fmt.Errorf("key: %s invalid for config", key)
		}
	}
	return v, nil
}
