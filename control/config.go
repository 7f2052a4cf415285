// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed configuration loaded through viper, with a store that fans reloads
// out to weakly held observers.

package control

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/momentics/hioload-dispatch/api"
	"github.com/momentics/hioload-dispatch/logs"
	"github.com/momentics/hioload-dispatch/observer"
)

// EnvPrefix prefixes environment overrides, e.g. HIOLOAD_DISPATCH_THREADS.
const EnvPrefix = "HIOLOAD"

type DispatchConfig struct {
	Threads int   `mapstructure:"threads"`
	CPUs    []int `mapstructure:"cpus"`
}

type ExecutorConfig struct {
	Kind    string `mapstructure:"kind"`
	Workers int    `mapstructure:"workers"`
}

type MetricsConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the full runtime configuration.
type Config struct {
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

var defaults = map[string]any{
	"dispatch.threads":  1,
	"dispatch.cpus":     []int{},
	"executor.kind":     "immediate",
	"executor.workers":  0,
	"metrics.addr":      "",
	"metrics.namespace": DefaultNamespace,
	"log.level":         "info",
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	cfg, err := decode(newViper(""))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads path (any format viper understands) over defaults and
// HIOLOAD_* environment overrides. An empty path loads defaults and env only.
func LoadConfig(path string) (Config, error) {
	v := newViper(path)
	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	return decode(v)
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations no component can run with.
func (c Config) Validate() error {
	if c.Dispatch.Threads < 1 {
		return api.ErrInvalidArgument.WithContext("dispatch.threads", c.Dispatch.Threads)
	}
	for _, cpu := range c.Dispatch.CPUs {
		if cpu < 0 {
			return api.ErrInvalidArgument.WithContext("dispatch.cpus", cpu)
		}
	}
	if c.Executor.Workers < 0 {
		return api.ErrInvalidArgument.WithContext("executor.workers", c.Executor.Workers)
	}
	return nil
}

func (c Config) clone() Config {
	c.Dispatch.CPUs = append([]int(nil), c.Dispatch.CPUs...)
	return c
}

// ReloadObserver is told about every accepted configuration change.
type ReloadObserver interface {
	OnReload(old, updated Config)
}

// ConfigStore holds the current configuration and notifies observers of changes.
type ConfigStore struct {
	mu     sync.RWMutex
	config Config
	reload *observer.Multiplexer[ReloadObserver]
	log    *zap.Logger
}

// NewConfigStore starts from cfg; observers run on executor unless they
// subscribe with their own.
func NewConfigStore(cfg Config, executor api.Executor, opts ...observer.Option) *ConfigStore {
	return &ConfigStore{
		config: cfg.clone(),
		reload: observer.NewMultiplexer[ReloadObserver](executor, opts...),
		log:    logs.Named("config"),
	}
}

// Snapshot returns a copy of the current configuration.
func (cs *ConfigStore) Snapshot() Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config.clone()
}

// SetConfig validates and installs cfg, then notifies every observer.
func (cs *ConfigStore) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.clone()
	cs.mu.Lock()
	old := cs.config
	cs.config = cfg
	cs.mu.Unlock()

	cs.reload.ForEachObserver(func(o ReloadObserver) {
		o.OnReload(old.clone(), cfg.clone())
	})
	return nil
}

// Subscribe registers a reload observer; a nil executor uses the store default.
func (cs *ConfigStore) Subscribe(ref observer.Ref[ReloadObserver], executor api.Executor) {
	cs.reload.RegisterInterest(ref, executor)
}

// Unsubscribe removes o and waits for its in-flight notifications.
func (cs *ConfigStore) Unsubscribe(o ReloadObserver) {
	cs.reload.UnregisterInterest(o)
}

// Watch loads path into the store and keeps it in sync with the file.
// Invalid edits are logged and ignored.
func (cs *ConfigStore) Watch(path string) error {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := decode(v)
	if err != nil {
		return err
	}
	if err := cs.SetConfig(cfg); err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err == nil {
			err = cs.SetConfig(cfg)
		}
		if err != nil {
			cs.log.Warn("ignoring config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		cs.log.Info("config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()
	return nil
}
