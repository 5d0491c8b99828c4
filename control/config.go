// control/config.go
// Author: momentics <momentics@gmail.com>
//
// TOML configuration for the message pool and its harness, plus a
// thread-safe store that swaps the active config and notifies listeners.

package control

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/momentics/hioload-msgpool/api"
	"github.com/momentics/hioload-msgpool/internal/logutil"
	"github.com/momentics/hioload-msgpool/msgpool"
	"github.com/momentics/hioload-msgpool/pool"
	"github.com/momentics/hioload-msgpool/watcher"
)

// PoolSection is the [pool] table.
type PoolSection struct {
	MaxMessageSize int `toml:"max-message-size"`
	Capacity       int `toml:"capacity"`
	MinClassSize   int `toml:"min-class-size"`
	SignalBuffer   int `toml:"signal-buffer"`
}

// WatchSection is the optional [channel.watch] table.
type WatchSection struct {
	Low       int `toml:"low"`
	High      int `toml:"high"`
	Increment int `toml:"increment"`
	Max       int `toml:"max"`
}

// Policy converts the section to a watcher policy.
func (w WatchSection) Policy() watcher.Policy {
	return watcher.Policy{Low: w.Low, High: w.High, Increment: w.Increment, Max: w.Max}
}

// ChannelSection is one [[channel]] entry.
type ChannelSection struct {
	Name      string        `toml:"name"`
	Readiness bool          `toml:"readiness"`
	Watch     *WatchSection `toml:"watch"`
}

// WorkersSection is the [workers] table.
type WorkersSection struct {
	Min          int  `toml:"min"`
	Max          int  `toml:"max"`
	ServiceMaxMs int  `toml:"service-max-ms"`
	CPUAffinity  bool `toml:"cpu-affinity"`
}

// MetricsSection is the [metrics] table. An empty Listen disables the endpoint.
type MetricsSection struct {
	Listen string `toml:"listen"`
	Path   string `toml:"path"`
}

// Config is the whole configuration file.
type Config struct {
	Pool     PoolSection       `toml:"pool"`
	Channels []ChannelSection  `toml:"channel"`
	Workers  WorkersSection    `toml:"workers"`
	Log      logutil.LogConfig `toml:"log"`
	Metrics  MetricsSection    `toml:"metrics"`
}

// DefaultConfig mirrors the echo demo: 4-byte payloads behind a 4-byte
// length header, a watched upstream and a downstream with readiness.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolSection{MaxMessageSize: 8},
		Channels: []ChannelSection{
			{Name: api.Upstream.String(), Watch: &WatchSection{High: 10, Increment: 3}},
			{Name: api.Downstream.String(), Readiness: true},
		},
		Workers: WorkersSection{Min: 0, Max: 10},
		Log:     logutil.DefaultLogConfig(),
		Metrics: MetricsSection{Path: "/metrics"},
	}
}

// LoadConfig decodes path over DefaultConfig. A file that lists channels
// replaces the default channel set.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Channels = nil
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "unknown configuration keys").
			WithContext("path", path).WithContext("keys", fmt.Sprint(undecoded))
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = DefaultConfig().Channels
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func invalid(msg string) *api.Error {
	return api.NewError(api.ErrCodeInvalidArgument, msg)
}

// Validate checks cross-field constraints that the pool constructors would
// otherwise reject later with less context.
func (c *Config) Validate() error {
	if c.Pool.MaxMessageSize <= 0 {
		return invalid("pool.max-message-size must be positive").
			WithContext("max-message-size", c.Pool.MaxMessageSize)
	}
	if c.Pool.Capacity < 0 || c.Pool.MinClassSize < 0 || c.Pool.SignalBuffer < 0 {
		return invalid("pool sizes must not be negative")
	}
	if c.Workers.Min < 0 || c.Workers.Max < c.Workers.Min {
		return invalid("workers: need 0 <= min <= max").
			WithContext("min", c.Workers.Min).WithContext("max", c.Workers.Max)
	}
	if c.Workers.ServiceMaxMs < 0 {
		return invalid("workers.service-max-ms must not be negative")
	}
	seen := make(map[api.ChannelID]bool, len(c.Channels))
	for _, ch := range c.Channels {
		id, err := api.ParseChannelName(ch.Name)
		if err != nil {
			return err
		}
		if seen[id] {
			return invalid("duplicate channel").WithContext("name", ch.Name)
		}
		seen[id] = true
		if ch.Watch != nil {
			if err := ch.Watch.Policy().Validate(); err != nil {
				return fmt.Errorf("channel %s: %w", ch.Name, err)
			}
		}
	}
	return nil
}

// channelSlots returns the channel sections indexed by id. Unlisted ids
// below the highest configured one, and the two default directions, get
// an empty section.
func (c *Config) channelSlots() ([]ChannelSection, error) {
	n := api.DefaultChannels
	ids := make([]api.ChannelID, len(c.Channels))
	for i, ch := range c.Channels {
		id, err := api.ParseChannelName(ch.Name)
		if err != nil {
			return nil, err
		}
		ids[i] = id
		if int(id)+1 > n {
			n = int(id) + 1
		}
	}
	slots := make([]ChannelSection, n)
	for i := range slots {
		slots[i].Name = api.ChannelID(i).String()
	}
	for i, ch := range c.Channels {
		slots[ids[i]] = ch
	}
	return slots, nil
}

// MsgPoolConfig builds the pool construction config.
func (c *Config) MsgPoolConfig() (msgpool.Config, error) {
	slots, err := c.channelSlots()
	if err != nil {
		return msgpool.Config{}, err
	}
	out := msgpool.Config{
		Allocator: pool.Config{
			MaxMessageSize: c.Pool.MaxMessageSize,
			Capacity:       c.Pool.Capacity,
			MinClassSize:   c.Pool.MinClassSize,
		},
		Channels:     make([]msgpool.ChannelConfig, len(slots)),
		SignalBuffer: c.Pool.SignalBuffer,
	}
	for i, s := range slots {
		out.Channels[i].Readiness = s.Readiness
		if s.Watch != nil {
			p := s.Watch.Policy()
			out.Channels[i].Watch = &p
		}
	}
	return out, nil
}

// WatchPolicies returns the configured watcher policies by channel.
func (c *Config) WatchPolicies() (map[api.ChannelID]watcher.Policy, error) {
	out := make(map[api.ChannelID]watcher.Policy)
	for _, ch := range c.Channels {
		if ch.Watch == nil {
			continue
		}
		id, err := api.ParseChannelName(ch.Name)
		if err != nil {
			return nil, err
		}
		out[id] = ch.Watch.Policy()
	}
	return out, nil
}

// ConfigStore holds the active configuration and reload listeners.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	path      string
	listeners []func(*Config)
}

// NewConfigStore initializes a store with cfg, loaded from path ("" if none).
func NewConfigStore(cfg *Config, path string) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg, path: path}
}

// Get returns the active config. Callers must not modify it.
func (cs *ConfigStore) Get() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config
}

// Path returns the file the config was loaded from.
func (cs *ConfigStore) Path() string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.path
}

// SetConfig validates and installs cfg, then notifies listeners.
func (cs *ConfigStore) SetConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg
	listeners := append([]func(*Config){}, cs.listeners...)
	cs.mu.Unlock()
	dispatchReload(listeners, cfg)
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
