// control/hotreload.go
// Re-reads the configuration file and propagates it to reload listeners.
// Listeners run synchronously, in registration order, on the caller's goroutine.

package control

import (
	"fmt"

	"github.com/momentics/hioload-msgpool/api"
)

// Reload re-reads the file the store was created with. The active config is
// kept when the file is missing or invalid.
func (cs *ConfigStore) Reload() error {
	path := cs.Path()
	if path == "" {
		return fmt.Errorf("reload: %w: no config file", api.ErrUnavailable)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return cs.SetConfig(cfg)
}

func dispatchReload(listeners []func(*Config), cfg *Config) {
	for _, fn := range listeners {
		fn(cfg)
	}
}
