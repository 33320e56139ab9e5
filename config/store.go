package config

import (
	"fmt"

	"github.com/kilianp07/energysched/infra/kvstore"
)

// StoreConfig selects where lifecycle state is persisted.
type StoreConfig struct {
	// Backend is "memory", "file" or "redis".
	Backend string              `json:"backend"`
	Path    string              `json:"path"`
	Redis   kvstore.RedisConfig `json:"redis"`
}

// SetDefaults applies sane defaults.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "file"
	}
	if c.Backend == "file" && c.Path == "" {
		c.Path = "energysched_state.yaml"
	}
	if c.Backend == "redis" && c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("store: unknown backend %s", c.Backend)
	}
	if c.Backend == "file" && c.Path == "" {
		return fmt.Errorf("store: path is required")
	}
	return nil
}

// HTTPConfig configures the control API.
type HTTPConfig struct {
	Enabled *bool  `json:"enabled"`
	Address string `json:"address"`
	// Token, when set, is required as a bearer token on state changes.
	Token string `json:"token"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.Enabled == nil {
		on := true
		c.Enabled = &on
	}
	if c.Address == "" {
		c.Address = ":8080"
	}
}

// IsEnabled reports whether the API is served.
func (c HTTPConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }
