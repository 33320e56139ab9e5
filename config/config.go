package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/energysched/core/history"
	"github.com/kilianp07/energysched/core/metrics"
	"github.com/kilianp07/energysched/infra/monitoring"
	"github.com/kilianp07/energysched/infra/mqtt"
)

type Config struct {
	Devices   []DeviceConfig          `json:"devices"`
	MQTT      mqtt.Config             `json:"mqtt"`
	Tariff    TariffConfig            `json:"tariff"`
	Scheduler SchedulerConfig         `json:"scheduler"`
	Poll      PollConfig              `json:"poll"`
	Retry     RetryConfig             `json:"retry"`
	Store     StoreConfig             `json:"store"`
	Metrics   metrics.Config          `json:"metrics"`
	History   history.Config          `json:"history"`
	HTTP      HTTPConfig              `json:"http"`
	Logging   LoggingConfig           `json:"logging"`
	Sentry    monitoring.SentryConfig `json:"sentry"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	for i := range c.Devices {
		c.Devices[i].SetDefaults()
	}
	c.Tariff.SetDefaults()
	c.Scheduler.SetDefaults()
	c.Poll.SetDefaults()
	c.Retry.SetDefaults()
	c.Store.SetDefaults()
	c.History.SetDefaults()
	c.HTTP.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and returns all problems found.
func (c Config) Validate() error {
	var errs []error
	if len(c.Devices) == 0 {
		errs = append(errs, fmt.Errorf("at least one device is required"))
	}
	names := map[string]bool{}
	for _, d := range c.Devices {
		if names[d.Name] {
			errs = append(errs, fmt.Errorf("device name %s is used twice", d.Name))
		}
		names[d.Name] = true
		errs = append(errs, d.Validate())
	}
	if c.MQTT.Broker == "" {
		errs = append(errs, fmt.Errorf("mqtt: broker is required"))
	}
	errs = append(errs,
		c.Tariff.Validate(),
		c.Scheduler.Validate(),
		c.Poll.Validate(),
		c.Retry.Validate(),
		c.Store.Validate(),
		c.History.Validate(),
		c.Logging.Validate(),
	)
	return errors.Join(errs...)
}

// Device returns the device with the given name.
func (c Config) Device(name string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceConfig{}, false
}
