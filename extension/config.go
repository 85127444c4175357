package extension

import "time"

// Config holds the Cadence extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.cadence" or "cadence" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Operators may publish plans on behalf of other providers.
	Operators []string `json:"operators" mapstructure:"operators" yaml:"operators"`

	// Spender is the account the engine pulls funds as when the extension
	// supplies its own in-process token bank (default: "cadence").
	Spender string `json:"spender" mapstructure:"spender" yaml:"spender"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// Keeper configures the background renewal worker.
	Keeper KeeperConfig `json:"keeper" mapstructure:"keeper" yaml:"keeper"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// KeeperConfig configures the background keeper.
type KeeperConfig struct {
	// Enabled starts the keeper with the extension.
	Enabled bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`

	// Account receives keeper rewards. Required when Enabled.
	Account string `json:"account" mapstructure:"account" yaml:"account"`

	// Interval between sweeps (default: 1m).
	Interval time.Duration `json:"interval" mapstructure:"interval" yaml:"interval"`

	// MaxCycles caps cycles collected per renewal (default: 12).
	MaxCycles uint32 `json:"max_cycles" mapstructure:"max_cycles" yaml:"max_cycles"`

	// BatchSize caps renewals per sweep (default: 100).
	BatchSize int `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Spender:       "cadence",
		PluginTimeout: 5 * time.Second,
		Keeper: KeeperConfig{
			Interval:  time.Minute,
			MaxCycles: 12,
			BatchSize: 100,
		},
	}
}
