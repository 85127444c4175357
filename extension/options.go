package extension

import (
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/plugin"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/transfer"
)

// Option configures the Cadence Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPort sets the transfer port. Without it the extension runs an
// in-process token bank.
func WithPort(p transfer.Port) Option {
	return func(e *Extension) {
		e.port = p
	}
}

// WithEngineOption passes a cadence.Option through to the underlying engine.
func WithEngineOption(opt cadence.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a cadence plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, cadence.WithPlugin(p))
	}
}

// WithMetrics records engine and keeper metrics through factory.
func WithMetrics(factory observability.MetricFactory) Option {
	return func(e *Extension) {
		e.metrics = observability.NewMetricsExtension(factory)
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithOperators allows accounts to publish plans for other providers.
func WithOperators(accounts ...string) Option {
	return func(e *Extension) { e.config.Operators = append(e.config.Operators, accounts...) }
}

// WithKeeper enables the background keeper collecting rewards for account.
func WithKeeper(account string) Option {
	return func(e *Extension) {
		e.config.Keeper.Enabled = true
		e.config.Keeper.Account = account
	}
}

// WithKeeperInterval sets the time between keeper sweeps.
func WithKeeperInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.Keeper.Interval = d }
}
