// Package extension provides the Forge extension adapter for Cadence.
//
// It implements the forge.Extension interface to integrate Cadence
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.cadence" or "cadence" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/keeper"
	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/transfer"
	"github.com/xraph/cadence/transfer/tokenbank"
	"github.com/xraph/cadence/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "cadence"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring-payment subscription engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Cadence as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *cadence.Engine
	keeper     *keeper.Worker
	store      store.Store
	port       transfer.Port
	bank       *tokenbank.Bank
	metrics    *observability.MetricsExtension
	engineOpts []cadence.Option
}

// New creates a new Cadence Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *cadence.Engine { return e.engine }

// Keeper returns the background keeper, or nil when disabled.
func (e *Extension) Keeper() *keeper.Worker { return e.keeper }

// Bank returns the in-process token bank, or nil when a port was supplied.
func (e *Extension) Bank() *tokenbank.Bank { return e.bank }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*cadence.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}
	if e.keeper != nil {
		if err := vessel.Provide(fapp.Container(), func() (*keeper.Worker, error) {
			return e.keeper, nil
		}); err != nil {
			return err
		}
	}
	if e.bank != nil {
		return vessel.Provide(fapp.Container(), func() (*tokenbank.Bank, error) {
			return e.bank, nil
		})
	}
	return nil
}

// build wires the engine and keeper from the resolved config.
func (e *Extension) build() error {
	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.port == nil {
		e.bank = tokenbank.New()
		e.port = e.bank.Port(types.Account(e.config.Spender))
	}

	e.engine = cadence.New(e.store, e.port, e.buildEngineOpts()...)

	kc := e.config.Keeper
	if !kc.Enabled {
		return nil
	}
	if kc.Account == "" {
		return errors.New("cadence: keeper enabled without an account")
	}

	kopts := []keeper.Option{
		keeper.WithLogger(e.engine.Logger()),
		keeper.WithInterval(kc.Interval),
		keeper.WithMaxCycles(kc.MaxCycles),
		keeper.WithBatchSize(kc.BatchSize),
	}
	if e.metrics != nil {
		kopts = append(kopts, keeper.WithSweepHook(e.metrics.RecordSweep))
	}
	e.keeper = keeper.New(e.engine, types.Account(kc.Account), kopts...)
	return nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("cadence: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	if e.keeper != nil {
		// The keeper outlives the startup context.
		if err := e.keeper.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.keeper != nil {
		e.keeper.Stop()
	}
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("cadence: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs cadence.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []cadence.Option {
	opts := make([]cadence.Option, 0, len(e.engineOpts)+4)

	opts = append(opts, cadence.WithMigrateOnStart(!e.config.DisableMigrate))

	if len(e.config.Operators) > 0 {
		ops := make([]types.Account, len(e.config.Operators))
		for i, o := range e.config.Operators {
			ops[i] = types.Account(o)
		}
		opts = append(opts, cadence.WithOperators(ops...))
	}

	if e.config.PluginTimeout > 0 {
		opts = append(opts, cadence.WithPluginTimeout(e.config.PluginTimeout))
	}

	if e.metrics != nil {
		opts = append(opts, cadence.WithPlugin(e.metrics))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("cadence: configuration is required but not found in config files; " +
				"ensure 'extensions.cadence' or 'cadence' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("cadence: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("operators", len(e.config.Operators)),
		forge.F("spender", e.config.Spender),
		forge.F("plugin_timeout", e.config.PluginTimeout),
		forge.F("keeper_enabled", e.config.Keeper.Enabled),
		forge.F("keeper_interval", e.config.Keeper.Interval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.cadence", "cadence"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("cadence: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("cadence: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Spender == "" {
		cfg.Spender = defaults.Spender
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.Keeper.Interval == 0 {
		cfg.Keeper.Interval = defaults.Keeper.Interval
	}
	if cfg.Keeper.MaxCycles == 0 {
		cfg.Keeper.MaxCycles = defaults.Keeper.MaxCycles
	}
	if cfg.Keeper.BatchSize == 0 {
		cfg.Keeper.BatchSize = defaults.Keeper.BatchSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.Keeper.Enabled {
		yamlConfig.Keeper.Enabled = true
	}

	// Operators accumulate from both sources.
	yamlConfig.Operators = append(yamlConfig.Operators, programmaticConfig.Operators...)

	// String fields: YAML takes precedence.
	if yamlConfig.Spender == "" {
		yamlConfig.Spender = programmaticConfig.Spender
	}
	if yamlConfig.Keeper.Account == "" {
		yamlConfig.Keeper.Account = programmaticConfig.Keeper.Account
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.Keeper.Interval == 0 {
		yamlConfig.Keeper.Interval = programmaticConfig.Keeper.Interval
	}
	if yamlConfig.Keeper.MaxCycles == 0 {
		yamlConfig.Keeper.MaxCycles = programmaticConfig.Keeper.MaxCycles
	}
	if yamlConfig.Keeper.BatchSize == 0 {
		yamlConfig.Keeper.BatchSize = programmaticConfig.Keeper.BatchSize
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
