package config

import "go.uber.org/fx"

// Module loads configuration and refuses to start the process when the
// external-account identifiers are missing or malformed.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Invoke(func(cfg Config) error { return cfg.Validate() }),
)
