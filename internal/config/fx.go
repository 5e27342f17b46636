package config

import "go.uber.org/fx"

// Module provides application and billing configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewBillingConfigHolder,
	),
)
