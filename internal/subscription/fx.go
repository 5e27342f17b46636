package subscription

import (
	"github.com/smallbiznis/licensia/internal/subscription/repository"
	"github.com/smallbiznis/licensia/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
