package entitlement

import (
	"github.com/smallbiznis/licensia/internal/entitlement/repository"
	"github.com/smallbiznis/licensia/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
