package party

import (
	"github.com/smallbiznis/licensia/internal/party/repository"
	"github.com/smallbiznis/licensia/internal/party/service"
	"go.uber.org/fx"
)

var Module = fx.Module("party",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
