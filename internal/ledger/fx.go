package ledger

import (
	"github.com/smallbiznis/licensia/internal/ledger/repository"
	"github.com/smallbiznis/licensia/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
