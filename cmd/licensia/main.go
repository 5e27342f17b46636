package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensia/internal/clock"
	"github.com/smallbiznis/licensia/internal/config"
	"github.com/smallbiznis/licensia/internal/logger"
	"github.com/smallbiznis/licensia/internal/migration"
	"github.com/smallbiznis/licensia/internal/observability"
	"github.com/smallbiznis/licensia/internal/scheduler"
	"github.com/smallbiznis/licensia/internal/server"
	"github.com/smallbiznis/licensia/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domains + HTTP boundary
		server.Module,
		scheduler.Module,
		migration.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
