package migration

import (
	"context"

	"github.com/smallbiznis/licensia/internal/config"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	"github.com/smallbiznis/licensia/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, partysvc partydomain.Service, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.SeedDemo {
			return seed.EnsureDemoHierarchy(context.Background(), conn, partysvc, log)
		}
		return nil
	}),
)
