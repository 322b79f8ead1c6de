package audit

import (
	"context"

	"github.com/smallbiznis/datalake/internal/audit/domain"
	"github.com/smallbiznis/datalake/internal/audit/repository"
	"github.com/smallbiznis/datalake/internal/audit/service"
	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("audit.service",
	fx.Provide(NewDB),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

// NewDB opens and migrates the audit database. It returns a nil handle when
// auditing is disabled.
func NewDB(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	if !cfg.Audit.Enabled {
		log.Info("audit trail disabled")
		return nil, nil
	}
	conn, err := db.Open(db.ConfigFromApp(cfg), log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(conn); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return conn, nil
}

func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&domain.AuditLog{})
}
