package datalake

import (
	"context"

	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake/domain"
	"github.com/smallbiznis/datalake/internal/datalake/repository"
	"github.com/smallbiznis/datalake/internal/datalake/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("datalake.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Store) domain.Service { return s }),
	fx.Invoke(registerShutdownSave),
)

func registerShutdownSave(lc fx.Lifecycle, cfg config.Config, store *service.Store, log *zap.Logger) {
	if !cfg.SaveOnShutdown {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := store.Save(ctx); err != nil {
				log.Error("final state save failed", zap.Error(err))
				return err
			}
			log.Info("state saved on shutdown")
			return nil
		},
	})
}
