package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/datalake/internal/clock"
	"github.com/smallbiznis/datalake/internal/config"
	"github.com/smallbiznis/datalake/internal/datalake"
	"github.com/smallbiznis/datalake/internal/observability"
	"github.com/smallbiznis/datalake/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,

		datalake.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
