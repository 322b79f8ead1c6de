package db

import (
	"time"

	"github.com/smallbiznis/datalake/internal/config"
)

// Config selects and tunes the audit database connection.
type Config struct {
	Type            string
	DSN             string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

func ConfigFromApp(cfg config.Config) Config {
	return Config{
		Type:            cfg.Audit.DBType,
		DSN:             cfg.Audit.DSN,
		MaxIdleConn:     cfg.Audit.MaxIdleConn,
		MaxOpenConn:     cfg.Audit.MaxOpenConn,
		ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		SlowQuery:       cfg.Audit.SlowQuery,
	}
}
