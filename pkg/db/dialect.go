package db

import (
	"fmt"
	"strings"

	puresqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	TypeSQLite    = "sqlite"
	TypeSQLiteCGO = "sqlite3"
	TypePostgres  = "postgres"
	TypeMySQL     = "mysql"
)

// Dialect returns the gorm dialector for cfg. "sqlite" uses the pure Go
// driver, "sqlite3" the cgo one.
func Dialect(cfg Config) (gorm.Dialector, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case TypeSQLite, "":
		if dsn == "" {
			dsn = "datalake-audit.db"
		}
		return puresqlite.Open(dsn), nil
	case TypeSQLiteCGO:
		if dsn == "" {
			dsn = "datalake-audit.db"
		}
		return sqlite.Open(dsn), nil
	case TypePostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres audit database requires a DSN")
		}
		return postgres.Open(dsn), nil
	case TypeMySQL:
		if dsn == "" {
			return nil, fmt.Errorf("mysql audit database requires a DSN")
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.Type)
	}
}
