package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// OpenSQLite opens the local token store file and returns a bun handle over
// it. The store is a single sqlite file; writes are serialized through one
// connection so concurrent refreshes never trip SQLITE_BUSY.
func OpenSQLite(path string) (*bun.DB, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("sqlstore: sqlite path is required")
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_sync=FULL", trimmed)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open sqlite %q: %w", trimmed, err)
	}
	sqlDB.SetMaxOpenConns(1)

	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}
