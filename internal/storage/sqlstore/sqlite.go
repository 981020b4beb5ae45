package sqlstore

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cpp11nullptr/vikki/internal/storage"
)

// SQLiteName is the capability name of the SQLite backend.
const SQLiteName = "sqlite"

var sqliteDialect = dialect{
	name:   SQLiteName,
	driver: "sqlite3",
	dsn: func(params map[string]string) (string, error) {
		path, err := storage.Param(params, "path")
		if err != nil {
			return "", err
		}
		return "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL", nil
	},
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn.
	configure: func(db *sql.DB) {
		db.SetMaxOpenConns(1)
	},
	schema: func(map[string]string) string { return "" },

	// Table names are case-insensitive in SQLite.
	tableExists: "SELECT name FROM sqlite_master WHERE type='table' AND name=? COLLATE NOCASE",
	existsArgs: func(_, table string) []any {
		return []any{table}
	},
	createTable: "CREATE TABLE IF NOT EXISTS %s (created INTEGER PRIMARY KEY, data BLOB NOT NULL)",
	upsert:      "INSERT OR REPLACE INTO %s (created, data) VALUES (?, ?)",
	selectRange: "SELECT created, data FROM %s WHERE created BETWEEN ? AND ? ORDER BY created ASC",
}

// NewSQLite returns a closed SQLite backend. Params: path.
func NewSQLite() *Store {
	return &Store{dialect: sqliteDialect}
}
