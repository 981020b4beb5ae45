package sqlstore

import (
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cpp11nullptr/vikki/internal/storage"
)

// PostgresName is the capability name of the PostgreSQL backend.
const PostgresName = "postgresql"

var postgresKeys = []string{"host", "port", "dbname", "user", "password", "sslmode"}

var postgresDialect = dialect{
	name:   PostgresName,
	driver: "pgx",
	dsn:    postgresDSN,
	schema: func(params map[string]string) string {
		return storage.ParamDefault(params, "schema", "public")
	},

	tableExists: `SELECT c.relname FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r' AND n.nspname = $1 AND c.relname = $2`,
	existsArgs: func(schema, table string) []any {
		return []any{schema, table}
	},
	createTable: "CREATE TABLE IF NOT EXISTS %s (created BIGINT PRIMARY KEY, data BYTEA NOT NULL)",
	upsert:      "INSERT INTO %s (created, data) VALUES ($1, $2) ON CONFLICT (created) DO UPDATE SET data = EXCLUDED.data",
	selectRange: "SELECT created, data FROM %s WHERE created BETWEEN $1 AND $2 ORDER BY created ASC",
}

// NewPostgres returns a closed PostgreSQL backend. Params: host, port, dbname,
// user, password, sslmode, schema (default public).
func NewPostgres() *Store {
	return &Store{dialect: postgresDialect}
}

// postgresDSN renders params as a keyword/value connection string. Unknown
// keys are ignored; dbname is required.
func postgresDSN(params map[string]string) (string, error) {
	if _, err := storage.Param(params, "dbname"); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(postgresKeys))
	for _, k := range postgresKeys {
		if params[k] != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteDSNValue(params[k]))
	}
	return strings.Join(parts, " "), nil
}

func quoteDSNValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
