package gormstore

import (
	_ "embed"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chirino/chat-store/internal/config"
)

//go:embed db/schema_sqlite.sql
var sqliteSchemaSQL string

//go:embed db/schema_postgres.sql
var postgresSchemaSQL string

// dialect holds the SQL that differs between engines.
type dialect struct {
	name   string
	schema string
	open   func(dsn string) gorm.Dialector
	// newIDExpr generates a unique text id inside INSERT ... SELECT.
	newIDExpr string
	// unpinnedExpr is true when metadata.pinned is absent or falsy.
	unpinnedExpr string
}

var sqliteDialect = dialect{
	name:   config.DatastoreSQLite,
	schema: sqliteSchemaSQL,
	open: func(dsn string) gorm.Dialector {
		return sqlite.Open(sqliteDSN(dsn))
	},
	newIDExpr:    "lower(hex(randomblob(16)))",
	unpinnedExpr: "COALESCE(json_extract(metadata, '$.pinned'), 0) IN (0, 'false', '')",
}

var postgresDialect = dialect{
	name:         config.DatastorePostgres,
	schema:       postgresSchemaSQL,
	open:         postgres.Open,
	newIDExpr:    "gen_random_uuid()::text",
	unpinnedExpr: "COALESCE(metadata::jsonb->>'pinned', 'false') IN ('false', '0', '')",
}

// sqliteDSN turns a bare file path into a DSN with the pragmas the store
// relies on: foreign keys for cascades, a busy timeout and immediate write
// transactions so concurrent seq assignment serialises instead of failing.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate&_journal_mode=WAL"
}

// isUniqueViolation reports whether err is a unique or primary key violation
// in either engine.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
