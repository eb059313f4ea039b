package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Config holds database connection configuration.
type Config struct {
	DSN         string
	DialTimeout time.Duration
}

// DB wraps a sql.DB together with its dialect so repositories can share
// placeholder rebinding.
type DB struct {
	*sql.DB
	dialect string
}

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// Open connects to the configured database and applies the schema.
// postgres:// DSNs go through the pgx stdlib driver; anything else is
// treated as a SQLite file path (or :memory:).
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	dialect := dialectSQLite
	driver := "sqlite"
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		dialect = dialectPostgres
		driver = "pgx"
	}

	logger.Info("db.open", "dialect", dialect)
	sqldb, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		logger.Error("db.open.failed", "dialect", dialect, "error", err)
		return nil, err
	}
	if dialect == dialectSQLite {
		// modernc sqlite serializes writes; a single connection avoids
		// SQLITE_BUSY under concurrent enqueue.
		sqldb.SetMaxOpenConns(1)
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := sqldb.PingContext(ctx); err != nil {
		logger.Error("db.ping.failed", "error", err)
		_ = sqldb.Close()
		return nil, err
	}

	db := &DB{DB: sqldb, dialect: dialect}
	if err := db.migrate(ctx); err != nil {
		logger.Error("db.migrate.failed", "error", err)
		_ = sqldb.Close()
		return nil, err
	}
	logger.Info("db.ready")
	return db, nil
}

// rebind converts ?-style placeholders to $N for Postgres. SQLite takes
// them as-is.
func (db *DB) rebind(query string) string {
	if db.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (db *DB) migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if db.dialect == dialectPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
