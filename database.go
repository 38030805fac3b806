// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	kitprom "github.com/go-kit/kit/metrics/prometheus"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	stdprom "github.com/prometheus/client_golang/prometheus"
)

var (
	connections = kitprom.NewGaugeFrom(stdprom.GaugeOpts{
		Name: "database_connections",
		Help: "How many database connections and what status they're in.",
	}, []string{"state"})
)

type dialect int

const (
	dialectSqlite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// database wraps *sql.DB so repositories can write every query with '?'
// placeholders and run unchanged on sqlite and postgres.
type database struct {
	db      *sql.DB
	dialect dialect
}

// rebind rewrites '?' placeholders into '$n' for postgres. Queries must not
// contain a literal '?'.
func (d *database) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}
	var buf strings.Builder
	buf.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			buf.WriteByte('$')
			buf.WriteString(strconv.Itoa(n))
			continue
		}
		buf.WriteByte(query[i])
	}
	return buf.String()
}

func (d *database) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, d.rebind(query), args...)
}

func (d *database) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, d.rebind(query), args...)
}

func (d *database) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, d.rebind(query), args...)
}

func (d *database) ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *database) Close() error {
	return d.db.Close()
}

// openDatabase connects to the store named by cfg.DatabaseType.
func openDatabase(logger log.Logger, cfg *config) (*database, error) {
	switch cfg.DatabaseType {
	case "postgres":
		return openPostgres(logger, cfg.DatabaseURL)
	default:
		return openSqlite(logger, cfg.SqlitePath)
	}
}

// openSqlite opens path with foreign keys enforced. Writers are serialized
// through a single connection, which also keeps ":memory:" databases alive
// for the life of the *sql.DB.
func openSqlite(logger log.Logger, path string) (*database, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("problem opening sqlite3 file: %v", err)
		logger.Log("sqlite", err)
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite3 %s: %v", path, err)
	}
	logger.Log("sqlite", fmt.Sprintf("opened %s", path))
	return &database{db: db, dialect: dialectSqlite}, nil
}

func openPostgres(logger log.Logger, dsn string) (*database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		err = fmt.Errorf("problem opening postgres connection: %v", err)
		logger.Log("postgres", err)
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %v", err)
	}
	logger.Log("postgres", "connection established")
	return &database{db: db, dialect: dialectPostgres}, nil
}

// uniqueViolation reports whether err came from a UNIQUE (or primary key)
// constraint and, when the driver tells us, which column was involved.
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return sqliteConstraintColumn(sqliteErr.Error()), true
		}
		return "", false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return postgresConstraintColumn(pqErr.Table, pqErr.Constraint), true
	}
	return "", false
}

// foreignKeyViolation reports whether err came from a REFERENCES constraint.
func foreignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// sqliteConstraintColumn pulls "email" out of
// "UNIQUE constraint failed: users.email".
func sqliteConstraintColumn(msg string) string {
	idx := strings.Index(msg, "failed: ")
	if idx < 0 {
		return ""
	}
	col := msg[idx+len("failed: "):]
	if i := strings.Index(col, ","); i >= 0 {
		col = col[:i]
	}
	if i := strings.LastIndex(col, "."); i >= 0 {
		col = col[i+1:]
	}
	return strings.TrimSpace(col)
}

// postgresConstraintColumn pulls "email" out of the default constraint name
// "users_email_key".
func postgresConstraintColumn(table, constraint string) string {
	if strings.HasSuffix(constraint, "_pkey") {
		return "id" // every table is keyed by id
	}
	col := strings.TrimPrefix(constraint, table+"_")
	return strings.TrimSuffix(col, "_key")
}

// connectionCollector publishes db.Stats() as prometheus gauges until ctx is done.
type connectionCollector struct {
	interval time.Duration
}

func (c connectionCollector) run(ctx context.Context, db *database) {
	if db == nil || db.db == nil {
		return
	}
	interval := c.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats := db.db.Stats()
		connections.With("state", "idle").Set(float64(stats.Idle))
		connections.With("state", "inuse").Set(float64(stats.InUse))
		connections.With("state", "open").Set(float64(stats.OpenConnections))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
