// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/lib/pq"
)

// migration is one step of schema evolution. Versions are applied in order
// and each is recorded in schema_migrations once it succeeds. Statements must
// be additive: new tables, new columns, new indexes.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create users",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    first_name TEXT,
    last_name TEXT,
    email TEXT NOT NULL UNIQUE,
    role TEXT NOT NULL DEFAULT 'user',
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
		},
	},
	{
		version: 2,
		name:    "create customers",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    user_id TEXT UNIQUE REFERENCES users(id) ON DELETE SET NULL,
    customer_number TEXT NOT NULL UNIQUE,
    account_number TEXT NOT NULL UNIQUE,
    title TEXT,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    id_number TEXT,
    passport_number TEXT,
    date_of_birth TEXT,
    nationality TEXT NOT NULL DEFAULT 'South African',
    email TEXT UNIQUE,
    phone TEXT,
    mobile TEXT NOT NULL,
    whatsapp_number TEXT,
    address_line1 TEXT,
    address_line2 TEXT,
    suburb TEXT,
    city TEXT NOT NULL,
    province TEXT NOT NULL,
    postal_code TEXT NOT NULL,
    complex_name TEXT,
    unit_number TEXT,
    street_number TEXT,
    street_name TEXT,
    company_name TEXT,
    company_registration_number TEXT,
    tax_number TEXT,
    vat_number TEXT,
    customer_type TEXT NOT NULL DEFAULT 'residential',
    status TEXT NOT NULL DEFAULT 'active',
    credit_limit DOUBLE PRECISION,
    payment_method TEXT,
    banking_details TEXT,
    contract_start_date TEXT,
    contract_end_date TEXT,
    preferred_language TEXT NOT NULL DEFAULT 'english',
    communication_preference TEXT NOT NULL DEFAULT 'sms',
    marketing_consent BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    created_by TEXT,
    last_modified_by TEXT
)`,
			`CREATE INDEX IF NOT EXISTS customers_status_idx ON customers (status)`,
			`CREATE INDEX IF NOT EXISTS customers_province_idx ON customers (province)`,
			`CREATE INDEX IF NOT EXISTS customers_created_at_idx ON customers (created_at)`,
		},
	},
	{
		version: 3,
		name:    "add users.last_login_at",
		statements: []string{
			`ALTER TABLE users ADD COLUMN last_login_at TIMESTAMP`,
		},
	},
}

// schemaManager brings the database up to the latest migration. ensure is
// cheap once it has succeeded and is safe to call on every request.
//
// Several processes may race to apply the same version. DDL that fails
// because the object already exists counts as applied, and the version
// marker is inserted with ON CONFLICT DO NOTHING.
type schemaManager struct {
	db         *database
	logger     log.Logger
	migrations []migration

	mu   sync.Mutex
	done atomic.Bool
}

func newSchemaManager(logger log.Logger, db *database) *schemaManager {
	return &schemaManager{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

func (s *schemaManager) ensure(ctx context.Context) error {
	if s.done.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done.Load() {
		return nil
	}

	if _, err := s.db.exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL
)`); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}
	for i := range s.migrations {
		m := s.migrations[i]
		if applied[m.version] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		s.logger.Log("migrations", fmt.Sprintf("applied #%d %s", m.version, m.name))
	}

	s.done.Store(true)
	return nil
}

// version returns the highest recorded migration version, 0 when none.
func (s *schemaManager) version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.queryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func (s *schemaManager) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}

// apply runs each statement outside a transaction. Postgres aborts a
// transaction on the first error, which would stop us from tolerating
// "already exists" and moving on.
func (s *schemaManager) apply(ctx context.Context, m migration) error {
	for i, stmt := range m.statements {
		if _, err := s.db.exec(ctx, stmt); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("migration #%d (%s) statement %d had problem: %w", m.version, m.name, i, err)
		}
	}
	_, err := s.db.exec(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?) ON CONFLICT (version) DO NOTHING`,
		m.version, m.name, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record migration #%d: %w", m.version, err)
	}
	return nil
}

// isAlreadyExists reports whether DDL failed only because its object exists.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P07", // duplicate_table
			"42701", // duplicate_column
			"42710": // duplicate_object
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}
