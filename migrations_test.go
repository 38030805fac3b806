// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/lib/pq"
)

func openTestSqlite(t *testing.T) *database {
	t.Helper()
	db, err := openSqlite(log.NewNopLogger(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func countRows(t *testing.T, db *database, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.queryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestMigrations__ensure(t *testing.T) {
	db := openTestSqlite(t)
	ctx := context.Background()
	sm := newSchemaManager(log.NewNopLogger(), db)

	if err := sm.ensure(ctx); err != nil {
		t.Fatal(err)
	}
	v, err := sm.version(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v != len(migrations) {
		t.Errorf("got version %d", v)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM schema_migrations`); n != len(migrations) {
		t.Errorf("got %d migration rows", n)
	}

	// additive column from migration #3 exists
	if _, err := db.exec(ctx, `SELECT last_login_at FROM users`); err != nil {
		t.Errorf("last_login_at: %v", err)
	}
	if _, err := db.exec(ctx, `SELECT customer_number, account_number FROM customers`); err != nil {
		t.Errorf("customers: %v", err)
	}
}

func TestMigrations__idempotent(t *testing.T) {
	db := openTestSqlite(t)
	ctx := context.Background()

	// a fresh manager doesn't know the database has been migrated already
	for i := 0; i < 3; i++ {
		if err := newSchemaManager(log.NewNopLogger(), db).ensure(ctx); err != nil {
			t.Fatalf("run #%d: %v", i, err)
		}
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM schema_migrations`); n != len(migrations) {
		t.Errorf("got %d migration rows", n)
	}
}

func TestMigrations__existingColumnWithoutMarker(t *testing.T) {
	db := openTestSqlite(t)
	ctx := context.Background()

	// Simulate another process adding the column before it recorded the version.
	if err := newSchemaManager(log.NewNopLogger(), db).ensure(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.exec(ctx, `DELETE FROM schema_migrations WHERE version = 3`); err != nil {
		t.Fatal(err)
	}

	if err := newSchemaManager(log.NewNopLogger(), db).ensure(ctx); err != nil {
		t.Fatalf("duplicate column should be tolerated: %v", err)
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM schema_migrations WHERE version = 3`); n != 1 {
		t.Errorf("got %d rows for version 3", n)
	}
}

func TestMigrations__concurrent(t *testing.T) {
	db := openTestSqlite(t)
	ctx := context.Background()

	shared := newSchemaManager(log.NewNopLogger(), db)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- shared.ensure(ctx)
		}()
		go func() {
			defer wg.Done()
			errs <- newSchemaManager(log.NewNopLogger(), db).ensure(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM schema_migrations`); n != len(migrations) {
		t.Errorf("got %d migration rows", n)
	}
}

func TestMigrations__failurePropagates(t *testing.T) {
	db := openTestSqlite(t)
	ctx := context.Background()

	sm := newSchemaManager(log.NewNopLogger(), db)
	sm.migrations = []migration{
		{version: 1, name: "broken", statements: []string{`CREATE TABLE (`}},
	}
	if err := sm.ensure(ctx); err == nil {
		t.Fatal("expected error")
	}
	if sm.done.Load() {
		t.Error("manager marked done after failure")
	}
	if n := countRows(t, db, `SELECT COUNT(*) FROM schema_migrations`); n != 0 {
		t.Errorf("failed migration recorded: %d rows", n)
	}
}

func TestMigrations__isAlreadyExists(t *testing.T) {
	cases := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("table users already exists"), true},
		{errors.New("duplicate column name: last_login_at"), true},
		{&pq.Error{Code: "42701"}, true},
		{&pq.Error{Code: "42P07"}, true},
		{&pq.Error{Code: "42601", Message: "syntax error"}, false},
		{errors.New("disk I/O error"), false},
	}
	for i := range cases {
		if got := isAlreadyExists(cases[i].err); got != cases[i].expected {
			t.Errorf("err=%v got %v", cases[i].err, got)
		}
	}
}
