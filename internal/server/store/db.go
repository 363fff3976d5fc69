// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	gosqlite3 "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"

	"github.com/reconsync/reconsync/pkg/log"
)

//go:embed migrations/sqlite3/*
var migrationFiles embed.FS

// Hooks satisfies sqlhooks.Hooks, logging every statement the store runs
// the way cc-backend's repository.Hooks does for its own SQLite handle.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("sql query %s %q", query, args)
	return context.WithValue(ctx, hookTimingKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(hookTimingKey{}).(time.Time); ok {
		log.Debugf("sql query took %s", time.Since(begin))
	}
	return ctx, nil
}

type hookTimingKey struct{}

var hooksRegistered bool

// openDB opens a sqlx handle to a SQLite database at dsn, wrapping the
// driver with query-logging hooks, and runs embedded migrations against
// it before returning.
func openDB(dsn string) (*sqlx.DB, error) {
	if !hooksRegistered {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&gosqlite3.SQLiteDriver{}, &Hooks{}))
		hooksRegistered = true
	}

	db, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite3: %w", err)
	}
	// SQLite does not benefit from more than one writer connection; more
	// would just serialize on the database lock anyway.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations/sqlite3")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: migration setup: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migration up: %w", err)
	}
	return nil
}
