// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package store is the server's durable message log: one SQLite-backed
// table of messages plus one persisted merkle trie per group.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/reconsync/reconsync/internal/message"
	"github.com/reconsync/reconsync/pkg/hlc"
	"github.com/reconsync/reconsync/pkg/log"
	"github.com/reconsync/reconsync/pkg/merkle"
)

// ErrBaseMismatch is returned when a group's persisted merkle_base
// disagrees with this server's configured trie base.
var ErrBaseMismatch = errors.New("store: merkle base mismatch")

// Store owns the durable message log and per-group merkle tries. All
// database access for a given group is serialized through that group's
// lock, matching spec.md §5's "per-group exclusive lock around
// add_messages + diff + find_late_messages".
type Store struct {
	db    *sqlx.DB
	base  int
	locks sync.Map // group_id (string) -> *sync.Mutex
}

// Open opens (creating if necessary) a SQLite database at dsn and runs
// its schema migrations. base is the merkle trie base this server
// expects every group to use.
func Open(dsn string, base int) (*Store, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, base: base}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Lock returns the exclusive lock for group, creating it on first use.
// Callers must Unlock it when finished. Neither AddMessages nor
// FindLateMessages acquires it internally; the sync handler wraps both
// calls under a single acquisition so a concurrent sync on the same group
// cannot observe a torn merkle/message-table state.
func (s *Store) Lock(group string) func() {
	actual, _ := s.locks.LoadOrStore(group, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

type messageRow struct {
	Timestamp  string `db:"timestamp"`
	GroupID    string `db:"group_id"`
	Dataset    string `db:"dataset"`
	Row        string `db:"row"`
	ColumnName string `db:"column_name"`
	ValueType  string `db:"value_type"`
	Value      string `db:"value"`
}

func (r messageRow) toMessage() (message.Message, error) {
	vt, err := message.ParseValueType(r.ValueType)
	if err != nil {
		return message.Message{}, fmt.Errorf("store: row %s/%s: %w", r.GroupID, r.Timestamp, err)
	}
	return message.Message{
		Timestamp: r.Timestamp,
		Dataset:   r.Dataset,
		Row:       r.Row,
		Column:    r.ColumnName,
		ValueType: vt,
		Value:     r.Value,
	}, nil
}

// AddMessages inserts any of msgs not already present (by the
// (timestamp, group_id) primary key) into group's log, folds each
// actually-inserted timestamp into group's merkle trie, persists the
// trie if it changed, and returns the resulting trie. Callers already
// holding group's lock (via Lock) may call this directly without
// re-acquiring it — AddMessages does not lock internally, since the
// sync handler needs add+diff+find-late to be one atomic section.
func (s *Store) AddMessages(group string, msgs []message.Message) (*merkle.Trie, error) {
	trie, err := s.loadMerkle(group)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}

	changed := false
	for _, m := range msgs {
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO messages (timestamp, group_id, dataset, row, column_name, value_type, value)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.Timestamp, group, m.Dataset, m.Row, m.Column, m.ValueType.String(), m.Value,
		)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("store: insert message: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("store: rows affected: %w", err)
		}
		if n == 0 {
			continue
		}

		ts, err := hlc.Parse(m.Timestamp)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("store: parse inserted timestamp %q: %w", m.Timestamp, err)
		}
		trie.Insert(ts.Hash(), ts.Millis)
		changed = true
	}

	if changed {
		if err := s.saveMerkleTx(tx, group, trie); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return trie, nil
}

// FindLateMessages returns every message in group with timestamp >
// sinceTimestamp whose timestamp string does not end with clientID,
// ordered ascending. The trailing-substring exclusion mirrors the
// reference implementation exactly (see spec.md §9's open question):
// a clientID that happens to be a suffix of another node's id would
// be wrongly filtered too, but node ids are expected to be unique
//16-char identifiers so this does not arise in practice.
func (s *Store) FindLateMessages(group, clientID, sinceTimestamp string) ([]message.Message, error) {
	sqlStr, args, err := sq.Select("timestamp", "group_id", "dataset", "row", "column_name", "value_type", "value").
		From("messages").
		Where(sq.Eq{"group_id": group}).
		Where(sq.Gt{"timestamp": sinceTimestamp}).
		Where("timestamp NOT LIKE '%' || ?", clientID).
		OrderBy("timestamp ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build query: %w", err)
	}

	var rows []messageRow
	if err := s.db.Select(&rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("store: query late messages: %w", err)
	}

	msgs := make([]message.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toMessage()
		if err != nil {
			log.Warnf("store: skipping corrupt row: %v", err)
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

type merkleRow struct {
	MerkleJSON string `db:"merkle_json"`
	MerkleBase int    `db:"merkle_base"`
}

func (s *Store) loadMerkle(group string) (*merkle.Trie, error) {
	var row merkleRow
	err := s.db.Get(&row, `SELECT merkle_json, merkle_base FROM messages_merkles WHERE group_id = ?`, group)
	if err == sql.ErrNoRows {
		return merkle.New(s.base), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load merkle: %w", err)
	}
	if row.MerkleBase != s.base {
		return nil, fmt.Errorf("%w: group %s has base %d, server configured for %d", ErrBaseMismatch, group, row.MerkleBase, s.base)
	}

	trie := merkle.New(s.base)
	if err := json.Unmarshal([]byte(row.MerkleJSON), trie); err != nil {
		return nil, fmt.Errorf("store: decode merkle: %w", err)
	}
	return trie, nil
}

func (s *Store) saveMerkleTx(tx *sqlx.Tx, group string, trie *merkle.Trie) error {
	data, err := json.Marshal(trie)
	if err != nil {
		return fmt.Errorf("store: encode merkle: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO messages_merkles (group_id, merkle_json, merkle_base) VALUES (?, ?, ?)
		 ON CONFLICT(group_id) DO UPDATE SET merkle_json = excluded.merkle_json, merkle_base = excluded.merkle_base`,
		group, string(data), s.base,
	)
	if err != nil {
		return fmt.Errorf("store: save merkle: %w", err)
	}
	return nil
}
