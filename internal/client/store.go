// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package client implements the record store and syncer that run inside
// a replicating peer: applying messages to in-memory records with
// last-writer-wins semantics, and driving the push/pull exchange with a
// server.
package client

import (
	"fmt"
	"sort"

	"github.com/reconsync/reconsync/internal/clock"
	"github.com/reconsync/reconsync/internal/message"
	"github.com/reconsync/reconsync/pkg/hlc"
	"github.com/reconsync/reconsync/pkg/log"
)

// Record is one row of application data, mutated in place by messages
// addressed to it.
type Record interface {
	// HandleMessage applies one field mutation. It must return an error
	// for an unknown column or an unparseable value; the store aborts
	// the whole batch on the first such error.
	HandleMessage(msg message.Message) error
}

// Handler is the capability a dataset provides to the store: how to
// create a blank record for a new row, and which dataset name this
// handler owns. This stands in for the reference implementation's
// generic MessageHandler trait — Go favors an explicit factory over a
// "static" trait method, so NewRecord takes the place of from_message.
type Handler interface {
	NewRecord(row string) Record
	TableName() string
}

// Store applies messages to an in-memory map of records for exactly one
// dataset (its Handler's TableName). It is not safe for concurrent use
// on its own; the Syncer's lock is what serializes access.
type Store struct {
	handler Handler
	items   map[string]Record
	applied map[string]struct{}
}

// NewStore creates an empty store for the dataset handler owns.
func NewStore(handler Handler) *Store {
	return &Store{
		handler: handler,
		items:   make(map[string]Record),
		applied: make(map[string]struct{}),
	}
}

func (s *Store) TableName() string {
	return s.handler.TableName()
}

// Items is a read-only view of the current rows.
func (s *Store) Items() map[string]Record {
	return s.items
}

// Applied is a read-only view of the timestamps already applied.
func (s *Store) Applied() map[string]struct{} {
	return s.applied
}

// ApplyMessages sorts msgs ascending by timestamp (HLC order) and
// applies each one belonging to this store's dataset; others are logged
// and skipped. This is the only place the client mutates its merkle
// trie. A handler error aborts the remainder of the batch; messages
// already applied before the failing one stay applied.
func (s *Store) ApplyMessages(c *clock.Clock, msgs []message.Message) error {
	sort.Sort(message.ByTimestamp(msgs))

	for _, msg := range msgs {
		if msg.Dataset != s.handler.TableName() {
			log.Warnf("client: unknown dataset %q for table %q, skipping message", msg.Dataset, s.handler.TableName())
			continue
		}
		if err := s.applyOne(c, msg); err != nil {
			return err
		}
	}
	return nil
}

// applyOne is a no-op if msg.Timestamp was already applied (the merkle
// trie's XOR insertion is not idempotent, so this dedup is load-bearing,
// not an optimization).
func (s *Store) applyOne(c *clock.Clock, msg message.Message) error {
	if _, ok := s.applied[msg.Timestamp]; ok {
		return nil
	}

	record, ok := s.items[msg.Row]
	if !ok {
		record = s.handler.NewRecord(msg.Row)
		s.items[msg.Row] = record
	}

	if err := record.HandleMessage(msg); err != nil {
		return fmt.Errorf("client: apply message %s/%s/%s: %w", msg.Dataset, msg.Row, msg.Column, err)
	}

	ts, err := hlc.Parse(msg.Timestamp)
	if err != nil {
		return fmt.Errorf("client: parse applied timestamp %q: %w", msg.Timestamp, err)
	}
	c.InsertTimestamp(ts)
	s.applied[msg.Timestamp] = struct{}{}
	return nil
}
