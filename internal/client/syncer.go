// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/reconsync/reconsync/internal/clock"
	"github.com/reconsync/reconsync/internal/message"
	"github.com/reconsync/reconsync/pkg/hlc"
	"github.com/reconsync/reconsync/pkg/log"
	"github.com/reconsync/reconsync/pkg/merkle"
)

// ErrSyncStuck is raised when sync's recursion guard detects a fixpoint
// that did not converge — an internal bug, not a transient failure.
var ErrSyncStuck = errors.New("client: sync recursion hit a fixpoint without converging")

// Field is one column value a caller wants to insert or update.
type Field struct {
	// ID, if set, addresses an existing row; insert() ignores it for
	// fields that lack one (they get the newly allocated row id), while
	// update() skips any field that lacks one entirely.
	ID     *string
	Column string
	ValueType message.ValueType
	Value  string
}

// Syncer orchestrates local mutations and the push/pull exchange with a
// server for a single dataset. The whole struct is guarded by mu: HTTP
// calls happen while mu is held, by design (see spec.md §5) — holding
// the lock across the round trip prevents a concurrent local mutation
// from racing the same HLC millis as the in-flight sync response.
type Syncer struct {
	mu sync.Mutex

	nodeName    string
	clock       *clock.Clock
	syncEnabled bool
	store       *Store

	httpClient *http.Client
	serverURL  string
	limiter    *rate.Limiter

	scheduler gocron.Scheduler
}

// Config is the subset of wiring a Syncer needs; pulled out of
// internal/config.Config so this package does not import it back.
type Config struct {
	NodeName   string
	ServerURL  string
	MerkleBase int
	HTTPTimeout time.Duration
}

// New builds a Syncer at Timestamp(0, 0, node_name) with an empty trie,
// matching spec.md §4.5's lifecycle. node_name must not collide with any
// peer's; HLC DuplicateNodeError enforces this lazily, on the first
// recv.
func New(cfg Config, handler Handler) *Syncer {
	node := hlc.NormalizeNode(cfg.NodeName)
	return &Syncer{
		nodeName:    node,
		clock:       clock.New(node, cfg.MerkleBase),
		syncEnabled: true,
		store:       NewStore(handler),
		httpClient:  &http.Client{Timeout: cfg.HTTPTimeout},
		serverURL:   cfg.ServerURL,
		limiter:     rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

func (s *Syncer) NodeName() string { return s.nodeName }
func (s *Syncer) Store() *Store    { return s.store }

// MerkleRootHash exposes the clock's current trie root hash, mainly for
// tests asserting that two peers have converged.
func (s *Syncer) MerkleRootHash() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Merkle.RootHash()
}

// SetSyncEnabled toggles whether sync() performs network I/O; used by
// tests that only want to exercise local apply semantics.
func (s *Syncer) SetSyncEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncEnabled = enabled
}

// Insert allocates a fresh row id, stamps one message per field with its
// own HLC tick, applies them locally, and pushes them to the server.
func (s *Syncer) Insert(group, table string, fields []Field) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowID := uuid.NewString()

	msgs := make([]message.Message, 0, len(fields))
	for _, f := range fields {
		row := rowID
		if f.ID != nil {
			row = *f.ID
		}
		ts, err := s.clock.Timestamp.Send()
		if err != nil {
			return "", fmt.Errorf("client: insert: %w", err)
		}
		msgs = append(msgs, message.Message{
			Timestamp: ts.String(),
			Dataset:   table,
			Row:       row,
			Column:    f.Column,
			ValueType: f.ValueType,
			Value:     f.Value,
		})
	}

	if err := s.sendMessagesLocked(group, msgs); err != nil {
		return "", err
	}
	return rowID, nil
}

// Update stamps and sends one message per field that has an id, skipping
// any field without one.
func (s *Syncer) Update(group, table string, fields []Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []message.Message
	for _, f := range fields {
		if f.ID == nil {
			continue
		}
		ts, err := s.clock.Timestamp.Send()
		if err != nil {
			return fmt.Errorf("client: update: %w", err)
		}
		msgs = append(msgs, message.Message{
			Timestamp: ts.String(),
			Dataset:   table,
			Row:       *f.ID,
			Column:    f.Column,
			ValueType: f.ValueType,
			Value:     f.Value,
		})
	}
	return s.sendMessagesLocked(group, msgs)
}

// Delete emits a tombstone message for id.
func (s *Syncer) Delete(group, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, err := s.clock.Timestamp.Send()
	if err != nil {
		return fmt.Errorf("client: delete: %w", err)
	}
	msg := message.Message{
		Timestamp: ts.String(),
		Dataset:   table,
		Row:       id,
		Column:    "tombstone",
		ValueType: message.ValueNumber,
		Value:     "1",
	}
	return s.sendMessagesLocked(group, []message.Message{msg})
}

// sendMessagesLocked applies msgs locally, then kicks off a sync round.
// Callers must already hold mu.
func (s *Syncer) sendMessagesLocked(group string, msgs []message.Message) error {
	if len(msgs) > 0 {
		if err := s.store.ApplyMessages(s.clock, msgs); err != nil {
			return err
		}
	}
	_, err := s.syncLocked(context.Background(), group, msgs, nil)
	return err
}

// Sync runs one externally-triggered sync round for group — this is
// what the periodic scheduler calls.
func (s *Syncer) Sync(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.syncLocked(ctx, group, nil, nil)
	return err
}

// syncLocked implements spec.md §4.5's sync() as an explicit loop with a
// since accumulator instead of tail recursion (see SPEC_FULL.md §9).
func (s *Syncer) syncLocked(ctx context.Context, group string, initialMessages []message.Message, since *int64) ([]message.Message, error) {
	msgs := initialMessages

	for {
		if !s.syncEnabled {
			return nil, nil
		}

		if since != nil {
			floor := hlc.Since(*since)
			filtered := msgs[:0:0]
			for _, m := range msgs {
				if m.Timestamp >= floor {
					filtered = append(filtered, m)
				}
			}
			msgs = filtered
		}

		resp, err := s.postSync(ctx, group, msgs)
		if err != nil {
			return nil, fmt.Errorf("client: sync transport: %w", err)
		}

		if len(resp.Messages) > 0 {
			if err := s.receiveMessagesLocked(resp.Messages); err != nil {
				return nil, err
			}
		}

		diffTime, ok := s.clock.Merkle.Diff(resp.Merkle)
		if !ok || diffTime <= 0 {
			return resp.Messages, nil
		}

		if since != nil && *since == diffTime {
			return nil, fmt.Errorf("%w: group %s stuck at %d", ErrSyncStuck, group, diffTime)
		}

		msgs = nil
		since = &diffTime
	}
}

// receiveMessagesLocked advances the HLC past every incoming timestamp,
// dropping (not forwarding) any that fail to parse — the redesign noted
// in SPEC_FULL.md §12: the reference implementation hands unparseable
// timestamps to apply_messages anyway, where they fail merkle insertion;
// here they are filtered out before that call instead.
func (s *Syncer) receiveMessagesLocked(msgs []message.Message) error {
	valid := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		ts, err := hlc.Parse(m.Timestamp)
		if err != nil {
			log.Warnf("client: dropping message with unparseable timestamp %q: %v", m.Timestamp, err)
			continue
		}
		if err := s.clock.Timestamp.Recv(ts); err != nil {
			return fmt.Errorf("client: recv timestamp %q: %w", m.Timestamp, err)
		}
		valid = append(valid, m)
	}
	return s.store.ApplyMessages(s.clock, valid)
}

type syncRequest struct {
	GroupID  string            `json:"group_id"`
	ClientID string            `json:"client_id"`
	Messages []message.Message `json:"messages"`
	Merkle   *merkle.Trie      `json:"merkle"`
}

type syncResponse struct {
	Messages []message.Message `json:"messages"`
	Merkle   *merkle.Trie      `json:"merkle"`
}

func (s *Syncer) postSync(ctx context.Context, group string, msgs []message.Message) (*syncResponse, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(syncRequest{
		GroupID:  group,
		ClientID: s.nodeName,
		Messages: msgs,
		Merkle:   s.clock.Merkle,
	})
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/sync", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", httpResp.StatusCode)
	}

	resp := &syncResponse{Merkle: merkle.New(s.clock.Merkle.Base())}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return resp, nil
}

// StartPeriodicSync registers a gocron job that calls Sync every
// interval, matching spec.md §5's "periodic activity wakes every ~3s".
func (s *Syncer) StartPeriodicSync(group string, interval time.Duration) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("client: create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if err := s.Sync(context.Background(), group); err != nil {
				log.Warnf("client: periodic sync for group %s failed, will retry next tick: %v", group, err)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("client: register periodic sync job: %w", err)
	}

	s.scheduler = scheduler
	scheduler.Start()
	return nil
}

// StopPeriodicSync shuts down the scheduler started by StartPeriodicSync.
func (s *Syncer) StopPeriodicSync() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}
