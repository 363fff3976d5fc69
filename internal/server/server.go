// Copyright (C) 2026 reconsync authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package server is the HTTP binding for the sync protocol: it holds the
// durable per-group message log and answers POST /sync, GET /ping, GET
// /healthz, and GET /metrics.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reconsync/reconsync/internal/message"
	"github.com/reconsync/reconsync/internal/server/metrics"
	"github.com/reconsync/reconsync/internal/server/store"
	"github.com/reconsync/reconsync/pkg/hlc"
	"github.com/reconsync/reconsync/pkg/log"
	"github.com/reconsync/reconsync/pkg/merkle"
)

// ServerNode is the fixed HLC node id the server uses when building its
// floor timestamp for find_late_messages.
const ServerNode = "SERVER"

// Server wires the durable store to gorilla/mux routes.
type Server struct {
	store  *store.Store
	router *mux.Router
}

// New builds a Server backed by store and registers its routes.
func New(st *store.Store) *Server {
	s := &Server{store: st, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.Use(handlers.CompressHandler)
	s.router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
}

// Handler returns the fully wrapped http.Handler, suitable for
// http.Server.Handler — request/response access logging is applied here
// the way cc-backend wraps its router in serverStart().
func (s *Server) Handler() http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, s.router, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ok"))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Merkle == nil {
		http.Error(w, "missing merkle", http.StatusBadRequest)
		return
	}

	metrics.SyncRounds.WithLabelValues(req.GroupID).Inc()

	unlock := s.store.Lock(req.GroupID)
	defer unlock()

	// AddMessages with no messages only loads the group's current trie; the
	// trie length before and after tells how many messages were inserted.
	var trie *merkle.Trie
	prev, err := s.store.AddMessages(req.GroupID, nil)
	if err == nil {
		trie, err = s.store.AddMessages(req.GroupID, req.Messages)
	}
	if err != nil {
		metrics.SyncErrors.WithLabelValues(req.GroupID).Inc()
		log.Errorf("server: add messages for group %s: %v", req.GroupID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	metrics.MessagesApplied.WithLabelValues(req.GroupID).Add(float64(trie.Length() - prev.Length()))

	var late []message.Message
	if d, ok := trie.Diff(req.Merkle); ok {
		floor := hlc.SinceWithNode(d, hlc.NormalizeNode(ServerNode))
		depth := len(merkle.TimestampToKey(d, trie.Base()))
		metrics.DiffDepth.WithLabelValues(req.GroupID).Observe(float64(depth))

		late, err = s.store.FindLateMessages(req.GroupID, req.ClientID, floor)
		if err != nil {
			metrics.SyncErrors.WithLabelValues(req.GroupID).Inc()
			log.Errorf("server: find late messages for group %s: %v", req.GroupID, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
	metrics.LateMessagesReturned.WithLabelValues(req.GroupID).Observe(float64(len(late)))

	writeJSON(w, http.StatusOK, syncResponse{Messages: late, Merkle: trie})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("server: encode response: %v", err)
	}
}
