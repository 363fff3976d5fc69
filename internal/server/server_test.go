package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconsync/reconsync/internal/message"
	"github.com/reconsync/reconsync/internal/server/store"
	"github.com/reconsync/reconsync/pkg/hlc"
	"github.com/reconsync/reconsync/pkg/merkle"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dbfile := filepath.Join(t.TempDir(), "reconsync.db")
	st, err := store.Open(dbfile, merkle.DefaultBase)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st)
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ok", rec.Body.String())
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestSyncAppliesMessagesAndReturnsMerkle(t *testing.T) {
	s := newTestServer(t)

	ts := hlc.New(1_700_000_000_000, 0, hlc.NormalizeNode("node-a"))
	m := message.Message{
		Timestamp: ts.String(),
		Dataset:   "todo",
		Row:       "row1",
		Column:    "content",
		ValueType: message.ValueString,
		Value:     "buy milk",
	}

	req := syncRequest{
		GroupID:  "group1",
		ClientID: hlc.NormalizeNode("node-a"),
		Messages: []message.Message{m},
		Merkle:   merkle.New(merkle.DefaultBase),
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Merkle.IsEmpty())
	assert.Equal(t, ts.Hash(), resp.Merkle.RootHash())
}

func TestSyncExcludesOwnMessagesOnSecondClient(t *testing.T) {
	s := newTestServer(t)

	ts := hlc.New(1_700_000_000_000, 0, hlc.NormalizeNode("node-a"))
	m := message.Message{
		Timestamp: ts.String(),
		Dataset:   "todo",
		Row:       "row1",
		Column:    "content",
		ValueType: message.ValueString,
		Value:     "buy milk",
	}

	first := syncRequest{
		GroupID:  "group1",
		ClientID: hlc.NormalizeNode("node-a"),
		Messages: []message.Message{m},
		Merkle:   merkle.New(merkle.DefaultBase),
	}
	body, err := json.Marshal(first)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	second := syncRequest{
		GroupID:  "group1",
		ClientID: hlc.NormalizeNode("node-b"),
		Messages: nil,
		Merkle:   merkle.New(merkle.DefaultBase),
	}
	body2, err := json.Marshal(second)
	require.NoError(t, err)
	rec2 := httptest.NewRecorder()
	s.router.ServeHTTP(rec2, httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(body2)))
	require.Equal(t, http.StatusOK, rec2.Code)

	var resp syncResponse
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, m.Value, resp.Messages[0].Value)
}
