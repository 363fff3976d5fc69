// Package clock bundles the two primitives a sync peer owns: one HLC
// timestamp and one merkle trie, both guarded by whatever lock the
// caller (the client syncer) holds. The server does not use a Clock; it
// keeps a bare merkle trie per group in its store.
package clock

import (
	"github.com/reconsync/reconsync/pkg/hlc"
	"github.com/reconsync/reconsync/pkg/merkle"
)

// Clock has no internal locking of its own — §5 assigns that
// responsibility to the syncer (client side) and the per-group store
// (server side), so that a caller can batch a timestamp send and a
// merkle insert under one critical section.
type Clock struct {
	Timestamp hlc.Timestamp
	Merkle    *merkle.Trie
}

// New constructs a Clock at the zero timestamp for node, with an empty
// trie in the given base.
func New(node string, base int) *Clock {
	return &Clock{
		Timestamp: hlc.New(0, 0, node),
		Merkle:    merkle.New(base),
	}
}

// InsertTimestamp records a parsed timestamp's hash into the merkle
// trie. Callers must ensure the same timestamp is never inserted twice
// (XOR insertion is not idempotent); see the client store's applied set.
func (c *Clock) InsertTimestamp(ts hlc.Timestamp) {
	c.Merkle.Insert(ts.Hash(), ts.Millis)
}
