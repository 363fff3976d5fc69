package merkle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCodecBase3(t *testing.T) {
	key := TimestampToKey(2938, 3)
	assert.Equal(t, []int{1, 1, 0, 0, 0, 2, 1, 1}, key)
	assert.Equal(t, int64(2938), KeyToMillis(key, 3))

	assert.Equal(t, []int(nil), TimestampToKey(0, 3))
	assert.Equal(t, int64(0), KeyToMillis(nil, 3))
}

func TestKeyCodecBase10(t *testing.T) {
	key := TimestampToKey(9247, 10)
	assert.Equal(t, []int{9, 2, 4, 7}, key)
	assert.Equal(t, int64(9247), KeyToMillis(key, 10))
}

func TestInsertIdentityWhenEmpty(t *testing.T) {
	trie := New(3)
	assert.True(t, trie.IsEmpty())
	assert.Equal(t, uint64(0), trie.RootHash())
}

func TestInsertPermutationInvariant(t *testing.T) {
	hashes := []struct {
		hash   uint64
		millis int64
	}{
		{111, 12345},
		{222, 98765},
		{333, 12340},
		{444, 0},
	}

	forward := New(3)
	for _, h := range hashes {
		forward.Insert(h.hash, h.millis)
	}

	reversed := New(3)
	for i := len(hashes) - 1; i >= 0; i-- {
		reversed.Insert(hashes[i].hash, hashes[i].millis)
	}

	assert.Equal(t, forward.RootHash(), reversed.RootHash())
	assert.Equal(t, forward.Length(), reversed.Length())
}

func TestDiffIdenticalTries(t *testing.T) {
	a := New(10)
	b := New(10)
	for _, m := range []int64{100, 200, 300} {
		a.Insert(uint64(m), m)
		b.Insert(uint64(m), m)
	}
	_, ok := a.Diff(b)
	assert.False(t, ok)
}

func TestDiffAgainstEmpty(t *testing.T) {
	a := New(10)
	a.Insert(1, 100)
	b := New(10)

	millis, ok := a.Diff(b)
	require.True(t, ok)
	assert.Equal(t, int64(0), millis)

	millis2, ok2 := b.Diff(a)
	require.True(t, ok2)
	assert.Equal(t, int64(0), millis2)
}

func TestDiffBothEmpty(t *testing.T) {
	a := New(10)
	b := New(10)
	_, ok := a.Diff(b)
	assert.False(t, ok)
}

func TestDiffNearby(t *testing.T) {
	a := New(10)
	a.Insert(1, 12788)
	b := New(10)
	b.Insert(2, 12768)

	m1, ok1 := a.Diff(b)
	require.True(t, ok1)
	assert.Equal(t, int64(12768), m1)

	m2, ok2 := b.Diff(a)
	require.True(t, ok2)
	assert.Equal(t, int64(12768), m2)
}

func TestDiffAdjacent(t *testing.T) {
	a := New(10)
	a.Insert(1, 12786)
	b := New(10)
	b.Insert(2, 12787)

	m1, ok1 := a.Diff(b)
	require.True(t, ok1)
	assert.Equal(t, int64(12786), m1)
}

func TestDiffSharedPrefixExtraEntry(t *testing.T) {
	a := New(10)
	a.Insert(1, 555)
	a.Insert(2, 556)
	b := New(10)
	b.Insert(1, 555)

	millis, ok := a.Diff(b)
	require.True(t, ok)
	assert.Equal(t, int64(556), millis)
}

func TestDiffSymmetricOnResult(t *testing.T) {
	a := New(10)
	a.Insert(9, 42)
	b := New(10)
	b.Insert(10, 43)

	m1, ok1 := a.Diff(b)
	m2, ok2 := b.Diff(a)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, m1, m2)
}

func TestNodeJSONRoundTrip(t *testing.T) {
	n := &Node{
		Hash:   42,
		Stored: false,
		Children: map[int]*Node{
			1: {Hash: 7, Stored: true},
			2: {Hash: 9, Stored: false},
		},
	}
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"1":`)
	assert.Contains(t, string(data), `"2":`)

	var out Node
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, n.Hash, out.Hash)
	assert.Len(t, out.Children, 2)
	assert.True(t, out.Children[1].Stored)
}

func TestNodeJSONNoChildrenIsNull(t *testing.T) {
	n := &Node{Hash: 1, Stored: true}
	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hash":1,"stored":true,"children":null}`, string(data))
}

func TestTrieJSONRoundTrip(t *testing.T) {
	trie := New(3)
	trie.Insert(111, 12345)
	trie.Insert(222, 98765)

	data, err := json.Marshal(trie)
	require.NoError(t, err)

	restored := New(3)
	require.NoError(t, json.Unmarshal(data, restored))

	assert.Equal(t, trie.RootHash(), restored.RootHash())
	assert.Equal(t, trie.Length(), restored.Length())

	_, ok := trie.Diff(restored)
	assert.False(t, ok)
}

func TestTrieJSONInvalidDigitKey(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"hash":1,"stored":false,"children":{"x":{"hash":1,"stored":true}}}`), &n)
	assert.Error(t, err)
}
