// Package hlc implements a Hybrid Logical Clock: a (millis, counter, node)
// timestamp that is globally unique, totally ordered, and bounded by
// physical clock drift between peers.
package hlc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spaolacci/murmur3"
)

const (
	// MaxDriftMillis is the largest physical-clock disagreement tolerated
	// between a timestamp's logical time and the local wall clock.
	MaxDriftMillis int64 = 60_000
	// MaxCounter is the largest counter value representable in the
	// 4-hex-digit counter segment of the wire format.
	MaxCounter uint32 = 65_535
	// NodeLen is the fixed width of the node segment of the wire format.
	NodeLen = 16
)

var (
	ErrClockDrift    = errors.New("hlc: clock drift exceeds MAX_DRIFT")
	ErrOverflow      = errors.New("hlc: counter overflow")
	ErrDuplicateNode = errors.New("hlc: duplicate node id")
	ErrParse         = errors.New("hlc: malformed timestamp string")
)

// NowFunc returns the current wall-clock time in milliseconds since the
// epoch. Tests override it to make send()/recv() deterministic.
var NowFunc = func() int64 { return time.Now().UnixMilli() }

// Timestamp is a single node's hybrid logical clock value.
type Timestamp struct {
	Millis  int64
	Counter uint32
	Node    string
}

// New builds a Timestamp without validating or normalizing Node; callers
// that need the wire-format invariant (exactly NodeLen characters) should
// run the node name through NormalizeNode first.
func New(millis int64, counter uint32, node string) Timestamp {
	return Timestamp{Millis: millis, Counter: counter, Node: node}
}

// NormalizeNode drops every '-' (the wire format's separator, which Parse
// splits on) from a node identifier and pads or truncates the rest to the
// fixed 16-char width the wire format requires, zero-padding on the right
// the way the original implementation's Display impl does for short ids.
func NormalizeNode(raw string) string {
	raw = strings.ReplaceAll(raw, "-", "")
	if len(raw) >= NodeLen {
		return raw[:NodeLen]
	}
	return raw + strings.Repeat("0", NodeLen-len(raw))
}

// String renders the canonical wire form:
// <RFC3339 millis>-<counter:4 hex upper>-<node:16>
func (t Timestamp) String() string {
	date := time.UnixMilli(t.Millis).UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return fmt.Sprintf("%s-%04X-%s", date, t.Counter, t.Node)
}

// Hash is the 32-bit MurmurHash3 of the canonical string form, widened to
// uint64 for XORing into merkle node hashes.
func (t Timestamp) Hash() uint64 {
	return uint64(murmur3.Sum32([]byte(t.String())))
}

// Parse splits the wire form back into a Timestamp. The format must split
// into exactly five '-'-separated parts: three for the RFC3339 date/time
// (which itself contains two dashes), one hex counter, one node.
func Parse(s string) (Timestamp, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 5 {
		return Timestamp{}, fmt.Errorf("%w: %q", ErrParse, s)
	}

	dateStr := strings.Join(parts[0:3], "-")
	ts, err := time.Parse("2006-01-02T15:04:05.000Z07:00", dateStr)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: %q: %v", ErrParse, s, err)
	}

	counter, err := strconv.ParseUint(parts[3], 16, 32)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: %q: %v", ErrParse, s, err)
	}

	return Timestamp{
		Millis:  ts.UnixMilli(),
		Counter: uint32(counter),
		Node:    parts[4],
	}, nil
}

// Send advances the timestamp to a new, strictly-increasing value and
// returns a snapshot of the committed result suitable for embedding in an
// outgoing message. It fails without mutating the receiver if the result
// would exceed the allowed physical drift or counter range.
func (t *Timestamp) Send() (Timestamp, error) {
	phys := NowFunc()

	lNew := t.Millis
	if phys > lNew {
		lNew = phys
	}

	var cNew uint32
	if lNew == t.Millis {
		cNew = t.Counter + 1
	}

	if lNew-phys > MaxDriftMillis {
		return Timestamp{}, fmt.Errorf("%w: local=%d phys=%d", ErrClockDrift, lNew, phys)
	}
	if cNew > MaxCounter {
		return Timestamp{}, ErrOverflow
	}

	t.Millis = lNew
	t.Counter = cNew
	return *t, nil
}

// Recv merges an incoming timestamp from another node into the receiver,
// preserving monotonicity and uniqueness. It rejects timestamps from our
// own node id (a configuration error) and timestamps whose physical time
// runs ahead of ours by more than MaxDriftMillis.
func (t *Timestamp) Recv(other Timestamp) error {
	if other.Node == t.Node {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, t.Node)
	}

	phys := NowFunc()
	if other.Millis-phys > MaxDriftMillis {
		return fmt.Errorf("%w: remote=%d phys=%d", ErrClockDrift, other.Millis, phys)
	}

	lOld, cOld := t.Millis, t.Counter
	lMsg, cMsg := other.Millis, other.Counter

	lNew := lOld
	if phys > lNew {
		lNew = phys
	}
	if lMsg > lNew {
		lNew = lMsg
	}

	var cNew uint32
	switch {
	case lNew == lOld && lNew == lMsg:
		cNew = max(cOld, cMsg) + 1
	case lNew == lOld:
		cNew = cOld + 1
	case lNew == lMsg:
		cNew = cMsg + 1
	default:
		cNew = 0
	}

	if lNew-phys > MaxDriftMillis {
		return fmt.Errorf("%w: local=%d phys=%d", ErrClockDrift, lNew, phys)
	}
	if cNew > MaxCounter {
		return ErrOverflow
	}

	t.Millis = lNew
	t.Counter = cNew
	return nil
}

func max(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Since returns the lexicographic floor of all timestamps at or after ms:
// the ISO date of ms, a zero counter, and an all-zero 16-char node — any
// valid timestamp string sorts at or after this one iff its millis is >= ms.
func Since(ms int64) string {
	return SinceWithNode(ms, strings.Repeat("0", NodeLen))
}

// SinceWithNode is Since, but with an explicit (already-normalized) node
// segment — used by the server to build its floor timestamp with the
// fixed "SERVER" node id instead of the all-zero placeholder.
func SinceWithNode(ms int64, node string) string {
	date := time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return fmt.Sprintf("%s-0000-%s", date, node)
}
