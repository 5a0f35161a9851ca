// Package msgid generates 128-bit time-ordered message identifiers.
//
// An ID is composed of a 64-bit timestamp in 100-nanosecond ticks followed
// by 64 bits of per-process random node data. The hex form is fixed width,
// so lexicographic order on the string equals creation-time order - index
// backends rely on this to keep label indexes time-sorted without reading
// the row.
//
// A Generator guards a process-wide "last issued" watermark with a mutex:
// when a caller supplies a timestamp that is not strictly newer than the
// watermark (repeated sent dates, clock repeats, rapid successive calls),
// the watermark advances by one tick and that value is used instead. Both
// the sent-date and the wall-clock path go through the watermark, so ids
// are strictly monotonic per process regardless of which path issued them.
package msgid

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EncodedLen is the length of the hex string form of an ID.
const EncodedLen = 32

// ErrInvalidID is returned when parsing a malformed id string.
var ErrInvalidID = errors.New("msgid: invalid id")

// ID is a 128-bit time-ordered message identifier.
type ID [16]byte

// Zero is the zero ID. It is never issued by a Generator.
var Zero ID

// String returns the fixed-width lowercase hex form.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the id is the zero value.
func (id ID) IsZero() bool {
	return id == Zero
}

// Less reports whether id was created before other.
// Comparison is on the raw bytes; the timestamp occupies the high bytes.
func (id ID) Less(other ID) bool {
	for i := 0; i < len(id); i++ {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// Compare returns -1, 0 or 1 ordering id against other.
func (id ID) Compare(other ID) int {
	switch {
	case id.Less(other):
		return -1
	case other.Less(id):
		return 1
	default:
		return 0
	}
}

// Time returns the creation timestamp encoded in the id, at 100ns resolution.
func (id ID) Time() time.Time {
	ticks := int64(binary.BigEndian.Uint64(id[:8]))
	return time.Unix(0, ticks*100).UTC()
}

// Parse decodes the hex string form produced by String.
func Parse(s string) (ID, error) {
	if len(s) != EncodedLen {
		return Zero, fmt.Errorf("%w: wrong length %d", ErrInvalidID, len(s))
	}
	var id ID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Zero, fmt.Errorf("%w: %s", ErrInvalidID, s)
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Generator issues strictly monotonic ids for one process.
//
// The watermark is explicit per-generator state rather than a package-level
// variable so tests can run independent generators. Production code shares
// one generator per process; the watermark resets only at process start.
type Generator struct {
	mu   sync.Mutex
	last int64 // last issued timestamp, in 100ns ticks
	node [8]byte
}

// NewGenerator creates a generator with random node bits.
// Two processes get distinct node bits, so ids do not collide across
// processes even when their watermarks issue the same tick.
func NewGenerator() *Generator {
	g := &Generator{}
	u := uuid.New()
	copy(g.node[:], u[:8])
	return g
}

// Next issues an id from the current wall-clock time.
func (g *Generator) Next() ID {
	return g.issue(time.Now())
}

// NextAt issues an id from a historical timestamp, typically a message's
// sent date. Repeated or out-of-order dates still produce strictly
// increasing ids via the watermark.
func (g *Generator) NextAt(sent time.Time) ID {
	return g.issue(sent)
}

func (g *Generator) issue(t time.Time) ID {
	ticks := t.UnixNano() / 100

	g.mu.Lock()
	if ticks <= g.last {
		ticks = g.last + 1
	}
	g.last = ticks
	g.mu.Unlock()

	var id ID
	binary.BigEndian.PutUint64(id[:8], uint64(ticks))
	copy(id[8:], g.node[:])
	return id
}
