// Package id generates record identifiers for the ledger tables.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out monotonic ULIDs. IDs created within the same
// millisecond still sort in creation order, which the trade replay relies
// on as a tiebreaker when two trades share a createdAt timestamp.
type Generator struct {
	mu   sync.Mutex
	now  func() time.Time
	mono io.Reader
}

// NewGenerator returns a Generator seeded from crypto/rand. A nil clock
// means time.Now.
func NewGenerator(now func() time.Time) *Generator {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{
		now:  now,
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// New returns the next ULID string.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now().UTC()), g.mono)
	if err != nil {
		// Only possible if the clock goes backwards past the entropy space.
		panic(err)
	}
	return id.String()
}

var std = NewGenerator(nil)

// New returns a ULID string from the process-wide generator.
func New() string {
	return std.New()
}
