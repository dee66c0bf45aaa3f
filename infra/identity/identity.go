// Package identity supplies the order ids, trade ids and timestamps the
// book consumes. The book never generates any of them itself. Both id
// sources can be rewound, which journal replay depends on.
package identity

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchbook/infra/sequence"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ManualClock returns whatever time was last set. The service pins it to
// the journal record time before applying a command, which makes replay
// reproduce the journalled timestamps.
type ManualClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{t: t}
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Sequential numbers orders and trades from one sequencer, so a single
// value captures the whole id state.
type Sequential struct {
	seq   *sequence.Sequencer
	clock Clock
}

func NewSequential(seq *sequence.Sequencer, clock Clock) *Sequential {
	if seq == nil {
		seq = sequence.New(0)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Sequential{seq: seq, clock: clock}
}

func (s *Sequential) NextOrderID() string { return fmt.Sprintf("o-%012d", s.seq.Next()) }
func (s *Sequential) NextTxID() string { return fmt.Sprintf("t-%012d", s.seq.Next()) }
func (s *Sequential) Now() time.Time { return s.clock.Now() }

// Current is the last number handed out.
func (s *Sequential) Current() uint64 { return s.seq.Current() }

// Restore continues numbering after n.
func (s *Sequential) Restore(n uint64) { s.seq.Reset(n) }

// Random issues uuid identifiers derived from a seed: each id is a
// name-based uuid over the seed and a counter. Reseeding with the same
// value reproduces the same ids, so the seed is all a journal needs to
// replay them.
type Random struct {
	clock Clock
	seed  uuid.UUID
	n     uint64
}

func NewRandom(clock Clock) *Random {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Random{clock: clock, seed: uuid.New()}
}

func (r *Random) NextOrderID() string { return r.next() }
func (r *Random) NextTxID() string { return r.next() }
func (r *Random) Now() time.Time { return r.clock.Now() }

// NewSeed draws a fresh random seed.
func (r *Random) NewSeed() uuid.UUID { return uuid.New() }

// Reseed restarts the id stream from seed.
func (r *Random) Reseed(seed uuid.UUID) {
	r.seed = seed
	r.n = 0
}

func (r *Random) next() string {
	r.n++
	var name [8]byte
	binary.BigEndian.PutUint64(name[:], r.n)
	return uuid.NewSHA1(r.seed, name[:]).String()
}
