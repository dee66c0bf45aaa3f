package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing numbers. Both the journal and
// the id source are driven by one, so a restored value reproduces the
// exact numbering of a previous run.
type Sequencer struct {
	last atomic.Uint64
}

// New returns a sequencer whose first Next is start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued value, zero when nothing was issued.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}

// Reset rewinds or advances the sequencer. Only replay and snapshot
// restore call it.
func (s *Sequencer) Reset(v uint64) {
	s.last.Store(v)
}
