package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequencerMonotonic(t *testing.T) {
	s := New(0)
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
	assert.Equal(t, uint64(2), s.Current())

	s.Reset(40)
	assert.Equal(t, uint64(41), s.Next())
}

func TestSequencerConcurrentNextIsUnique(t *testing.T) {
	s := New(0)
	seen := make(chan uint64, 800)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				seen <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	uniq := make(map[uint64]struct{})
	for v := range seen {
		uniq[v] = struct{}{}
	}
	assert.Len(t, uniq, 800)
	assert.Equal(t, uint64(800), s.Current())
}
