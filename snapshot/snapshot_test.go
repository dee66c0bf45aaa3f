package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/orderbook"
)

type ids struct{ n int }

func (i *ids) NextOrderID() string {
	i.n++
	return fmt.Sprintf("o-%d", i.n)
}

func (i *ids) NextTxID() string {
	i.n++
	return fmt.Sprintf("t-%d", i.n)
}

func (i *ids) Now() time.Time { return time.Unix(int64(i.n), 0).UTC() }

func submit(t *testing.T, b *orderbook.OrderBook, side orderbook.Side, qty, price string) {
	t.Helper()
	_, err := b.ProcessOrder(orderbook.Submission{
		Kind:     orderbook.Limit,
		Side:     side,
		Quantity: decimal.RequireFromString(qty),
		Price:    decimal.RequireFromString(price),
	})
	require.NoError(t, err)
}

func TestWriteLoadApply(t *testing.T) {
	src := orderbook.New(&ids{})
	submit(t, src, orderbook.Bid, "1.5", "99.5")
	submit(t, src, orderbook.Bid, "2", "99.5")
	submit(t, src, orderbook.Ask, "0.00001", "101")
	submit(t, src, orderbook.Bid, "3", "98")

	s := Capture(src, 7, 4, time.Unix(100, 0).UTC())
	w := &Writer{Dir: t.TempDir()}
	path, err := w.Write(&s)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(7), loaded.JournalSeq)
	assert.Equal(t, uint64(4), loaded.IDSeq)
	assert.Len(t, loaded.Orders, 4)

	dst := orderbook.New(&ids{})
	require.NoError(t, loaded.Apply(dst))
	assert.Equal(t, src.Quotes(), dst.Quotes())
	assert.Equal(t, src.Snapshot(), dst.Snapshot())
}

func TestWriteReplacesPrevious(t *testing.T) {
	w := &Writer{Dir: t.TempDir()}
	_, err := w.Write(&Snapshot{JournalSeq: 1})
	require.NoError(t, err)
	path, err := w.Write(&Snapshot{JournalSeq: 2})
	require.NoError(t, err)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.JournalSeq)

	entries, err := os.ReadDir(w.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadMissing(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("not gob"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyRejectsBadEntry(t *testing.T) {
	s := &Snapshot{Orders: []OrderEntry{{ID: "x", Side: 1, Kind: 1, Price: "abc", Quantity: "1"}}}
	assert.Error(t, s.Apply(orderbook.New(&ids{})))
}
