package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/domain/orderbook"
)

func setupArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func trade(n int, maker, taker string) orderbook.TransactionRecord {
	price := decimal.RequireFromString("102.42")
	qty := decimal.RequireFromString("0.57216")
	return orderbook.TransactionRecord{
		TxID:     fmt.Sprintf("t-%03d", n),
		Time:     time.Unix(1_700_000_000+int64(n), 0).UTC(),
		Price:    price,
		Quantity: qty,
		Maker:    orderbook.Party{OrderID: maker, Side: orderbook.Ask, Price: price, Quantity: qty},
		Taker:    orderbook.Party{OrderID: taker, Side: orderbook.Bid},
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()

	batch := []orderbook.TransactionRecord{trade(1, "o-1", "o-2"), trade(2, "o-1", "o-3")}
	require.NoError(t, a.Save(ctx, batch))
	require.NoError(t, a.Save(ctx, batch))

	n, err := a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRecentAndByOrder(t *testing.T) {
	a := setupArchive(t)
	ctx := context.Background()
	require.NoError(t, a.Save(ctx, []orderbook.TransactionRecord{
		trade(1, "o-1", "o-2"),
		trade(2, "o-1", "o-3"),
		trade(3, "o-4", "o-5"),
	}))

	recent, err := a.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "t-003", recent[0].TxID)
	assert.Equal(t, "t-002", recent[1].TxID)

	mine, err := a.ByOrder(ctx, "o-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "t-001", mine[0].TxID)

	got := mine[0]
	assert.Equal(t, "0.57216", got.Quantity.String())
	assert.Equal(t, "102.42", got.Price.String())
	assert.Equal(t, orderbook.Ask, got.Maker.Side)
	assert.Equal(t, "o-2", got.Taker.OrderID)
	assert.Equal(t, orderbook.Bid, got.Taker.Side)
	assert.True(t, got.Taker.Price.IsZero())
	assert.True(t, got.Taker.Quantity.IsZero())
	assert.True(t, got.Time.Equal(time.Unix(1_700_000_001, 0)))
}

func TestSaveEmpty(t *testing.T) {
	a := setupArchive(t)
	assert.NoError(t, a.Save(context.Background(), nil))
}
