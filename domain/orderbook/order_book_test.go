package orderbook

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIDs struct {
	orders int
	txs    int
	now    time.Time
}

func newStubIDs() *stubIDs {
	return &stubIDs{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (s *stubIDs) NextOrderID() string {
	s.orders++
	return fmt.Sprintf("o-%d", s.orders)
}

func (s *stubIDs) NextTxID() string {
	s.txs++
	return fmt.Sprintf("t-%d", s.txs)
}

func (s *stubIDs) Now() time.Time {
	s.now = s.now.Add(time.Millisecond)
	return s.now
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limit(side Side, qty, price string) Submission {
	return Submission{Kind: Limit, Side: side, Quantity: d(qty), Price: d(price)}
}

func market(side Side, qty string) Submission {
	return Submission{Kind: Market, Side: side, Quantity: d(qty)}
}

func place(t *testing.T, b *OrderBook, s Submission) ProcessResult {
	t.Helper()
	res, err := b.ProcessOrder(s)
	require.NoError(t, err)
	return res
}

func prices(levels []LevelSnapshot) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = l.Price.String()
	}
	return out
}

// seeded builds bids {95, 98} and asks {102, 105}, 2 units each.
func seeded(t *testing.T) *OrderBook {
	t.Helper()
	b := New(newStubIDs())
	place(t, b, limit(Ask, "2", "105"))
	place(t, b, limit(Bid, "2", "95"))
	place(t, b, limit(Ask, "2", "102"))
	place(t, b, limit(Bid, "2", "98"))
	return b
}

func TestRestingOrdersDoNotMatch(t *testing.T) {
	b := seeded(t)

	snap := b.Snapshot()
	assert.Equal(t, []string{"95", "98"}, prices(snap.Bids))
	assert.Equal(t, []string{"102", "105"}, prices(snap.Asks))
	assert.Empty(t, b.Tape())

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, "98", bid.String())
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, "102", ask.String())
	worst, _ := b.WorstAsk()
	assert.Equal(t, "105", worst.String())
	worst, _ = b.WorstBid()
	assert.Equal(t, "95", worst.String())
}

func TestLimitFullyFillsAtBestAsk(t *testing.T) {
	b := seeded(t)

	res := place(t, b, limit(Bid, "2", "102"))
	require.Len(t, res.Trades, 1)
	assert.Nil(t, res.Resting)
	assert.True(t, res.Trades[0].Price.Equal(d("102")))
	assert.True(t, res.Trades[0].Quantity.Equal(d("2")))
	assert.Equal(t, []string{"105"}, prices(b.Snapshot().Asks))
}

func TestLimitSweepsLevelsAndRestsRemainder(t *testing.T) {
	b := seeded(t)
	ids := b.ids.(*stubIDs)

	res := place(t, b, limit(Bid, "6", "120"))
	takerID := fmt.Sprintf("o-%d", ids.orders-1)

	require.Len(t, res.Trades, 2)
	assert.True(t, res.Trades[0].Price.Equal(d("102")))
	assert.True(t, res.Trades[1].Price.Equal(d("105")))
	for _, tx := range res.Trades {
		assert.True(t, tx.Quantity.Equal(d("2")))
		assert.Equal(t, takerID, tx.Taker.OrderID)
		assert.Equal(t, Ask, tx.Maker.Side)
	}

	require.NotNil(t, res.Resting)
	assert.NotEqual(t, takerID, res.Resting.ID, "remainder gets a fresh id")
	assert.True(t, res.Resting.Quantity.Equal(d("2")))
	assert.True(t, res.Resting.Price.Equal(d("120")))
	assert.Empty(t, b.Snapshot().Asks)
	assert.Equal(t, 0, b.Asks.Depth())
	assert.True(t, b.VolumeAtPrice(Bid, d("120")).Equal(d("2")))
}

func TestUntouchedLimitKeepsItsID(t *testing.T) {
	b := New(newStubIDs())
	res := place(t, b, limit(Bid, "1", "10"))
	require.NotNil(t, res.Resting)
	assert.Equal(t, "o-1", res.Resting.ID)
}

func TestDecimalPartialFill(t *testing.T) {
	b := New(newStubIDs())
	place(t, b, limit(Ask, "2.83475", "102.42"))

	res := place(t, b, limit(Bid, "0.57216", "103.01"))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "0.57216", res.Trades[0].Quantity.String())
	assert.Equal(t, "102.42", res.Trades[0].Price.String())
	assert.Nil(t, res.Resting)

	assert.Equal(t, "2.26259", b.VolumeAtPrice(Ask, d("102.42")).String())
	assert.Equal(t, "2.26259", b.Asks.Volume().String())
	head := b.Asks.PriceLevel(d("102.42")).Head()
	assert.Equal(t, "o-1", head.ID, "partial fill keeps the maker in place")
}

func TestMarketOrderReportsUnfilled(t *testing.T) {
	b := seeded(t)

	res := place(t, b, market(Bid, "5"))
	require.Len(t, res.Trades, 2)
	assert.Nil(t, res.Resting)
	assert.Equal(t, "1", res.Unfilled.String())
	assert.Empty(t, b.Snapshot().Asks)
	assert.Equal(t, []string{"95", "98"}, prices(b.Snapshot().Bids))
}

func TestMarketOrderOnEmptySide(t *testing.T) {
	b := New(newStubIDs())
	res := place(t, b, market(Ask, "3"))
	assert.Empty(t, res.Trades)
	assert.Equal(t, "3", res.Unfilled.String())
	assert.Equal(t, 0, b.Bids.Len()+b.Asks.Len())
}

func TestTimePriorityWithinLevel(t *testing.T) {
	b := New(newStubIDs())
	place(t, b, limit(Ask, "1", "50"))
	place(t, b, limit(Ask, "1", "50"))
	place(t, b, limit(Ask, "1", "50"))

	res := place(t, b, limit(Bid, "2", "50"))
	require.Len(t, res.Trades, 2)
	assert.Equal(t, "o-1", res.Trades[0].Maker.OrderID)
	assert.Equal(t, "o-2", res.Trades[1].Maker.OrderID)
	assert.Equal(t, "o-3", b.Asks.BestPriceLevel().Head().ID)
}

func TestMakerPriceGovernsAskTaker(t *testing.T) {
	b := New(newStubIDs())
	place(t, b, limit(Bid, "1", "101"))

	res := place(t, b, limit(Ask, "1", "90"))
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "101", res.Trades[0].Price.String())
	assert.Equal(t, Bid, res.Trades[0].Maker.Side)
	assert.Equal(t, Ask, res.Trades[0].Taker.Side)
}

func TestProcessOrderValidation(t *testing.T) {
	cases := []struct {
		name  string
		sub   Submission
		field string
		err   error
	}{
		{"zero quantity", limit(Bid, "0", "10"), "quantity", ErrInvalidQuantity},
		{"negative quantity", limit(Bid, "-1", "10"), "quantity", ErrInvalidQuantity},
		{"bad side", Submission{Kind: Limit, Quantity: d("1"), Price: d("1")}, "side", ErrInvalidSide},
		{"bad kind", Submission{Side: Bid, Quantity: d("1"), Price: d("1")}, "type", ErrInvalidOrderKind},
		{"limit without price", limit(Ask, "1", "0"), "price", ErrInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New(newStubIDs())
			_, err := b.ProcessOrder(tc.sub)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.ErrorIs(t, err, tc.err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, 0, b.ids.(*stubIDs).orders, "rejected orders consume no id")
		})
	}
}

func TestMarketOrderIgnoresPrice(t *testing.T) {
	b := seeded(t)
	res := place(t, b, Submission{Kind: Market, Side: Ask, Quantity: d("1"), Price: d("1000")})
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "98", res.Trades[0].Price.String())
}

func TestTakerPartyCarriesOnlyIdentity(t *testing.T) {
	b := New(newStubIDs())
	place(t, b, limit(Ask, "2", "102"))

	res := place(t, b, limit(Bid, "2", "120"))
	require.Len(t, res.Trades, 1)
	tx := res.Trades[0]
	assert.Equal(t, "102", tx.Price.String())
	assert.Equal(t, "102", tx.Maker.Price.String())
	assert.Equal(t, "2", tx.Maker.Quantity.String())
	assert.Equal(t, "o-2", tx.Taker.OrderID)
	assert.Equal(t, Bid, tx.Taker.Side)
	assert.True(t, tx.Taker.Price.IsZero())
	assert.True(t, tx.Taker.Quantity.IsZero())

	raw, err := json.Marshal(tx.Taker)
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":"o-2","side":"bid"}`, string(raw))
}

func TestCancelOrder(t *testing.T) {
	b := seeded(t)
	id := b.Bids.BestPriceLevel().Head().ID

	ok, err := b.CancelOrder(Bid, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"95"}, prices(b.Snapshot().Bids))

	ok, err = b.CancelOrder(Bid, id)
	require.NoError(t, err)
	assert.False(t, ok, "second cancel is a no-op")

	ok, err = b.CancelOrder(Ask, "o-4")
	require.NoError(t, err)
	assert.False(t, ok, "id lives on the other side")

	_, err = b.CancelOrder(Side(9), id)
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestModifyOrder(t *testing.T) {
	t.Run("quantity increase loses priority", func(t *testing.T) {
		b := New(newStubIDs())
		place(t, b, limit(Bid, "1", "10"))
		place(t, b, limit(Bid, "1", "10"))

		ok, err := b.ModifyOrder("o-1", Quote{Side: Bid, Quantity: d("3"), Price: d("10")})
		require.NoError(t, err)
		assert.True(t, ok)

		l := b.Bids.PriceLevel(d("10"))
		assert.Equal(t, "o-2", l.Head().ID)
		assert.Equal(t, "o-1", l.Tail().ID)
		assert.Equal(t, "4", l.Volume().String())
		assert.Equal(t, "4", b.Bids.Volume().String())
	})

	t.Run("quantity decrease keeps priority", func(t *testing.T) {
		b := New(newStubIDs())
		place(t, b, limit(Bid, "5", "10"))
		place(t, b, limit(Bid, "1", "10"))

		_, err := b.ModifyOrder("o-1", Quote{Side: Bid, Quantity: d("2")})
		require.NoError(t, err)
		assert.Equal(t, "o-1", b.Bids.PriceLevel(d("10")).Head().ID)
		assert.Equal(t, "3", b.Bids.Volume().String())
	})

	t.Run("price change requeues", func(t *testing.T) {
		b := New(newStubIDs())
		place(t, b, limit(Ask, "1", "20"))
		place(t, b, limit(Ask, "1", "21"))

		_, err := b.ModifyOrder("o-1", Quote{Side: Ask, Quantity: d("1"), Price: d("21")})
		require.NoError(t, err)
		assert.False(t, b.Asks.PriceExists(d("20")))
		l := b.Asks.PriceLevel(d("21"))
		assert.Equal(t, 2, l.Len())
		assert.Equal(t, "o-1", l.Tail().ID)
		q, ok := b.Order("o-1")
		require.True(t, ok)
		assert.Equal(t, Limit, q.Kind)
	})

	t.Run("crossing price rejected", func(t *testing.T) {
		b := seeded(t)
		before := b.Snapshot()
		_, err := b.ModifyOrder("o-4", Quote{Side: Bid, Quantity: d("2"), Price: d("103")})
		assert.ErrorIs(t, err, ErrWouldCross)
		assert.Equal(t, before, b.Snapshot())
	})

	t.Run("unknown id ignored", func(t *testing.T) {
		b := seeded(t)
		ok, err := b.ModifyOrder("nope", Quote{Side: Bid, Quantity: d("2"), Price: d("90")})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("non-positive quantity rejected", func(t *testing.T) {
		b := seeded(t)
		_, err := b.ModifyOrder("o-2", Quote{Side: Bid, Quantity: d("0")})
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	})
}

func TestNotifierSeesEveryMutation(t *testing.T) {
	var got []EventType
	b := New(newStubIDs(), WithNotifier(NotifierFunc(func(ev Event) {
		got = append(got, ev.Type)
	})))

	place(t, b, limit(Ask, "1", "10"))
	place(t, b, limit(Bid, "3", "10"))

	assert.Equal(t, []EventType{
		EventPriceNew, EventOrderNew,
		EventPriceRemove, EventOrderRemove, EventTransactionNew,
		EventPriceNew, EventOrderNew,
	}, got)
}

func TestTradeEventCarriesCopy(t *testing.T) {
	var trade *TransactionRecord
	b := New(newStubIDs(), WithNotifier(NotifierFunc(func(ev Event) {
		if ev.Type == EventTransactionNew {
			trade = ev.Trade
		}
	})))
	place(t, b, limit(Ask, "1", "10"))
	place(t, b, limit(Bid, "1", "10"))

	require.NotNil(t, trade)
	trade.Quantity = d("99")
	assert.Equal(t, "1", b.Tape()[0].Quantity.String())
}

func TestReentrantMutationRejected(t *testing.T) {
	var b *OrderBook
	var inner error
	b = New(newStubIDs(), WithNotifier(NotifierFunc(func(ev Event) {
		if ev.Type == EventOrderNew {
			_, inner = b.ProcessOrder(limit(Bid, "1", "1"))
		}
	})))

	place(t, b, limit(Bid, "1", "5"))
	assert.ErrorIs(t, inner, ErrReentrantMutation)
	assert.Equal(t, 1, b.Bids.Len())

	// the guard is released once the outer call returns
	place(t, b, limit(Bid, "1", "6"))
	assert.Equal(t, 2, b.Bids.Len())
}

func TestTapeLimit(t *testing.T) {
	b := New(newStubIDs(), WithTapeLimit(3))
	for i := 0; i < 5; i++ {
		place(t, b, limit(Ask, "1", "10"))
		place(t, b, limit(Bid, "1", "10"))
	}
	tape := b.Tape()
	require.Len(t, tape, 3)
	assert.Equal(t, "t-3", tape[0].TxID)
	assert.Equal(t, "t-5", tape[2].TxID)
}

func TestStringShowsRecentTrades(t *testing.T) {
	b := New(newStubIDs())
	for i := 0; i < 12; i++ {
		place(t, b, limit(Ask, "1", "10"))
		place(t, b, limit(Bid, "1", "10"))
	}
	place(t, b, limit(Ask, "2", "11"))
	place(t, b, limit(Bid, "1", "9"))

	out := b.String()
	assert.Contains(t, out, "2 @ 11")
	assert.Contains(t, out, "1 @ 9")
	assert.Contains(t, out, "t-12 ")
	assert.Contains(t, out, "t-3 ")
	assert.NotContains(t, out, "t-2 ")
	assert.Less(t, strings.Index(out, "t-12 "), strings.Index(out, "t-11 "))
}

func TestRestoreOrderRebuildsQueues(t *testing.T) {
	src := seeded(t)
	place(t, src, limit(Bid, "1", "98"))

	dst := New(newStubIDs())
	for _, q := range src.Quotes() {
		require.NoError(t, dst.RestoreOrder(q))
	}

	assert.Equal(t, src.Snapshot(), dst.Snapshot())
	assert.Equal(t, src.Quotes(), dst.Quotes())
	assert.Empty(t, dst.Tape())

	err := dst.RestoreOrder(Quote{ID: "x", Side: Bid, Quantity: d("1")})
	assert.ErrorIs(t, err, ErrInvalidPrice)
}
