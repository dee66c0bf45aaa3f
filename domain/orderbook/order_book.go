package orderbook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// tapeRenderLimit is how many trades String prints, most recent first.
const tapeRenderLimit = 10

// OrderBook is single-writer and deterministic: given the same IDSource
// output and the same submissions it produces the same trades.
type OrderBook struct {
	Bids *OrderTree
	Asks *OrderTree

	tape      []TransactionRecord
	tapeLimit int

	ids      IDSource
	notify   Notifier
	mutating bool
}

type Option func(*OrderBook)

// WithNotifier registers the handler that observes every mutation.
func WithNotifier(n Notifier) Option {
	return func(b *OrderBook) { b.notify = n }
}

// WithTapeLimit keeps only the last n trades in memory. Zero keeps all.
func WithTapeLimit(n int) Option {
	return func(b *OrderBook) { b.tapeLimit = n }
}

func New(ids IDSource, opts ...Option) *OrderBook {
	b := &OrderBook{ids: ids, notify: nopNotifier{}}
	for _, opt := range opts {
		opt(b)
	}
	if b.notify == nil {
		b.notify = nopNotifier{}
	}
	b.Bids = NewOrderTree(Bid, b.notify)
	b.Asks = NewOrderTree(Ask, b.notify)
	return b
}

// Tree returns the side's tree, nil for an invalid side.
func (b *OrderBook) Tree(side Side) *OrderTree {
	switch side {
	case Bid:
		return b.Bids
	case Ask:
		return b.Asks
	default:
		return nil
	}
}

// ---- commands ----

// ProcessOrder validates s, assigns it an id and timestamp, matches it
// against the opposite side and rests any limit remainder.
func (b *OrderBook) ProcessOrder(s Submission) (ProcessResult, error) {
	if err := s.Validate(); err != nil {
		return ProcessResult{}, err
	}
	if err := b.enter(); err != nil {
		return ProcessResult{}, err
	}
	defer b.leave()

	q := Quote{
		ID:       b.ids.NextOrderID(),
		Kind:     s.Kind,
		Side:     s.Side,
		Quantity: s.Quantity,
		Price:    s.Price,
		Time:     b.ids.Now(),
	}
	if q.Kind == Market {
		return b.processMarketOrder(q), nil
	}
	return b.processLimitOrder(q), nil
}

// CancelOrder removes the resting order id from side. It reports whether
// anything was removed; an unknown id is not an error.
func (b *OrderBook) CancelOrder(side Side, id string) (bool, error) {
	tree := b.Tree(side)
	if tree == nil {
		return false, &ValidationError{Field: "side", Err: ErrInvalidSide}
	}
	if err := b.enter(); err != nil {
		return false, err
	}
	defer b.leave()

	if !tree.OrderExists(id) {
		return false, nil
	}
	if _, err := tree.RemoveOrderByID(id); err != nil {
		return false, err
	}
	return true, nil
}

// ModifyOrder replaces the price and quantity of a resting order. A zero
// price keeps the current one. Modify never matches, so a price that would
// cross the opposite best is rejected. Unknown ids are ignored.
func (b *OrderBook) ModifyOrder(id string, q Quote) (bool, error) {
	tree := b.Tree(q.Side)
	if tree == nil {
		return false, &ValidationError{Field: "side", Err: ErrInvalidSide}
	}
	if !q.Quantity.IsPositive() {
		return false, &ValidationError{Field: "quantity", Err: ErrInvalidQuantity}
	}
	if q.Price.IsNegative() {
		return false, &ValidationError{Field: "price", Err: ErrInvalidPrice}
	}
	if err := b.enter(); err != nil {
		return false, err
	}
	defer b.leave()

	o := tree.Order(id)
	if o == nil {
		return false, nil
	}
	if q.Price.IsZero() {
		q.Price = o.Price
	}
	if b.crosses(q.Side, q.Price) {
		return false, &ValidationError{Field: "price", Err: ErrWouldCross}
	}

	q.ID = id
	q.Kind = o.Kind
	q.Time = b.ids.Now()
	if _, err := tree.UpdateOrder(q); err != nil {
		return false, err
	}
	return true, nil
}

// RestoreOrder rests q exactly as given, id and timestamp included. It is
// used to rebuild a book from a snapshot and never matches.
func (b *OrderBook) RestoreOrder(q Quote) error {
	tree := b.Tree(q.Side)
	if tree == nil {
		return &ValidationError{Field: "side", Err: ErrInvalidSide}
	}
	if !q.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Err: ErrInvalidQuantity}
	}
	if !q.Price.IsPositive() {
		return &ValidationError{Field: "price", Err: ErrInvalidPrice}
	}
	if q.Kind == 0 {
		q.Kind = Limit
	}
	if err := b.enter(); err != nil {
		return err
	}
	defer b.leave()

	tree.InsertOrder(q)
	return nil
}

// ---- matching ----

func (b *OrderBook) processMarketOrder(q Quote) ProcessResult {
	opp := b.Tree(q.Side.Opposite())
	remaining := q.Quantity
	var trades []TransactionRecord

	for remaining.IsPositive() {
		best := opp.BestPriceLevel()
		if best == nil {
			break
		}
		var filled []TransactionRecord
		filled, remaining = b.processOrderList(opp, best, remaining, q)
		trades = append(trades, filled...)
	}
	return ProcessResult{Trades: trades, Unfilled: remaining}
}

func (b *OrderBook) processLimitOrder(q Quote) ProcessResult {
	opp := b.Tree(q.Side.Opposite())
	remaining := q.Quantity
	var trades []TransactionRecord

	for remaining.IsPositive() {
		best := opp.BestPriceLevel()
		if best == nil || !marketable(q.Side, q.Price, best.Price) {
			break
		}
		var filled []TransactionRecord
		filled, remaining = b.processOrderList(opp, best, remaining, q)
		trades = append(trades, filled...)
	}

	res := ProcessResult{Trades: trades, Unfilled: decimal.Zero}
	if remaining.IsPositive() {
		// a partially matched remainder rests as a new order
		if len(trades) > 0 {
			q.ID = b.ids.NextOrderID()
		}
		q.Quantity = remaining
		rested := b.Tree(q.Side).InsertOrder(q).Quote()
		res.Resting = &rested
	}
	return res
}

// processOrderList consumes makers from the head of list until either the
// level or the taker quantity runs out. Every trade prints at the maker's
// price.
func (b *OrderBook) processOrderList(tree *OrderTree, list *OrderList, remaining decimal.Decimal, taker Quote) ([]TransactionRecord, decimal.Decimal) {
	var trades []TransactionRecord

	for list.Len() > 0 && remaining.IsPositive() {
		head := list.Head()
		maker := Party{OrderID: head.ID, Side: head.Side, Price: head.Price}

		var traded decimal.Decimal
		switch head.Quantity.Cmp(remaining) {
		case 1:
			traded = remaining
			head.UpdateQuantity(head.Quantity.Sub(remaining), head.Time)
			remaining = decimal.Zero
		case 0:
			traded = remaining
			remaining = decimal.Zero
			_, _ = tree.RemoveOrderByID(head.ID)
		default:
			traded = head.Quantity
			remaining = remaining.Sub(traded)
			_, _ = tree.RemoveOrderByID(head.ID)
		}
		maker.Quantity = traded

		tx := TransactionRecord{
			TxID:     b.ids.NextTxID(),
			Time:     b.ids.Now(),
			Price:    maker.Price,
			Quantity: traded,
			Maker:    maker,
			Taker:    Party{OrderID: taker.ID, Side: taker.Side},
		}
		b.record(tx)
		trades = append(trades, tx)
	}
	return trades, remaining
}

func (b *OrderBook) record(tx TransactionRecord) {
	b.tape = append(b.tape, tx)
	if b.tapeLimit > 0 && len(b.tape) > b.tapeLimit {
		n := copy(b.tape, b.tape[len(b.tape)-b.tapeLimit:])
		b.tape = b.tape[:n]
	}
	trade := tx
	b.notify.Notify(Event{
		Type:     EventTransactionNew,
		Side:     tx.Taker.Side,
		OrderID:  tx.Taker.OrderID,
		Price:    tx.Price,
		Quantity: tx.Quantity,
		Time:     tx.Time,
		Trade:    &trade,
	})
}

// marketable reports whether a limit at price on side trades against a
// resting level at best.
func marketable(side Side, price, best decimal.Decimal) bool {
	if side == Bid {
		return best.LessThanOrEqual(price)
	}
	return best.GreaterThanOrEqual(price)
}

func (b *OrderBook) crosses(side Side, price decimal.Decimal) bool {
	best, ok := b.Tree(side.Opposite()).BestPrice()
	if !ok {
		return false
	}
	return marketable(side, price, best)
}

// ---- reentrancy ----

func (b *OrderBook) enter() error {
	if b.mutating {
		return ErrReentrantMutation
	}
	b.mutating = true
	return nil
}

func (b *OrderBook) leave() { b.mutating = false }

// ---- queries ----

func (b *OrderBook) BestBid() (decimal.Decimal, bool) { return b.Bids.BestPrice() }
func (b *OrderBook) WorstBid() (decimal.Decimal, bool) { return b.Bids.WorstPrice() }
func (b *OrderBook) BestAsk() (decimal.Decimal, bool) { return b.Asks.BestPrice() }
func (b *OrderBook) WorstAsk() (decimal.Decimal, bool) { return b.Asks.WorstPrice() }

// VolumeAtPrice is the resting quantity at price on side, zero when the
// level is absent or the side is invalid.
func (b *OrderBook) VolumeAtPrice(side Side, price decimal.Decimal) decimal.Decimal {
	tree := b.Tree(side)
	if tree == nil {
		return decimal.Zero
	}
	l := tree.PriceLevel(price)
	if l == nil {
		return decimal.Zero
	}
	return l.Volume()
}

// Order looks an id up on both sides.
func (b *OrderBook) Order(id string) (Quote, bool) {
	if o := b.Bids.Order(id); o != nil {
		return o.Quote(), true
	}
	if o := b.Asks.Order(id); o != nil {
		return o.Quote(), true
	}
	return Quote{}, false
}

// Snapshot lists both sides as (price, volume) pairs in ascending price.
func (b *OrderBook) Snapshot() BookSnapshot {
	return BookSnapshot{
		Bids: levels(b.Bids),
		Asks: levels(b.Asks),
	}
}

func levels(t *OrderTree) []LevelSnapshot {
	out := make([]LevelSnapshot, 0, t.Depth())
	t.ForEachAscending(func(l *OrderList) bool {
		out = append(out, LevelSnapshot{Price: l.Price, Volume: l.Volume()})
		return true
	})
	return out
}

// Tape returns a copy of the trade history, oldest first.
func (b *OrderBook) Tape() []TransactionRecord {
	out := make([]TransactionRecord, len(b.tape))
	copy(out, b.tape)
	return out
}

// Quotes returns every resting order, bids best first then asks best first,
// each level oldest first. Replaying them through RestoreOrder in this
// order rebuilds the same queues.
func (b *OrderBook) Quotes() []Quote {
	out := make([]Quote, 0, b.Bids.Len()+b.Asks.Len())
	collect := func(l *OrderList) bool {
		for _, o := range l.Orders() {
			out = append(out, o.Quote())
		}
		return true
	}
	b.Bids.ForEachBestFirst(collect)
	b.Asks.ForEachBestFirst(collect)
	return out
}

// ---- rendering ----

func (b *OrderBook) String() string {
	var sb strings.Builder

	sb.WriteString("------ Asks ------\n")
	b.Asks.ForEachDescending(func(l *OrderList) bool {
		fmt.Fprintf(&sb, "%s @ %s\n", l.Volume(), l.Price)
		return true
	})

	sb.WriteString("------ Bids ------\n")
	b.Bids.ForEachDescending(func(l *OrderList) bool {
		fmt.Fprintf(&sb, "%s @ %s\n", l.Volume(), l.Price)
		return true
	})

	sb.WriteString("------ Trades ------\n")
	for i, n := len(b.tape)-1, 0; i >= 0 && n < tapeRenderLimit; i, n = i-1, n+1 {
		tx := b.tape[i]
		fmt.Fprintf(&sb, "%s %s @ %s (%s <- %s)\n",
			tx.TxID, tx.Quantity, tx.Price, tx.Maker.OrderID, tx.Taker.OrderID)
	}
	return sb.String()
}
