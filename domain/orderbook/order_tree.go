package orderbook

import (
	rbt "github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/shopspring/decimal"
)

// OrderTree is one side of the book: a red-black tree of price levels
// plus an id index over every resting order on that side.
//
// A price key is present iff its OrderList is non-empty.
type OrderTree struct {
	side   Side
	levels *rbt.Tree[decimal.Decimal, *OrderList]
	orders map[string]*Order
	volume decimal.Decimal
	notify Notifier
}

func comparePrice(a, b decimal.Decimal) int { return a.Cmp(b) }

// NewOrderTree creates an empty tree for side. For bids the best price is
// the highest key, for asks the lowest.
func NewOrderTree(side Side, n Notifier) *OrderTree {
	if n == nil {
		n = nopNotifier{}
	}
	return &OrderTree{
		side:   side,
		levels: rbt.NewWith[decimal.Decimal, *OrderList](comparePrice),
		orders: make(map[string]*Order),
		notify: n,
	}
}

func (t *OrderTree) Side() Side { return t.side }
func (t *OrderTree) Depth() int { return t.levels.Size() }
func (t *OrderTree) Len() int { return len(t.orders) }
func (t *OrderTree) Volume() decimal.Decimal { return t.volume }

func (t *OrderTree) PriceExists(price decimal.Decimal) bool {
	_, ok := t.levels.Get(price)
	return ok
}

// PriceLevel returns the queue at price, or nil.
func (t *OrderTree) PriceLevel(price decimal.Decimal) *OrderList {
	l, ok := t.levels.Get(price)
	if !ok {
		return nil
	}
	return l
}

func (t *OrderTree) OrderExists(id string) bool {
	_, ok := t.orders[id]
	return ok
}

func (t *OrderTree) Order(id string) *Order {
	return t.orders[id]
}

// MinLevel and MaxLevel are the raw key extremes, independent of side.
func (t *OrderTree) MinLevel() *OrderList {
	n := t.levels.Left()
	if n == nil {
		return nil
	}
	return n.Value
}

func (t *OrderTree) MaxLevel() *OrderList {
	n := t.levels.Right()
	if n == nil {
		return nil
	}
	return n.Value
}

func (t *OrderTree) BestPriceLevel() *OrderList {
	if t.side == Bid {
		return t.MaxLevel()
	}
	return t.MinLevel()
}

func (t *OrderTree) WorstPriceLevel() *OrderList {
	if t.side == Bid {
		return t.MinLevel()
	}
	return t.MaxLevel()
}

func (t *OrderTree) BestPrice() (decimal.Decimal, bool) {
	return levelPrice(t.BestPriceLevel())
}

func (t *OrderTree) WorstPrice() (decimal.Decimal, bool) {
	return levelPrice(t.WorstPriceLevel())
}

func levelPrice(l *OrderList) (decimal.Decimal, bool) {
	if l == nil {
		return decimal.Zero, false
	}
	return l.Price, true
}

// InsertOrder rests q as a new order at the tail of its price level.
// An order already indexed under the same id is removed first.
func (t *OrderTree) InsertOrder(q Quote) *Order {
	if t.OrderExists(q.ID) {
		_, _ = t.RemoveOrderByID(q.ID)
	}
	o := t.insert(q)
	t.notify.Notify(orderEvent(EventOrderNew, o))
	return o
}

// UpdateOrder applies q to the indexed order with the same id. A price
// change requeues the order at the tail of the new level; otherwise the
// quantity rule of Order.UpdateQuantity applies.
func (t *OrderTree) UpdateOrder(q Quote) (*Order, error) {
	o, ok := t.orders[q.ID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !q.Price.Equal(o.Price) {
		if q.Kind == 0 {
			q.Kind = o.Kind
		}
		t.unlink(o)
		o = t.insert(q)
	} else {
		o.UpdateQuantity(q.Quantity, q.Time)
	}
	t.notify.Notify(orderEvent(EventOrderUpdate, o))
	return o, nil
}

// RemoveOrderByID unlinks and unindexes the order. Unknown ids are a
// consistency error.
func (t *OrderTree) RemoveOrderByID(id string) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	t.unlink(o)
	t.notify.Notify(orderEvent(EventOrderRemove, o))
	return o, nil
}

// ForEachAscending visits levels from the lowest price up.
func (t *OrderTree) ForEachAscending(fn func(*OrderList) bool) {
	it := t.levels.Iterator()
	for it.Next() {
		if !fn(it.Value()) {
			return
		}
	}
}

func (t *OrderTree) ForEachDescending(fn func(*OrderList) bool) {
	it := t.levels.Iterator()
	it.End()
	for it.Prev() {
		if !fn(it.Value()) {
			return
		}
	}
}

// ForEachBestFirst walks levels from the best price outward.
func (t *OrderTree) ForEachBestFirst(fn func(*OrderList) bool) {
	if t.side == Bid {
		t.ForEachDescending(fn)
		return
	}
	t.ForEachAscending(fn)
}

func (t *OrderTree) insert(q Quote) *Order {
	l := t.PriceLevel(q.Price)
	if l == nil {
		l = t.createPriceLevel(q.Price)
	}
	q.Side = t.side
	o := newOrder(q, l)
	l.Append(o)
	t.orders[o.ID] = o
	return o
}

func (t *OrderTree) unlink(o *Order) {
	l := o.list
	l.Remove(o)
	delete(t.orders, o.ID)
	if l.Empty() {
		t.dropPriceLevel(l.Price)
	}
}

func (t *OrderTree) createPriceLevel(price decimal.Decimal) *OrderList {
	l := newOrderList(price, t)
	t.levels.Put(price, l)
	t.notify.Notify(Event{Type: EventPriceNew, Side: t.side, Price: price})
	return l
}

func (t *OrderTree) dropPriceLevel(price decimal.Decimal) {
	t.levels.Remove(price)
	t.notify.Notify(Event{Type: EventPriceRemove, Side: t.side, Price: price})
}
