package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a resting order. It is linked into exactly one OrderList and
// never rests with a non-positive quantity.
type Order struct {
	ID       string
	Side     Side
	Kind     OrderKind
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Time     time.Time

	next *Order
	prev *Order
	list *OrderList
}

func newOrder(q Quote, list *OrderList) *Order {
	return &Order{
		ID:       q.ID,
		Side:     q.Side,
		Kind:     q.Kind,
		Price:    q.Price,
		Quantity: q.Quantity,
		Time:     q.Time,
		list:     list,
	}
}

// Read-only traversal helpers
func (o *Order) Next() *Order { return o.next }
func (o *Order) Prev() *Order { return o.prev }
func (o *Order) List() *OrderList { return o.list }

// UpdateQuantity sets a new quantity and timestamp. An increase costs the
// order its time priority: it moves to the tail unless it is already there.
// A decrease (e.g. a partial fill) never changes queue position.
func (o *Order) UpdateQuantity(qty decimal.Decimal, ts time.Time) {
	if o.list != nil {
		if qty.GreaterThan(o.Quantity) && o.list.tail != o {
			o.list.MoveToTail(o)
		}
		o.list.adjustVolume(qty.Sub(o.Quantity))
	}
	o.Time = ts
	o.Quantity = qty
}

// Quote returns the order's current state as a Quote.
func (o *Order) Quote() Quote {
	return Quote{
		ID:       o.ID,
		Kind:     o.Kind,
		Side:     o.Side,
		Quantity: o.Quantity,
		Price:    o.Price,
		Time:     o.Time,
	}
}
