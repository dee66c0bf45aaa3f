package orderbook

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderList is the FIFO queue of orders resting at one price on one side.
type OrderList struct {
	Price decimal.Decimal

	head   *Order
	tail   *Order
	length int
	volume decimal.Decimal

	tree *OrderTree
}

func newOrderList(price decimal.Decimal, tree *OrderTree) *OrderList {
	return &OrderList{Price: price, tree: tree}
}

func (l *OrderList) Head() *Order { return l.head }
func (l *OrderList) Tail() *Order { return l.tail }
func (l *OrderList) Len() int { return l.length }
func (l *OrderList) Volume() decimal.Decimal { return l.volume }
func (l *OrderList) Empty() bool { return l.length == 0 }

// Append links o at the tail and takes ownership of it.
func (l *OrderList) Append(o *Order) {
	o.next = nil
	if l.tail == nil {
		o.prev = nil
		l.head = o
	} else {
		o.prev = l.tail
		l.tail.next = o
	}
	l.tail = o
	o.list = l
	l.length++
	l.adjustVolume(o.Quantity)
}

// Remove unlinks o. The caller drops the level when Len reaches zero.
func (l *OrderList) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	o.next = nil
	o.prev = nil
	o.list = nil
	l.length--
	l.adjustVolume(o.Quantity.Neg())
}

// MoveToTail relinks o behind every other order at this price.
func (l *OrderList) MoveToTail(o *Order) {
	if l.tail == o {
		return
	}
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	o.next.prev = o.prev

	o.prev = l.tail
	o.next = nil
	l.tail.next = o
	l.tail = o
}

// Orders returns the resident orders oldest first. Matching always reads
// the live head instead.
func (l *OrderList) Orders() []*Order {
	out := make([]*Order, 0, l.length)
	for o := l.head; o != nil; o = o.next {
		out = append(out, o)
	}
	return out
}

// adjustVolume keeps the level and its tree aggregate in step.
func (l *OrderList) adjustVolume(delta decimal.Decimal) {
	l.volume = l.volume.Add(delta)
	if l.tree != nil {
		l.tree.volume = l.tree.volume.Add(delta)
	}
}

func (l *OrderList) String() string {
	var b strings.Builder
	for o := l.head; o != nil; o = o.next {
		fmt.Fprintf(&b, "Order: [%s] Price - %s, Quantity - %s, Timestamp - %d\n",
			o.ID, o.Price, o.Quantity, o.Time.UnixNano())
	}
	return b.String()
}
