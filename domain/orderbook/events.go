package orderbook

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventOrderNew       EventType = "order:new"
	EventOrderUpdate    EventType = "order:update"
	EventOrderRemove    EventType = "order:remove"
	EventPriceNew       EventType = "price:new"
	EventPriceRemove    EventType = "price:remove"
	EventTransactionNew EventType = "transaction:new"
)

// Event is a value copy of what changed. Handlers never see live book
// structures, so they cannot corrupt links or aggregates through it.
type Event struct {
	Type     EventType          `json:"type"`
	Side     Side               `json:"side"`
	OrderID  string             `json:"orderId,omitempty"`
	Price    decimal.Decimal    `json:"price"`
	Quantity decimal.Decimal    `json:"quantity"`
	Time     time.Time          `json:"time"`
	Trade    *TransactionRecord `json:"trade,omitempty"`
}

// Notifier receives book events synchronously during mutation.
type Notifier interface {
	Notify(Event)
}

type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// Fanout delivers each event to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ev Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ev)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

func orderEvent(t EventType, o *Order) Event {
	return Event{
		Type:     t,
		Side:     o.Side,
		OrderID:  o.ID,
		Price:    o.Price,
		Quantity: o.Quantity,
		Time:     o.Time,
	}
}
