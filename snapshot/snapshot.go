package snapshot

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
)

const FileName = "snapshot.bin"

type Snapshot struct {
	// JournalSeq is the last journal record reflected in Orders.
	JournalSeq uint64
	// IDSeq is where the id sequencer stood.
	IDSeq   uint64
	Created time.Time
	Orders  []OrderEntry
}

// OrderEntry is one resting order. Entries are stored bids then asks,
// best level first and oldest first within a level.
type OrderEntry struct {
	ID       string
	Side     uint8
	Kind     uint8
	Price    string
	Quantity string
	Time     time.Time
}

// Capture copies the resting orders out of book.
func Capture(book *orderbook.OrderBook, journalSeq, idSeq uint64, created time.Time) Snapshot {
	quotes := book.Quotes()
	s := Snapshot{
		JournalSeq: journalSeq,
		IDSeq:      idSeq,
		Created:    created,
		Orders:     make([]OrderEntry, 0, len(quotes)),
	}
	for _, q := range quotes {
		s.Orders = append(s.Orders, OrderEntry{
			ID:       q.ID,
			Side:     uint8(q.Side),
			Kind:     uint8(q.Kind),
			Price:    q.Price.String(),
			Quantity: q.Quantity.String(),
			Time:     q.Time,
		})
	}
	return s
}

// Apply rests every entry on book, which is expected to be empty.
func (s *Snapshot) Apply(book *orderbook.OrderBook) error {
	for _, e := range s.Orders {
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			return fmt.Errorf("snapshot order %s price: %w", e.ID, err)
		}
		qty, err := decimal.NewFromString(e.Quantity)
		if err != nil {
			return fmt.Errorf("snapshot order %s quantity: %w", e.ID, err)
		}
		err = book.RestoreOrder(orderbook.Quote{
			ID:       e.ID,
			Side:     orderbook.Side(e.Side),
			Kind:     orderbook.OrderKind(e.Kind),
			Price:    price,
			Quantity: qty,
			Time:     e.Time,
		})
		if err != nil {
			return fmt.Errorf("snapshot order %s: %w", e.ID, err)
		}
	}
	return nil
}
