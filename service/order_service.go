package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	"matchbook/infra/identity"
	"matchbook/infra/metrics"
	"matchbook/infra/sequence"
	entrywal "matchbook/infra/wal/entry"
)

// Outbox receives every trade for downstream delivery.
type Outbox interface {
	PutNew(txID string, payload []byte) error
	DeleteAcked() (int, error)
}

// Archive keeps a queryable trade history.
type Archive interface {
	Save(ctx context.Context, trades []orderbook.TransactionRecord) error
}

type Deps struct {
	Journal *entrywal.WAL
	Outbox  Outbox
	Archive Archive
	Metrics *metrics.Collector
	// Notifiers observe book events. They run inside the critical section
	// and must not block.
	Notifiers []orderbook.Notifier
	TapeLimit int
	// RandomIDs switches to uuid ids. Each command journals a fresh seed,
	// so replay reproduces the same ids.
	RandomIDs bool
	Clock     identity.Clock
	Log       *zap.Logger
}

// idState is implemented by id sources whose position can be saved and
// restored.
type idState interface {
	Current() uint64
	Restore(uint64)
}

// idSeeder is implemented by id sources that derive their ids from a
// per-command seed.
type idSeeder interface {
	NewSeed() uuid.UUID
	Reseed(uuid.UUID)
}

/*
OrderService is the ONLY write entry point into the book.

Commands run one at a time under mu:
validate -> journal -> pin clock -> apply -> outbox + archive -> metrics.
*/
type OrderService struct {
	mu sync.Mutex

	book    *orderbook.OrderBook
	ids     orderbook.IDSource
	pinned  *identity.ManualClock
	wall    identity.Clock
	journal *entrywal.WAL
	seq     *sequence.Sequencer

	outbox  Outbox
	archive Archive
	metrics *metrics.Collector
	log     *zap.Logger

	// replaying mutes notifiers; guarded by mu
	replaying bool
}

func NewOrderService(d Deps) *OrderService {
	if d.Clock == nil {
		d.Clock = identity.SystemClock{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	pinned := identity.NewManualClock(d.Clock.Now())
	var ids orderbook.IDSource
	if d.RandomIDs {
		ids = identity.NewRandom(pinned)
	} else {
		ids = identity.NewSequential(sequence.New(0), pinned)
	}

	notifiers := append(orderbook.Fanout{}, d.Notifiers...)
	if d.Metrics != nil {
		notifiers = append(notifiers, d.Metrics)
	}

	s := &OrderService{
		ids:     ids,
		pinned:  pinned,
		wall:    d.Clock,
		journal: d.Journal,
		seq:     sequence.New(0),
		outbox:  d.Outbox,
		archive: d.Archive,
		metrics: d.Metrics,
		log:     d.Log.Named("service"),
	}
	s.book = orderbook.New(ids,
		orderbook.WithNotifier(liveEvents{s: s, next: notifiers}),
		orderbook.WithTapeLimit(d.TapeLimit))
	return s
}

// liveEvents forwards book events except while the journal is being
// replayed: those events were already delivered by the run that wrote it.
type liveEvents struct {
	s    *OrderService
	next orderbook.Notifier
}

func (l liveEvents) Notify(ev orderbook.Event) {
	if l.s.replaying {
		return
	}
	l.next.Notify(ev)
}

//
// ──────────────────────────────────────────────────────────
// Commands
// ──────────────────────────────────────────────────────────
//

// PlaceOrder journals and executes a new order.
func (s *OrderService) PlaceOrder(ctx context.Context, sub orderbook.Submission) (orderbook.ProcessResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := sub.Validate(); err != nil {
		s.rejected(err)
		return orderbook.ProcessResult{}, err
	}
	cmd := command{Kind: sub.Kind, Side: sub.Side, Quantity: sub.Quantity, Price: sub.Price}
	at, err := s.record(entrywal.RecordPlace, &cmd)
	if err != nil {
		return orderbook.ProcessResult{}, err
	}
	return s.applyPlace(ctx, at, cmd)
}

// CancelOrder journals and executes a cancel. It reports whether an order
// was removed; cancelling an unknown id succeeds with false.
func (s *OrderService) CancelOrder(ctx context.Context, side orderbook.Side, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !side.Valid() {
		err := &orderbook.ValidationError{Field: "side", Err: orderbook.ErrInvalidSide}
		s.rejected(err)
		return false, err
	}
	cmd := command{Side: side, OrderID: id}
	at, err := s.record(entrywal.RecordCancel, &cmd)
	if err != nil {
		return false, err
	}
	return s.applyCancel(ctx, at, cmd)
}

// ModifyOrder journals and executes a price/quantity change of a resting
// order. A zero price keeps the current one.
func (s *OrderService) ModifyOrder(ctx context.Context, id string, q orderbook.Quote) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var verr error
	switch {
	case !q.Side.Valid():
		verr = &orderbook.ValidationError{Field: "side", Err: orderbook.ErrInvalidSide}
	case !q.Quantity.IsPositive():
		verr = &orderbook.ValidationError{Field: "quantity", Err: orderbook.ErrInvalidQuantity}
	case q.Price.IsNegative():
		verr = &orderbook.ValidationError{Field: "price", Err: orderbook.ErrInvalidPrice}
	}
	if verr != nil {
		s.rejected(verr)
		return false, verr
	}

	cmd := command{Side: q.Side, OrderID: id, Quantity: q.Quantity, Price: q.Price}
	at, err := s.record(entrywal.RecordModify, &cmd)
	if err != nil {
		return false, err
	}
	ok, err := s.applyModify(ctx, at, cmd)
	if err != nil {
		s.rejected(err)
	}
	return ok, err
}

// record stamps cmd with the id position and appends it to the journal.
// Nothing touches the book when this fails.
func (s *OrderService) record(t entrywal.RecordType, cmd *command) (time.Time, error) {
	if st, ok := s.ids.(idState); ok {
		cmd.IDSeq = st.Current()
	}
	if sd, ok := s.ids.(idSeeder); ok {
		seed := sd.NewSeed()
		cmd.IDSeed = seed[:]
	}
	at := s.wall.Now()
	if s.journal == nil {
		return at, nil
	}

	rec := entrywal.NewRecord(t, s.seq.Next(), at, encodeCommand(*cmd))
	if err := s.journal.Append(rec); err != nil {
		s.log.Error("journal append", zap.Stringer("type", t), zap.Uint64("seq", rec.Seq), zap.Error(err))
		return time.Time{}, fmt.Errorf("journal %s: %w", t, err)
	}
	// the journal keeps nanoseconds; use the stored value so replay matches
	return rec.At(), nil
}

//
// ──────────────────────────────────────────────────────────
// Apply (shared by live commands and replay)
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) pin(at time.Time, cmd command) {
	s.pinned.Set(at)
	if st, ok := s.ids.(idState); ok {
		st.Restore(cmd.IDSeq)
	}
	if sd, ok := s.ids.(idSeeder); ok && len(cmd.IDSeed) > 0 {
		if seed, err := uuid.FromBytes(cmd.IDSeed); err == nil {
			sd.Reseed(seed)
		}
	}
}

func (s *OrderService) applyPlace(ctx context.Context, at time.Time, cmd command) (orderbook.ProcessResult, error) {
	s.pin(at, cmd)
	res, err := s.book.ProcessOrder(orderbook.Submission{
		Kind:     cmd.Kind,
		Side:     cmd.Side,
		Quantity: cmd.Quantity,
		Price:    cmd.Price,
	})
	if err != nil {
		return res, err
	}
	s.publishTrades(ctx, res.Trades)
	s.observe()
	return res, nil
}

func (s *OrderService) applyCancel(_ context.Context, at time.Time, cmd command) (bool, error) {
	s.pin(at, cmd)
	ok, err := s.book.CancelOrder(cmd.Side, cmd.OrderID)
	s.observe()
	return ok, err
}

func (s *OrderService) applyModify(_ context.Context, at time.Time, cmd command) (bool, error) {
	s.pin(at, cmd)
	ok, err := s.book.ModifyOrder(cmd.OrderID, orderbook.Quote{
		Side:     cmd.Side,
		Quantity: cmd.Quantity,
		Price:    cmd.Price,
	})
	s.observe()
	return ok, err
}

// publishTrades hands trades to the outbox and archive. Their failures are
// logged, not returned: the journal already holds the command, so replay
// regenerates the trades and both sinks skip ids they have.
func (s *OrderService) publishTrades(ctx context.Context, trades []orderbook.TransactionRecord) {
	if len(trades) == 0 {
		return
	}
	if s.outbox != nil {
		for _, tx := range trades {
			payload, err := json.Marshal(tx)
			if err == nil {
				err = s.outbox.PutNew(tx.TxID, payload)
			}
			if err != nil {
				s.log.Error("outbox put", zap.String("tx_id", tx.TxID), zap.Error(err))
			}
		}
	}
	if s.archive != nil {
		if err := s.archive.Save(ctx, trades); err != nil {
			s.log.Error("archive save", zap.Int("trades", len(trades)), zap.Error(err))
		}
	}
}

func (s *OrderService) observe() {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveBook(s.book)
	s.metrics.JournalSeq(s.seq.Current())
}

func (s *OrderService) rejected(err error) {
	var ve *orderbook.ValidationError
	if s.metrics != nil && errors.As(err, &ve) {
		s.metrics.Rejected(ve.Field)
	}
	s.log.Debug("command rejected", zap.Error(err))
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

func (s *OrderService) BestBid() (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestBid()
}

func (s *OrderService) BestAsk() (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.BestAsk()
}

func (s *OrderService) WorstBid() (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.WorstBid()
}

func (s *OrderService) WorstAsk() (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.WorstAsk()
}

func (s *OrderService) VolumeAtPrice(side orderbook.Side, price decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.VolumeAtPrice(side, price)
}

func (s *OrderService) Order(id string) (orderbook.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Order(id)
}

// Depth returns aggregate volume per level on both sides.
func (s *OrderService) Depth() orderbook.BookSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Snapshot()
}

func (s *OrderService) Tape() []orderbook.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Tape()
}

func (s *OrderService) Render() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.String()
}

// JournalSeq is the last journal sequence applied.
func (s *OrderService) JournalSeq() uint64 {
	return s.seq.Current()
}
