// Package exit is the durable outbox for the trade tape. Every trade is
// written here in the same critical section that produced it and stays
// until the relay has confirmed delivery downstream.
package exit

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("outbox entry not found")

// -------------------- Record --------------------

type ExitRecord struct {
	TxID        string
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const recordHeader = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, recordHeader+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[recordHeader:], r.Payload)
	return buf
}

func decodeRecord(txID string, b []byte) (ExitRecord, error) {
	if len(b) < recordHeader {
		return ExitRecord{}, fmt.Errorf("outbox %s: record length %d", txID, len(b))
	}
	payload := make([]byte, len(b)-recordHeader)
	copy(payload, b[recordHeader:])
	return ExitRecord{
		TxID:        txID,
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

// -------------------- WAL --------------------

type ExitWAL struct {
	db  *pebble.DB
	now func() time.Time
}

func Open(dir string) (*ExitWAL, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &ExitWAL{db: db, now: time.Now}, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// PutNew records a trade for delivery. A tx id that is already present is
// left untouched, so replaying the journal cannot resend or reset trades.
func (w *ExitWAL) PutNew(txID string, payload []byte) error {
	key := keyFor(txID)
	_, closer, err := w.db.Get(key)
	switch {
	case err == nil:
		return closer.Close()
	case !errors.Is(err, pebble.ErrNotFound):
		return err
	}
	rec := ExitRecord{TxID: txID, State: StateNew, Payload: payload}
	return w.db.Set(key, encodeRecord(rec), pebble.Sync)
}

func (w *ExitWAL) MarkSent(txID string) error {
	return w.transition(txID, StateSent, false)
}

func (w *ExitWAL) MarkAcked(txID string) error {
	return w.transition(txID, StateAcked, false)
}

// MarkFailed records a failed delivery attempt and bumps the retry count.
func (w *ExitWAL) MarkFailed(txID string) error {
	return w.transition(txID, StateFailed, true)
}

func (w *ExitWAL) transition(txID string, state ExitState, retry bool) error {
	rec, err := w.Get(txID)
	if err != nil {
		return err
	}
	rec.State = state
	rec.LastAttempt = w.now().UnixNano()
	if retry {
		rec.Retries++
	}
	return w.db.Set(keyFor(txID), encodeRecord(rec), pebble.Sync)
}

// Get returns the current record for a trade.
func (w *ExitWAL) Get(txID string) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(txID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ExitRecord{}, fmt.Errorf("%s: %w", txID, ErrNotFound)
		}
		return ExitRecord{}, err
	}
	defer closer.Close()

	return decodeRecord(txID, val)
}

// DeleteAcked drops every delivered record and reports how many it removed.
func (w *ExitWAL) DeleteAcked() (int, error) {
	batch := w.db.NewBatch()
	defer batch.Close()

	n := 0
	err := w.ScanByState(StateAcked, func(rec ExitRecord) error {
		n++
		return batch.Delete(keyFor(rec.TxID), nil)
	})
	if err != nil || n == 0 {
		return 0, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return n, nil
}

// -------------------- Scan --------------------

// ScanByState visits records in the given state in tx id order.
// The relay uses it to find work.
func (w *ExitWAL) ScanByState(state ExitState, fn func(rec ExitRecord) error) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyUpper),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		val := iter.Value()
		if len(val) == 0 || ExitState(val[0]) != state {
			continue
		}

		rec, err := decodeRecord(parseKey(iter.Key()), val)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// -------------------- Helpers --------------------

const (
	keyPrefix = "tape/"
	keyUpper  = "tape0" // '0' sorts right after '/'
)

func keyFor(txID string) []byte {
	return []byte(keyPrefix + txID)
}

func parseKey(b []byte) string {
	return string(bytes.TrimPrefix(b, []byte(keyPrefix)))
}
