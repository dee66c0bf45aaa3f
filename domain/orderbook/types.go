package orderbook

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side uint8
type OrderKind uint8

// Zero values are deliberately invalid so an unset field fails validation.
const (
	Bid Side = iota + 1
	Ask
)

const (
	Limit OrderKind = iota + 1
	Market
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

func (s Side) Valid() bool { return s == Bid || s == Ask }

// Opposite returns the side a taker on s trades against.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (k OrderKind) String() string {
	switch k {
	case Limit:
		return "limit"
	case Market:
		return "market"
	default:
		return "unknown"
	}
}

func (k OrderKind) Valid() bool { return k == Limit || k == Market }

// ParseSide maps "bid"/"ask" (any case) to a Side. Unknown input yields
// the invalid zero Side, which ProcessOrder rejects.
func ParseSide(s string) Side {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid", "buy":
		return Bid
	case "ask", "sell":
		return Ask
	default:
		return 0
	}
}

func ParseOrderKind(s string) OrderKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "limit":
		return Limit
	case "market":
		return Market
	default:
		return 0
	}
}

// Submission is an order intent before the engine assigns it an identity.
// Price is ignored for market orders.
type Submission struct {
	Kind     OrderKind       `json:"type"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Quote is a submission that carries an identity and a timestamp.
type Quote struct {
	ID       string          `json:"id"`
	Kind     OrderKind       `json:"type"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
}

// Party is one side of a trade. The maker carries the price and quantity
// it traded; the taker carries only its id and side, since the trade
// prints at the maker's price.
type Party struct {
	OrderID  string          `json:"orderId"`
	Side     Side            `json:"side"`
	Price    decimal.Decimal `json:"price,omitzero"`
	Quantity decimal.Decimal `json:"quantity,omitzero"`
}

// TransactionRecord is an immutable fill on the tape.
type TransactionRecord struct {
	TxID     string          `json:"txId"`
	Time     time.Time       `json:"time"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Maker    Party           `json:"maker"`
	Taker    Party           `json:"taker"`
}

// ProcessResult is what ProcessOrder hands back. Resting is a copy of the
// limit remainder that was inserted, nil when nothing rested. Unfilled is
// the market-order remainder that found no liquidity and was dropped.
type ProcessResult struct {
	Trades   []TransactionRecord `json:"trades"`
	Resting  *Quote              `json:"resting,omitempty"`
	Unfilled decimal.Decimal     `json:"unfilled"`
}

type LevelSnapshot struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// BookSnapshot lists aggregate volume per level, ascending by price on
// both sides.
type BookSnapshot struct {
	Bids []LevelSnapshot `json:"bids"`
	Asks []LevelSnapshot `json:"asks"`
}

// IDSource hands out order identities, trade identities and timestamps.
// The engine never fabricates identifiers itself.
type IDSource interface {
	NextOrderID() string
	NextTxID() string
	Now() time.Time
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText never fails; unknown text decodes to the invalid zero Side
// so validation reports it with the usual error.
func (s *Side) UnmarshalText(b []byte) error {
	*s = ParseSide(string(b))
	return nil
}

func (k OrderKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OrderKind) UnmarshalText(b []byte) error {
	*k = ParseOrderKind(string(b))
	return nil
}
