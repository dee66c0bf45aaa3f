package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"matchbook/domain/orderbook"
)

// command is the journalled form of every mutation. IDSeq is the id
// sequencer position before the command ran and IDSeed the seed of a
// random id source; replay restores whichever is set so the book hands
// out the same ids again.
type command struct {
	Kind     orderbook.OrderKind
	Side     orderbook.Side
	OrderID  string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	IDSeq    uint64
	IDSeed   []byte
}

// Field numbers of the protobuf wire encoding. Decimals travel as their
// canonical string so no precision is lost.
const (
	fieldKind     protowire.Number = 1
	fieldSide     protowire.Number = 2
	fieldOrderID  protowire.Number = 3
	fieldQuantity protowire.Number = 4
	fieldPrice    protowire.Number = 5
	fieldIDSeq    protowire.Number = 6
	fieldIDSeed   protowire.Number = 7
)

func encodeCommand(c command) []byte {
	var b []byte
	if c.Kind != 0 {
		b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c.Kind))
	}
	b = protowire.AppendTag(b, fieldSide, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Side))
	if c.OrderID != "" {
		b = protowire.AppendTag(b, fieldOrderID, protowire.BytesType)
		b = protowire.AppendString(b, c.OrderID)
	}
	if !c.Quantity.IsZero() {
		b = protowire.AppendTag(b, fieldQuantity, protowire.BytesType)
		b = protowire.AppendString(b, c.Quantity.String())
	}
	if !c.Price.IsZero() {
		b = protowire.AppendTag(b, fieldPrice, protowire.BytesType)
		b = protowire.AppendString(b, c.Price.String())
	}
	b = protowire.AppendTag(b, fieldIDSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, c.IDSeq)
	if len(c.IDSeed) > 0 {
		b = protowire.AppendTag(b, fieldIDSeed, protowire.BytesType)
		b = protowire.AppendBytes(b, c.IDSeed)
	}
	return b
}

func decodeCommand(b []byte) (command, error) {
	var c command
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, fmt.Errorf("command tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldKind || num == fieldSide || num == fieldIDSeq):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return c, fmt.Errorf("command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldKind:
				c.Kind = orderbook.OrderKind(v)
			case fieldSide:
				c.Side = orderbook.Side(v)
			default:
				c.IDSeq = v
			}

		case typ == protowire.BytesType && (num == fieldOrderID || num == fieldQuantity || num == fieldPrice):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return c, fmt.Errorf("command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldOrderID {
				c.OrderID = v
				continue
			}
			d, err := decimal.NewFromString(v)
			if err != nil {
				return c, fmt.Errorf("command field %d: %w", num, err)
			}
			if num == fieldQuantity {
				c.Quantity = d
			} else {
				c.Price = d
			}

		case typ == protowire.BytesType && num == fieldIDSeed:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return c, fmt.Errorf("command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			c.IDSeed = append([]byte(nil), v...)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return c, fmt.Errorf("command field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return c, nil
}
