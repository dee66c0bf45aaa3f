package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"matchbook/domain/orderbook"
	"matchbook/service"
)

// request is one line on stdin.
//
//	{"op":"place","type":"limit","side":"bid","quantity":"2","price":"102"}
//	{"op":"cancel","side":"ask","id":"o-000000000003"}
//	{"op":"modify","side":"bid","id":"o-000000000002","quantity":"5","price":"96"}
//	{"op":"book"} {"op":"tape"} {"op":"render"}
type request struct {
	Op       string              `json:"op"`
	Type     orderbook.OrderKind `json:"type"`
	Side     orderbook.Side      `json:"side"`
	ID       string              `json:"id"`
	Quantity decimal.Decimal     `json:"quantity"`
	Price    decimal.Decimal     `json:"price"`
}

type response struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

type bookView struct {
	orderbook.BookSnapshot
	BestBid *decimal.Decimal `json:"bestBid,omitempty"`
	BestAsk *decimal.Decimal `json:"bestAsk,omitempty"`
}

// serve answers newline-delimited JSON requests until in is exhausted or
// ctx is done. One reply line is written per request line.
func serve(ctx context.Context, svc *service.OrderService, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	enc := json.NewEncoder(out)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		var resp response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = response{Error: fmt.Sprintf("bad request: %v", err)}
		} else {
			resp = handle(ctx, svc, req)
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}

func handle(ctx context.Context, svc *service.OrderService, req request) response {
	var (
		result any
		err    error
	)
	switch req.Op {
	case "place":
		result, err = svc.PlaceOrder(ctx, orderbook.Submission{
			Kind:     req.Type,
			Side:     req.Side,
			Quantity: req.Quantity,
			Price:    req.Price,
		})
	case "cancel":
		var removed bool
		removed, err = svc.CancelOrder(ctx, req.Side, req.ID)
		result = map[string]bool{"removed": removed}
	case "modify":
		var modified bool
		modified, err = svc.ModifyOrder(ctx, req.ID, orderbook.Quote{
			Side:     req.Side,
			Quantity: req.Quantity,
			Price:    req.Price,
		})
		result = map[string]bool{"modified": modified}
	case "book":
		v := bookView{BookSnapshot: svc.Depth()}
		if p, ok := svc.BestBid(); ok {
			v.BestBid = &p
		}
		if p, ok := svc.BestAsk(); ok {
			v.BestAsk = &p
		}
		result = v
	case "tape":
		result = svc.Tape()
	case "render":
		result = svc.Render()
	default:
		err = fmt.Errorf("unknown op %q", req.Op)
	}

	if err != nil {
		return response{Error: err.Error()}
	}
	return response{OK: true, Result: result}
}
