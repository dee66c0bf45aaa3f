// Package orderbook implements the single-instrument limit order book
// and its matching engine. It keeps one price-ordered OrderTree per side,
// a FIFO OrderList per price level, and matches crossing orders with
// strict price-time priority, appending every fill to an in-memory tape.
//
// The book is single-writer: callers must serialize all mutating calls
// (see package service). Quantities and prices are exact decimals.
package orderbook
