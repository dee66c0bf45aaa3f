// Package service owns the order book and is the only path that mutates
// it. Every command is journalled before it is applied, trades are handed
// to the outbox and archive in the same critical section, and replay
// rebuilds the identical book from a snapshot plus the journal tail.
package service
