package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"matchbook/domain/orderbook"
	entrywal "matchbook/infra/wal/entry"
	"matchbook/snapshot"
)

/*
Replay rebuilds the book from the snapshot at snapshotPath (optional)
and the journal records written after it.

IMPORTANT:
- This MUST run before accepting commands
- The outbox and archive are not replayed; regenerated trades are
  offered to them again and skipped by tx id
- Notifiers see nothing; gauges are refreshed once at the end
*/
func (s *OrderService) Replay(ctx context.Context, snapshotPath string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaying = true
	defer func() { s.replaying = false }()

	var from uint64
	if snapshotPath != "" {
		snap, err := snapshot.Load(snapshotPath)
		if err != nil {
			return 0, err
		}
		if snap != nil {
			if err := snap.Apply(s.book); err != nil {
				return 0, err
			}
			if st, ok := s.ids.(idState); ok {
				st.Restore(snap.IDSeq)
			}
			from = snap.JournalSeq
			s.log.Info("snapshot loaded",
				zap.Uint64("journal_seq", from),
				zap.Int("orders", len(snap.Orders)),
				zap.Time("created", snap.Created))
		}
	}

	last := from
	if s.journal != nil {
		applied := 0
		lastSeq, err := entrywal.Replay(s.journal.Dir(), func(rec *entrywal.Record) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if rec.Seq <= from {
				return nil
			}
			if err := s.replayRecord(ctx, rec); err != nil {
				return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
			}
			applied++
			return nil
		})
		if err != nil {
			return lastSeq, err
		}
		last = max(lastSeq, from)
		s.log.Info("journal replayed", zap.Int("records", applied), zap.Uint64("last_seq", last))
	}

	// Resume sequencing AFTER replay
	s.seq.Reset(last)
	s.observe()
	return last, nil
}

// replayRecord applies one journalled command. Commands the book rejected
// the first time are rejected again the same way and skipped.
func (s *OrderService) replayRecord(ctx context.Context, rec *entrywal.Record) error {
	cmd, err := decodeCommand(rec.Data)
	if err != nil {
		return err
	}

	switch rec.Type {
	case entrywal.RecordPlace:
		_, err = s.applyPlace(ctx, rec.At(), cmd)
	case entrywal.RecordCancel:
		_, err = s.applyCancel(ctx, rec.At(), cmd)
	case entrywal.RecordModify:
		_, err = s.applyModify(ctx, rec.At(), cmd)
	default:
		return fmt.Errorf("unknown record type %d", rec.Type)
	}
	if orderbook.IsValidation(err) {
		return nil
	}
	return err
}
