package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"matchbook/snapshot"
)

// TakeSnapshot writes the resting book to dir, then drops journal
// segments and delivered outbox rows the snapshot makes redundant. It
// holds the command lock throughout, so the snapshot matches JournalSeq
// exactly.
func (s *OrderService) TakeSnapshot(dir string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idSeq uint64
	if st, ok := s.ids.(idState); ok {
		idSeq = st.Current()
	}
	seq := s.seq.Current()
	snap := snapshot.Capture(s.book, seq, idSeq, s.wall.Now())

	w := &snapshot.Writer{Dir: dir}
	path, err := w.Write(&snap)
	if err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	// Truncate ENTRY WAL after snapshot
	if s.journal != nil {
		if err := s.journal.TruncateBefore(seq); err != nil {
			s.log.Warn("journal truncate", zap.Uint64("seq", seq), zap.Error(err))
		}
	}
	// GC EXIT WAL (acked only); every acked trade comes from a command at
	// or below seq
	if s.outbox != nil {
		if n, err := s.outbox.DeleteAcked(); err != nil {
			s.log.Warn("outbox cleanup", zap.Error(err))
		} else if n > 0 {
			s.log.Debug("outbox cleanup", zap.Int("deleted", n))
		}
	}
	return path, nil
}

// SnapshotPath is where TakeSnapshot writes inside dir.
func SnapshotPath(dir string) string {
	return filepath.Join(dir, snapshot.FileName)
}

func (s *OrderService) StartSnapshotJob(ctx context.Context, dir string, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				path, err := s.TakeSnapshot(dir)
				if err != nil {
					s.log.Error("snapshot", zap.Error(err))
					continue
				}
				s.log.Debug("snapshot written", zap.String("path", path), zap.Uint64("journal_seq", s.JournalSeq()))
			}
		}
	}()
}
