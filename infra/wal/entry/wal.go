package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
)

const headerSize = 1 + 8 + 8 + 4

// MaxPayload bounds one record's payload. Replay treats a larger length
// field as corruption instead of allocating it.
const MaxPayload = 16 << 20

var (
	ErrClosed = errors.New("journal closed")
	// ErrBroken is returned once a failed write could not be rolled back.
	// The journal accepts no further records.
	ErrBroken = errors.New("journal segment left with a partial frame")
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEveryWrite fsyncs after each record. Without it a crash may lose
	// the tail that the OS had not flushed yet.
	SyncEveryWrite bool
}

// WAL is the append-only command journal. A record is durable before the
// command it describes touches the book.
type WAL struct {
	mu      sync.Mutex
	dir     string
	segSize int64
	sync    bool
	current *segment
	broken  error
}

// Open continues the newest segment in cfg.Dir, creating the directory
// and the first segment when needed.
func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	files, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	index := 0
	if n := len(files); n > 0 {
		if index, err = segmentIndex(files[n-1]); err != nil {
			return nil, fmt.Errorf("journal: bad segment name %q: %w", files[n-1], err)
		}
		// drop a torn tail so new frames follow the last good one
		valid, err := validLength(files[n-1])
		if err != nil {
			return nil, err
		}
		if err := os.Truncate(files[n-1], valid); err != nil {
			return nil, err
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}
	size := cfg.SegmentSize
	if size <= 0 {
		size = 64 << 20
	}
	return &WAL{dir: cfg.Dir, segSize: size, sync: cfg.SyncEveryWrite, current: seg}, nil
}

func encodeFrame(r *Record) []byte {
	payloadLen := uint32(len(r.Data))

	// Frame:
	// [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf := make([]byte, headerSize+payloadLen+4)
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := CRC32(buf[:headerSize+payloadLen])
	binary.BigEndian.PutUint32(buf[headerSize+payloadLen:], crc)
	return buf
}

func (w *WAL) Append(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return ErrClosed
	}
	if w.broken != nil {
		return w.broken
	}
	if len(r.Data) > MaxPayload {
		return fmt.Errorf("journal append seq %d: payload of %d bytes exceeds %d", r.Seq, len(r.Data), MaxPayload)
	}
	if err := w.current.append(encodeFrame(r)); err != nil {
		err = fmt.Errorf("journal append seq %d: %w", r.Seq, err)
		if errors.Is(err, ErrBroken) {
			w.broken = err
		}
		return err
	}
	if w.sync {
		if err := w.current.sync(); err != nil {
			return fmt.Errorf("journal sync: %w", err)
		}
	}
	if w.current.offset >= w.segSize {
		return w.rotate()
	}
	return nil
}

func (w *WAL) rotate() error {
	if err := w.current.sync(); err != nil {
		return err
	}
	_ = w.current.close()

	seg, err := openSegment(w.dir, w.current.index+1)
	if err != nil {
		return err
	}
	w.current = seg
	return nil
}

// TruncateBefore removes closed segments whose records are all at or
// below seq. The active segment is never removed.
func (w *WAL) TruncateBefore(seq uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	files, err := listSegments(w.dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if w.current != nil && path == segmentPath(w.dir, w.current.index) {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			if err := os.Remove(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *WAL) Dir() string { return w.dir }

func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return ErrClosed
	}
	return w.current.sync()
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := errors.Join(w.current.sync(), w.current.close())
	w.current = nil
	return err
}
