package entry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const segmentGlob = "segment-*.wal"

// segmentFile is the part of *os.File a segment writes through.
type segmentFile interface {
	Write([]byte) (int, error)
	Truncate(int64) error
	Sync() error
	Close() error
}

type segment struct {
	index  int
	file   segmentFile
	offset int64
}

func segmentPath(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("segment-%06d.wal", index))
}

func openSegment(dir string, index int) (*segment, error) {
	f, err := os.OpenFile(segmentPath(dir, index), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{index: index, file: f, offset: st.Size()}, nil
}

// append writes one frame. A failed write is cut back to the previous
// end so the next frame never lands behind a partial one; when that cut
// fails too the segment is unusable and ErrBroken is returned.
func (s *segment) append(b []byte) error {
	n, err := s.file.Write(b)
	if err == nil {
		s.offset += int64(n)
		return nil
	}
	if n > 0 {
		if terr := s.file.Truncate(s.offset); terr != nil {
			return errors.Join(err, fmt.Errorf("%w: %w", ErrBroken, terr))
		}
	}
	return err
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) close() error {
	return s.file.Close()
}

// listSegments returns segment paths in index order.
func listSegments(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, segmentGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func segmentIndex(path string) (int, error) {
	var idx int
	_, err := fmt.Sscanf(filepath.Base(path), "segment-%06d.wal", &idx)
	return idx, err
}
