package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrCorrupt = errors.New("journal record corrupt")

type ReplayHandler func(*Record) error

// Replay feeds every record in dir to fn in sequence order. A torn frame
// at the very end of the newest segment is what a crash mid-append leaves
// behind and ends the replay cleanly; anything else malformed is an error.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for i, path := range files {
		last := i == len(files)-1
		lastSeq, err = replaySegment(path, last, lastSeq, fn)
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, newest bool, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return lastSeq, err
	}
	defer f.Close()

	for {
		rec, err := readRecord(f)
		if err != nil {
			if err == io.EOF {
				return lastSeq, nil
			}
			if newest && errors.Is(err, io.ErrUnexpectedEOF) {
				return lastSeq, nil
			}
			return lastSeq, fmt.Errorf("%s: %w", path, err)
		}

		if rec.Seq <= lastSeq {
			return lastSeq, fmt.Errorf("non-monotonic seq %d after %d", rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
	}
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	t := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := binary.BigEndian.Uint64(header[9:17])
	l := binary.BigEndian.Uint32(header[17:21])

	if l > MaxPayload {
		return nil, fmt.Errorf("seq %d: payload length %d: %w", seq, l, ErrCorrupt)
	}
	data := make([]byte, int(l)+4)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := data[:l]
	crc := binary.BigEndian.Uint32(data[l:])

	if !CRC32Valid(append(header, payload...), crc) {
		return nil, fmt.Errorf("seq %d: %w", seq, ErrCorrupt)
	}

	return &Record{
		Type: t,
		Seq:  seq,
		Time: int64(ts),
		Data: payload,
	}, nil
}
