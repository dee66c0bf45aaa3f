package entry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxSeqInSegment scans a segment's headers and returns the highest seq.
// Only truncation uses it, so payloads are skipped unchecked.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var max uint64
	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return max, nil
			}
			return max, err
		}

		if seq := binary.BigEndian.Uint64(header[1:9]); seq > max {
			max = seq
		}

		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if _, err := f.Seek(int64(payloadLen)+4, io.SeekCurrent); err != nil {
			return max, err
		}
	}
}

// validLength returns the byte length of the longest prefix of the
// segment made of complete frames. A checksum failure is an error.
func validLength(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int64
	for {
		rec, err := readRecord(f)
		if err != nil {
			if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
				return n, nil
			}
			return n, fmt.Errorf("%s: %w", path, err)
		}
		n += int64(headerSize + len(rec.Data) + 4)
	}
}
