package snapshot

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
)

// Load reads the snapshot at path. A missing file is not an error: it
// returns nil and the caller starts from an empty book.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &s, nil
}
