package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
)

type Writer struct {
	Dir string
}

// Write replaces the snapshot in Dir. The file is written beside the old
// one and renamed over it, so a crash leaves either version intact.
func (w *Writer) Write(s *Snapshot) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(w.Dir, FileName)
	f, err := os.CreateTemp(w.Dir, FileName+".*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, os.Rename(tmp, path)
}
