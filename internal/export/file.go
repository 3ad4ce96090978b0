package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSink writes documents into a directory. Each write goes to a temp
// file that is renamed into place, so readers never see a partial file.
type FileSink struct {
	Dir string
}

// Put writes data to Dir/key, creating Dir if needed.
func (s FileSink) Put(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Location(key)); err != nil {
		return fmt.Errorf("rename export file: %w", err)
	}
	return nil
}

// Location returns the file path of key.
func (s FileSink) Location(key string) string {
	return filepath.Join(s.Dir, key)
}
