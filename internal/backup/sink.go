package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink receives exported snapshots for off-store keeping
type Sink interface {
	Write(ctx context.Context, name string, data []byte) error
}

// DirSink writes each snapshot as a file in a local directory
type DirSink struct {
	Dir string
}

// Write stores data as Dir/name, creating Dir when needed
func (d DirSink) Write(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(d.Dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write backup file %q: %w", path, err)
	}
	return nil
}
