package certstore

import (
	"context"
	"os"
	"path/filepath"
)

// DefaultDir is the fallback certificates directory used when a batch's
// own directory doesn't hold the file.
const DefaultDir = "certificates"

// Local resolves certificates from the local filesystem.
type Local struct {
	defaultDir string
}

// NewLocal creates a filesystem resolver. An empty defaultDir uses
// DefaultDir.
func NewLocal(defaultDir string) *Local {
	if defaultDir == "" {
		defaultDir = DefaultDir
	}
	return &Local{defaultDir: defaultDir}
}

// Resolve tries each candidate path in order and returns the first
// readable file. All candidates failing yields ErrNotFound.
func (l *Local) Resolve(ctx context.Context, q Query) ([]byte, string, error) {
	for _, path := range candidates(q, l.defaultDir) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(path)
		if err == nil {
			return data, filepath.Base(path), nil
		}
	}
	return nil, "", ErrNotFound
}
