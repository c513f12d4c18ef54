// Package certstore resolves a recipient's generated certificate image.
// The renderer that produces the images is a separate system; this
// package only knows the naming conventions under which they land.
package certstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// ErrNotFound means none of the candidate locations held a readable
// certificate for the recipient.
var ErrNotFound = errors.New("certificate not found")

// Query identifies one recipient's certificate.
type Query struct {
	// ExplicitPath is an exact path supplied with the recipient record.
	// Empty means "derive candidates from Dir, Index and Name".
	ExplicitPath string
	// Dir is the batch's certificates directory (or key prefix).
	Dir string
	// Index is the recipient's zero-based position in the batch.
	Index int
	// Name is the recipient's display name, used for the name-derived
	// filename fallback.
	Name string
}

// Resolver loads the certificate bytes for a query, returning the bytes
// and the filename to attach them under.
type Resolver interface {
	Resolve(ctx context.Context, q Query) ([]byte, string, error)
}

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// candidates returns the paths to try in order: the explicit path, the
// index-based name in the batch dir, the recipient-name-derived filename
// in the batch dir, and the index-based name under defaultDir.
// Certificate numbering on disk is 1-based.
func candidates(q Query, defaultDir string) []string {
	indexed := fmt.Sprintf("certificate_%d.png", q.Index+1)

	var paths []string
	if q.ExplicitPath != "" {
		paths = append(paths, q.ExplicitPath)
	}
	paths = append(paths,
		filepath.Join(q.Dir, indexed),
		filepath.Join(q.Dir, nonAlnum.ReplaceAllString(q.Name, "_")+".png"),
		filepath.Join(defaultDir, indexed),
	)
	return paths
}
