// Package fetcher downloads supplier datasheets referenced by URL.
package fetcher

import (
	"context"
	"strings"

	"github.com/sells-group/spec-search/internal/model"
)

// Fetcher retrieves a remote document.
type Fetcher interface {
	// Fetch downloads rawURL and returns it as a Document with its media
	// type resolved.
	Fetch(ctx context.Context, rawURL string) (model.Document, error)
}

// IsURL reports whether s names an http or https resource rather than a
// local path.
func IsURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
