package photostore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no photo is stored under a key.
var ErrNotFound = errors.New("photo not found")

// PhotoStore keeps discovery images. Keys are opaque names returned by Save
// and recorded as a discovery's image path.
type PhotoStore interface {
	// Save stores r under a new unique key of the form <prefix>_<uuid><ext>.
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
	Exists(ctx context.Context, storageKey string) (bool, error)
}
