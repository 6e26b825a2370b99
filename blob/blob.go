package blob

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrNoSuchObject indicates the requested path does not exist in the
// backing object store.
var ErrNoSuchObject = errors.New("no such object")

// PutRequest describes one upload. Body must be a ReadSeeker because
// S3-style backends sign the payload and may retry from the start.
type PutRequest struct {
	Path     string
	Body     io.ReadSeeker
	Size     int64
	MimeType string
}

// Store is the object-storage collaborator: it supplies original
// objects and receives generated versions. The coordinator depends on
// this interface only.
type Store interface {
	// Get opens the object at path for reading, or returns
	// ErrNoSuchObject.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// Put uploads one object. A non-success transport status is an
	// error.
	Put(ctx context.Context, req PutRequest) error
}
