package filestore

import (
	"io"
)

// FileStore keeps uploaded blobs addressed by the sha256 of their content.
type FileStore interface {
	// Put stores the content and returns its hex sha256 and size.
	// Storing the same content twice keeps a single copy.
	Put(r io.Reader) (hash string, size int64, err error)

	// Open returns the content stored under hash. A missing blob is models.ErrNotFound.
	Open(hash string) (io.ReadCloser, error)
}
