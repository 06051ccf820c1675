package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes objects from storage. Deletes are idempotent.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver exports closed ledger days to cold storage.
type Archiver interface {
	// ArchiveDay uploads the price records and settled bets for the given
	// day and returns the number of records written.
	ArchiveDay(ctx context.Context, day DayIndex) (int64, error)
}
