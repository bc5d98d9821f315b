package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/reliefweb-corpus/internal/source"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

// Fetcher issues one upstream call and decodes the page.
type Fetcher interface {
	Fetch(ctx context.Context, params source.Params) (source.Response, error)
}

// Store is the slice of storage.Store the crawler writes to.
type Store interface {
	StorePage(ctx context.Context, records []storage.RawRecord, call storage.CallRecord) error
	MaxChangedAt(ctx context.Context) (time.Time, bool, error)
}

// Hasher computes the parameter digest used as the call-log key.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Limiter paces HTTP attempts to url.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
