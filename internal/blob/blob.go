// Package blob defines where exported corpus artifacts are written.
package blob

import (
	"context"
	"io"
)

// Content types of exported artifacts.
const (
	ContentTypeVertical = "text/plain; charset=utf-8"
	ContentTypeJSON     = "application/json"
	ContentTypeXZ       = "application/x-xz"
)

// Store persists one object and returns its URI (file:// or gs://).
type Store interface {
	Put(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}
