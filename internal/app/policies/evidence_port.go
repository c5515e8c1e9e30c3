package policies

import (
	"context"
	"io"
)

// EvidenceStore keeps check-in/check-out images and answers whether a reference exists.
type EvidenceStore interface {
	Upload(ctx context.Context, bookingID, filename, contentType string, body io.Reader, size int64) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
}
