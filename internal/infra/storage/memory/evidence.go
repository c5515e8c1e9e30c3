package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"rentcar/internal/app/policies"
	"rentcar/internal/infra/storage/s3"
)

// Evidence keeps uploaded images in memory under the same keys the S3 store uses.
type Evidence struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewEvidence() *Evidence {
	return &Evidence{objects: map[string][]byte{}}
}

func (e *Evidence) Upload(_ context.Context, bookingID, filename, _ string, body io.Reader, _ int64) (string, error) {
	if body == nil {
		return "", errors.New("memory: evidence body is required")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", err
	}
	key := s3.ObjectKey(bookingID, filename)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects[key] = buf.Bytes()
	return key, nil
}

func (e *Evidence) Exists(_ context.Context, ref string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.objects[strings.Trim(strings.TrimSpace(ref), "/")]
	return ok, nil
}

var _ policies.EvidenceStore = (*Evidence)(nil)
