package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/app/middleware"
	"rentcar/internal/infra/storage/memory"
)

func TestIdempotencyStoreExpiresOldResults(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := memory.NewIdempotencyStore()
	s.TTL = time.Hour
	s.Now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, middleware.IdempotencyRecord{Key: "booking.open:k", Fingerprint: "f", Payload: []byte(`{}`), OccurredAt: now}))
	rec, ok, err := s.Get(ctx, "booking.open:k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "f", rec.Fingerprint)

	now = now.Add(2 * time.Hour)
	_, ok, err = s.Get(ctx, "booking.open:k")
	require.NoError(t, err)
	assert.False(t, ok)
}
