package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentcar/internal/infra/storage/memory"
)

func TestEvidenceUploadThenExists(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEvidence()

	ref, err := store.Upload(ctx, "bk-1", "front.jpg", "image/jpeg", strings.NewReader("jpeg"), 4)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "evidence/bk-1/"))

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "evidence/bk-1/missing.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Upload(ctx, "bk-1", "x.jpg", "", nil, 0)
	require.Error(t, err)
}
