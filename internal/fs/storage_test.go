package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewStorage(root)
	key := "000/000/001/conversions/thumb.jpg"

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Put(ctx, key, strings.NewReader("thumb bytes")))

	_, err = os.Stat(filepath.Join(root, "000", "000", "001", "conversions", "thumb.jpg"))
	require.NoError(t, err)

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := s.Open(ctx, key)
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, "thumb bytes", string(content))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	_, err = s.Open(ctx, key)
	assert.Error(t, err)
}

func TestStorageRejectsKeysOutsideRoot(t *testing.T) {
	s := NewStorage(t.TempDir())

	err := s.Put(context.Background(), "../escape.txt", strings.NewReader("x"))
	assert.Error(t, err)

	_, err = s.Exists(context.Background(), "a/../../escape.txt")
	assert.Error(t, err)
}
