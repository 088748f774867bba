package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonchurch/gnv-city-meetings/internal/artifact"
)

func TestLocal_WriteThenReadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewLocal(tmpDir)
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte("raw video bytes")

	srcPath := filepath.Join(tmpDir, "upload-source.mp4")
	require.NoError(t, os.WriteFile(srcPath, content, 0o644))

	require.NoError(t, store.WriteFrom(ctx, srcPath, artifact.RawVideo, "m1"))

	exists, err := store.Exists(ctx, artifact.RawVideo, "m1")
	require.NoError(t, err)
	assert.True(t, exists)

	size, err := store.SizeOf(ctx, artifact.RawVideo, "m1")
	require.NoError(t, err)
	assert.EqualValues(t, len(content), size)

	dstPath := filepath.Join(tmpDir, "downloaded.mp4")
	require.NoError(t, store.ReadInto(ctx, artifact.RawVideo, "m1", dstPath))

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestLocal_ExistsFalseForMissingArtifact(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewLocal(tmpDir)
	require.NoError(t, err)

	exists, err := store.Exists(context.Background(), artifact.RawVideo, "absent")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocal_URLForUsesCanonicalPath(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewLocal(tmpDir)
	require.NoError(t, err)

	url, err := store.URLFor(context.Background(), artifact.DerivedChapters, "m1")
	require.NoError(t, err)
	assert.Contains(t, url, "derived/chapters/m1_chapters.txt")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNew_Local(t *testing.T) {
	store, err := New(Config{Backend: "local", LocalRoot: t.TempDir()})
	require.NoError(t, err)
	_, ok := store.(*Local)
	assert.True(t, ok)
}
