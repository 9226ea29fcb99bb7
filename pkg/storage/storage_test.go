package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := NewLocalStorage()
	path := filepath.Join(t.TempDir(), "nested", "file.txt")

	data := []byte("hello, storage")
	n, err := fs.Write(ctx, path, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	got, err := ReadAll(ctx, fs, path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	size, err := fs.Size(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
}

func TestLocalRangedRead(t *testing.T) {
	ctx := context.Background()
	fs := NewLocalStorage()
	path := filepath.Join(t.TempDir(), "file.txt")
	_, err := fs.Write(ctx, path, []byte("0123456789"))
	require.NoError(t, err)

	got, err := fs.Read(ctx, path, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), got)

	// Reading past the end truncates rather than failing.
	got, err = fs.Read(ctx, path, 8, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("89"), got)
}

func TestLocalMissingFilePreservesNotExist(t *testing.T) {
	fs := NewLocalStorage()
	_, err := ReadAll(context.Background(), fs, filepath.Join(t.TempDir(), "absent"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalListAndRemove(t *testing.T) {
	ctx := context.Background()
	fs := NewLocalStorage()
	dir := t.TempDir()

	for _, name := range []string{"a.txt", "b.txt"} {
		_, err := fs.Write(ctx, filepath.Join(dir, name), []byte(name))
		require.NoError(t, err)
	}

	names, err := fs.List(ctx, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	require.NoError(t, fs.Remove(ctx, dir, true))
	exists, err := fs.Exists(ctx, dir)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalCopy(t *testing.T) {
	ctx := context.Background()
	fs := NewLocalStorage()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	_, err := fs.Write(ctx, src, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, fs.Copy(ctx, src, dst))

	got, err := ReadAll(ctx, fs, dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestHashFromFileMatchesFullDigest(t *testing.T) {
	ctx := context.Background()
	fs := NewLocalStorage()
	path := filepath.Join(t.TempDir(), "big.bin")

	// Larger than one hash chunk so the buffered path is exercised.
	data := make([]byte, 300*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	_, err := fs.Write(ctx, path, data)
	require.NoError(t, err)

	got, err := HashFromFile(ctx, fs, path)
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestMimeTypeSniffing(t *testing.T) {
	ctx := context.Background()
	fs := NewLocalStorage()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	_, err := fs.Write(ctx, path, []byte("%PDF-1.7 ..."))
	require.NoError(t, err)

	mime, err := MimeType(ctx, fs, path)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", mime)
}

func TestPermanentProfileGating(t *testing.T) {
	_, err := NewPermanentStorage(NewLocalStorage())
	assert.NoError(t, err)

	_, err = NewPermanentStorage(&RedisStorage{})
	assert.Error(t, err)
}

func TestSharedTemporaryProfileGating(t *testing.T) {
	_, err := NewSharedTemporaryStorage(NewLocalStorage())
	assert.Error(t, err)

	_, err = NewSharedTemporaryStorage(&RedisStorage{})
	assert.NoError(t, err)
}

func TestLegacyCopyOnRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	legacyPath := filepath.Join(dir, "legacy", "file.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(legacyPath), 0o755))
	require.NoError(t, os.WriteFile(legacyPath, []byte("migrated"), 0o644))

	perm, err := NewPermanentStorage(NewLocalStorage())
	require.NoError(t, err)

	target := filepath.Join(dir, "remote", "file.txt")
	got, err := perm.ReadWithLegacyFallback(ctx, target, legacyPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("migrated"), got)

	// The legacy content is now present at the permanent path.
	uploaded, err := ReadAll(ctx, perm, target)
	require.NoError(t, err)
	assert.Equal(t, []byte("migrated"), uploaded)
}

func TestLegacyFallbackMissingBoth(t *testing.T) {
	perm, err := NewPermanentStorage(NewLocalStorage())
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = perm.ReadWithLegacyFallback(context.Background(),
		filepath.Join(dir, "absent"), filepath.Join(dir, "also-absent"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
