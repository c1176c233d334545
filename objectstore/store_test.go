package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Put(ctx, "videos/abc/master.m3u8", bytes.NewReader([]byte("#EXTM3U\n")), "application/x-mpegURL")
	require.NoError(t, err)

	r, err := store.Get(ctx, "videos/abc/master.m3u8")
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(data))
}

func TestGetRangeByteExact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("x"), 10000)
	require.NoError(t, store.Put(ctx, "videos/v1/seg0.ts", bytes.NewReader(payload), "video/MP2T"))

	r, rng, err := store.GetRange(ctx, "videos/v1/seg0.ts", 0, 999)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, data, 1000)
	assert.Equal(t, "bytes 0-999/10000", rng.ContentRange())
}

func TestGetRangeOpenEnded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("y"), 10000)
	require.NoError(t, store.Put(ctx, "videos/v1/seg1.ts", bytes.NewReader(payload), "video/MP2T"))

	r, rng, err := store.GetRange(ctx, "videos/v1/seg1.ts", 9500, OpenEnded)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, data, 500)
	assert.Equal(t, "bytes 9500-9999/10000", rng.ContentRange())
	assert.EqualValues(t, 500, rng.Length())
}

func TestGetRangeClampsEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", bytes.NewReader(make([]byte, 100)), "application/octet-stream"))

	_, rng, err := store.GetRange(ctx, "k", 50, 1_000_000)
	require.NoError(t, err)
	assert.EqualValues(t, 99, rng.End)
}

func TestGetRangeUnsatisfiable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", bytes.NewReader(make([]byte, 100)), "application/octet-stream"))

	_, _, err := store.GetRange(ctx, "k", 100, OpenEnded)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = store.GetRange(ctx, "k", -1, OpenEnded)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestHeadSizeAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "videos/v2/master.m3u8", bytes.NewReader(make([]byte, 42)), "application/x-mpegURL"))

	size, err := store.HeadSize(ctx, "videos/v2/master.m3u8")
	require.NoError(t, err)
	assert.EqualValues(t, 42, size)

	require.NoError(t, store.Delete(ctx, "videos/v2/master.m3u8"))

	_, err = store.HeadSize(ctx, "videos/v2/master.m3u8")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePrefixRemovesAllArtifacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	keys := []string{
		"videos/v3/master.m3u8",
		"videos/v3/720p/index.m3u8",
		"videos/v3/720p/seg0.ts",
	}
	for _, k := range keys {
		require.NoError(t, store.Put(ctx, k, bytes.NewReader([]byte("data")), "application/octet-stream"))
	}
	require.NoError(t, store.Put(ctx, "videos/other/master.m3u8", bytes.NewReader([]byte("keep")), "application/octet-stream"))

	require.NoError(t, store.DeletePrefix(ctx, "videos/v3/"))

	for _, k := range keys {
		_, err := store.Get(ctx, k)
		assert.ErrorIs(t, err, ErrNotFound, k)
	}

	_, err := store.Get(ctx, "videos/other/master.m3u8")
	assert.NoError(t, err)
}

func TestUploadTokenScopedToKey(t *testing.T) {
	signer := NewUploadSigner("test-secret", time.Minute)

	token, err := signer.Sign("uploads/originals/u1/file.mp4")
	require.NoError(t, err)

	key, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "uploads/originals/u1/file.mp4", key)

	other := NewUploadSigner("other-secret", time.Minute)
	_, err = other.Verify(token)
	assert.Error(t, err)
}
