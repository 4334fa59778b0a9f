package blobstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, BucketProducts, "u1/a.png", []byte("a-bytes")))

	rc, err := s.Open(ctx, s.PublicURL(BucketProducts, "u1/a.png"))
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, []byte("a-bytes"), data)

	_, err = s.Open(ctx, s.PublicURL(BucketProducts, "u1/missing.png"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Open(ctx, "https://elsewhere.example.com/files/products/u1/a.png")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, BucketProducts, "u1/a.png", []byte("a")))
	require.NoError(t, s.Put(ctx, BucketProducts, "u1/b.png", []byte("b")))
	require.NoError(t, s.Put(ctx, BucketProducts, "u2/c.png", []byte("c")))

	var got []string
	collect := func(u string) error {
		got = append(got, u)
		return nil
	}

	require.NoError(t, s.List(ctx, s.PublicURL(BucketProducts, "u1"), collect))
	assert.ElementsMatch(t, []string{
		s.PublicURL(BucketProducts, "u1/a.png"),
		s.PublicURL(BucketProducts, "u1/b.png"),
	}, got)

	got = nil
	require.NoError(t, s.List(ctx, "http://localhost:8080/files/products/", collect))
	assert.Len(t, got, 3)

	got = nil
	require.NoError(t, s.List(ctx, s.PublicURL(BucketGeneratedImages, "nobody"), collect))
	assert.Empty(t, got)

	assert.ErrorIs(t, s.List(ctx, "gs://bucket/products", collect), ErrInvalidPath)
}
