//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/cloo-solutions/kbpipe/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_Integration(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	defer func() { _ = rc.Terminate(ctx) }()

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "kbpipe-test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	t.Run("ensure bucket is idempotent", func(t *testing.T) {
		require.NoError(t, client.EnsureBucket(ctx))
		require.NoError(t, client.EnsureBucket(ctx))
	})

	t.Run("put then get", func(t *testing.T) {
		key := "org-1/knowledge/item-1/manual.pdf"
		require.NoError(t, client.PutObject(ctx, key, "application/pdf", []byte("%PDF-1.4 body")))

		data, err := client.GetObject(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 body", string(data))
	})

	t.Run("put overwrites", func(t *testing.T) {
		key := "org-1/knowledge/item-2/notes.txt"
		require.NoError(t, client.PutObject(ctx, key, "text/plain", []byte("first")))
		require.NoError(t, client.PutObject(ctx, key, "", []byte("second")))

		data, err := client.GetObject(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := client.GetObject(ctx, "org-1/knowledge/nope/missing.txt")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	_, err := NewS3Client(context.Background(), S3ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
