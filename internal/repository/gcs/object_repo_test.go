package gcs

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/internal/infrastructure/urlsigner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testAccessID = "signer@media-search.iam.gserviceaccount.com"

func newTestRepo(t *testing.T, signBytes func([]byte) ([]byte, error)) *ObjectRepo {
	t.Helper()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewObjectRepo(client, &cfg.StorageCfg{GCSBucket: "media"})
	repo.accessID = testAccessID
	repo.signBytes = signBytes

	return repo
}

func TestPresignSignsV4URL(t *testing.T) {
	repo := newTestRepo(t, func([]byte) ([]byte, error) { return []byte("sig"), nil })

	signed, err := repo.Presign(context.Background(), "tenants/t1/a.jpg", time.Hour)
	require.NoError(t, err)

	assert.True(t, urlsigner.IsSigned(signed), signed)
	assert.Contains(t, signed, "X-Goog-Expires=3600")

	expiresAt, ok := urlsigner.ExpiresAt(signed)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)
}

func TestPresignIsBoundedByContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	repo := newTestRepo(t, func([]byte) ([]byte, error) {
		<-release
		return []byte("sig"), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := repo.Presign(ctx, "tenants/t1/a.jpg", time.Hour)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDirectURL(t *testing.T) {
	repo := newTestRepo(t, nil)

	assert.Equal(t, "https://storage.googleapis.com/media/tenants/t1/a.jpg", repo.DirectURL("/tenants/t1/a.jpg"))

	repo.cfg = &cfg.StorageCfg{GCSBucket: "media", PublicBaseURL: "https://cdn.example.com/"}
	assert.Equal(t, "https://cdn.example.com/tenants/t1/a.jpg", repo.DirectURL("tenants/t1/a.jpg"))
}
