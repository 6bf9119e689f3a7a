package clients

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jimlawless/whereami"
)

// NewGCSClient создаёт клиент Google Cloud Storage.
// Учётные данные берутся из Application Default Credentials (GOOGLE_APPLICATION_CREDENTIALS).
func NewGCSClient(ctx context.Context) (*storage.Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return client, nil
}
