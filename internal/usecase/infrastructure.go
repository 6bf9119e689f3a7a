package usecase

import (
	"context"
	"time"
)

// Embedder — внешний сервис, превращающий изображение в вектор.
type Embedder interface {
	EmbedImage(ctx context.Context, req *EmbedImageReq) (*EmbedImageRes, error)
}

type MessageProducer interface {
	WriteRawMessage(ctx context.Context, req *WriteRawMessageReq) error
}

// EventEncoder сериализует события медиа для outbox.
type EventEncoder interface {
	EncodeAssetEvent(event *AssetEvent) ([]byte, error)
}

// URLManager выпускает и обновляет подписанные ссылки на объекты.
type URLManager interface {
	Mint(ctx context.Context, key string, ttl time.Duration) (string, error)
	MintOrDirect(ctx context.Context, key string, ttl time.Duration) string
	IsExpired(rawURL string) bool
	RefreshBatch(ctx context.Context, items []MediaURLs) []RefreshResult
}

type Preprocessor interface {
	Prepare(ctx context.Context, req *PrepareAssetReq) (*PreparedAsset, error)
}

// StorageInfra выполняет фоновую очистку осиротевших объектов.
type StorageInfra interface {
	CleanupObjects(keys []string)
}

// TxManager выполняет fn в транзакции, транзакция передаётся через ctx.
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
