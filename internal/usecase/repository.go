package usecase

import (
	"context"
	"time"

	"github.com/DRSN-tech/media-search/internal/domain"
)

// VectorIndex — векторный индекс эмбеддингов изображений и кадров видео.
type VectorIndex interface {
	// NearestNeighbors возвращает до req.Limit ближайших кандидатов одной модальности
	// по возрастанию score, только для тенанта req.TenantID и активных товаров.
	NearestNeighbors(ctx context.Context, req *NearestNeighborsReq) ([]domain.Neighbor, error)
	// Upsert заменяет прежний эмбеддинг того же изображения (или того же кадра).
	Upsert(ctx context.Context, emb *domain.Embedding) error
	SetProductActive(ctx context.Context, tenantID string, productID int64, active bool) error
}

// ObjectStore — объектное хранилище медиа.
type ObjectStore interface {
	Put(ctx context.Context, req *PutObjectReq) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Presign выпускает подписанную ссылку на чтение, ttl уже проверен вызывающей стороной.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	// DirectURL возвращает неподписанную прямую ссылку на объект.
	DirectURL(key string) string
}

type CatalogRepository interface {
	Upsert(ctx context.Context, product *domain.Product) (*domain.Product, error)
	GetBySku(ctx context.Context, tenantID, sku string) (*domain.Product, error)
	GetProductsInfo(ctx context.Context, tenantID string, ids []int64) ([]ProductInfo, error)
	SetActive(ctx context.Context, tenantID string, productID int64, active bool) error
}

type CacheRepository interface {
	GetProducts(ctx context.Context, tenantID string, ids []int64) (map[int64]ProductInfo, error)
	SetProducts(ctx context.Context, tenantID string, products []ProductInfo) error
	DeleteProducts(ctx context.Context, tenantID string, ids []int64) error
}

type AssetRepository interface {
	Create(ctx context.Context, asset *domain.Asset) (*domain.Asset, error)
	GetByID(ctx context.Context, id int64) (*domain.Asset, error)
	UpdateStatus(ctx context.Context, id int64, status domain.EmbeddingStatus, errText string) error
}

type OutboxRepository interface {
	Create(ctx context.Context, event *OutboxEvent) (*OutboxEvent, error)
	GetAndMarkAsProcessing(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkAsProcessed(ctx context.Context, id int64) error
}
