package domain

import (
	"strings"
	"time"
)

// AssetKind — тип медиа товара
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// ParseAssetKind возвращает тип медиа по строке или по MIME-типу.
func ParseAssetKind(s string) (AssetKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == string(AssetKindImage), strings.HasPrefix(s, "image/"):
		return AssetKindImage, true
	case s == string(AssetKindVideo), strings.HasPrefix(s, "video/"):
		return AssetKindVideo, true
	default:
		return "", false
	}
}

// EmbeddingStatus — состояние индексации медиа
type EmbeddingStatus string

const (
	EmbeddingPending    EmbeddingStatus = "pending"
	EmbeddingProcessing EmbeddingStatus = "processing"
	EmbeddingCompleted  EmbeddingStatus = "completed"
	EmbeddingFailed     EmbeddingStatus = "failed"
)

// Asset описывает загруженный медиа-объект товара, который хранится в S3
type Asset struct {
	ID              int64
	TenantID        string
	ProductID       int64
	Sku             string
	Kind            AssetKind
	StorageKey      string
	ThumbnailKey    string // пусто для видео
	ContentType     string
	Size            int64
	OriginalName    string
	EmbeddingStatus EmbeddingStatus
	EmbeddingError  string
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

func NewAsset(tenantID string, productID int64, sku string, kind AssetKind, storageKey, thumbnailKey, contentType string, size int64, originalName string) *Asset {
	return &Asset{
		TenantID:        tenantID,
		ProductID:       productID,
		Sku:             sku,
		Kind:            kind,
		StorageKey:      storageKey,
		ThumbnailKey:    thumbnailKey,
		ContentType:     contentType,
		Size:            size,
		OriginalName:    originalName,
		EmbeddingStatus: EmbeddingPending,
	}
}
