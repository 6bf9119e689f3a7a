package domain

import (
	"fmt"
	"time"
)

// Modality — источник вектора: изображение товара или кадр видео
type Modality string

const (
	ModalityImage      Modality = "image"
	ModalityVideoFrame Modality = "video_frame"
)

// Embedding представляет эмбеддинг одного изображения или кадра видео товара
type Embedding struct {
	TenantID     string
	ProductID    int64
	AssetID      int64
	Modality     Modality
	StorageKey   string // ключ изображения или кадра
	ThumbnailKey string // только для изображений
	TsMs         int64  // только для кадров
	Model        string
	Vector       []float32
	CreatedAt    time.Time
}

func NewImageEmbedding(asset *Asset, vector []float32, model string) *Embedding {
	return &Embedding{
		TenantID:     asset.TenantID,
		ProductID:    asset.ProductID,
		AssetID:      asset.ID,
		Modality:     ModalityImage,
		StorageKey:   asset.StorageKey,
		ThumbnailKey: asset.ThumbnailKey,
		Model:        model,
		Vector:       vector,
		CreatedAt:    time.Now().UTC(),
	}
}

func NewFrameEmbedding(asset *Asset, frameKey string, tsMs int64, vector []float32, model string) *Embedding {
	return &Embedding{
		TenantID:   asset.TenantID,
		ProductID:  asset.ProductID,
		AssetID:    asset.ID,
		Modality:   ModalityVideoFrame,
		StorageKey: frameKey,
		TsMs:       tsMs,
		Model:      model,
		Vector:     vector,
		CreatedAt:  time.Now().UTC(),
	}
}

// Key — стабильный идентификатор эмбеддинга: повторная индексация того же изображения
// или того же кадра заменяет прежний вектор.
func (e *Embedding) Key() string {
	if e.Modality == ModalityVideoFrame {
		return fmt.Sprintf("frame:%d:%d", e.AssetID, e.TsMs)
	}

	return fmt.Sprintf("image:%d", e.AssetID)
}

// Neighbor — кандидат, возвращённый векторным индексом.
// Score — отрицательное скалярное произведение, меньше — лучше.
type Neighbor struct {
	ProductID    int64
	ProductName  string
	Modality     Modality
	StorageKey   string
	ThumbnailKey string
	TsMs         int64
	Score        float64
}
