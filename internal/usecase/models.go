package usecase

import (
	"time"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/shopspring/decimal"
)

// SEARCH USECASE

// SearchReq — поиск по готовому вектору запроса.
type SearchReq struct {
	TenantID string
	Vector   []float32
	Limit    int // <= 0: значение по умолчанию
}

// SearchByImageReq — поиск по загруженному изображению.
type SearchByImageReq struct {
	TenantID    string
	Data        []byte
	ContentType string
	FileName    string
	Limit       int
}

// SearchRes — выдача поиска. Fallback=true, если ни один результат не прошёл порог похожести.
type SearchRes struct {
	Results  []domain.MatchResult
	Fallback bool
	Model    string // модель эмбеддинга, только для поиска по изображению
}

// NearestNeighborsReq — запрос к векторному индексу по одной модальности.
type NearestNeighborsReq struct {
	TenantID string
	Modality domain.Modality
	Vector   []float32
	Limit    int
}

// ProductInfo — DTO с информацией о товаре для выдачи.
type ProductInfo struct {
	ID       int64
	TenantID string
	Sku      string
	Name     string
	Price    decimal.Decimal
	IsActive bool
}

// MEDIA USECASE

// PrepareMode — режим подготовки медиа перед сохранением.
type PrepareMode string

const (
	// ModePreserve сохраняет исходные байты без изменений
	ModePreserve PrepareMode = "preserve"
	// ModeOptimize перекодирует изображение с ограничением разрешения
	ModeOptimize PrepareMode = "optimize"
)

// UploadAssetReq — загрузка медиа товара.
type UploadAssetReq struct {
	TenantID     string
	Sku          string
	ProductName  string
	Kind         domain.AssetKind
	OriginalName string
	ContentType  string
	Data         []byte
	Mode         PrepareMode // пусто: режим из конфигурации
}

// UploadAssetRes — сохранённое медиа и ссылки на него.
type UploadAssetRes struct {
	Asset        *domain.Asset
	URL          string
	ThumbnailURL string
	EventID      string
}

// IndexFrameReq — эмбеддинг кадра видео от внешнего экстрактора кадров.
type IndexFrameReq struct {
	TenantID string
	AssetID  int64
	TsMs     int64
	FrameKey string
	Vector   []float32
	Model    string
}

// SetProductActiveReq включает или скрывает товар в поиске.
type SetProductActiveReq struct {
	TenantID string
	Sku      string
	Active   bool
}

// MediaURLs — ключи и ссылки одного медиа, которые клиент хочет обновить.
type MediaURLs struct {
	ID           string `json:"id"`
	Key          string `json:"key,omitempty"`
	URL          string `json:"url,omitempty"`
	ThumbnailKey string `json:"thumbnailKey,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// RefreshResult — результат обновления одного элемента. При ошибке Item не изменён.
type RefreshResult struct {
	Item      MediaURLs
	Refreshed bool
	Err       error
}

// RefreshURLsReq — обновление ссылок медиа одного тенанта.
type RefreshURLsReq struct {
	TenantID string
	Items    []MediaURLs
}

type RefreshURLsRes struct {
	Results []RefreshResult
}

// INFRASTRUCTURE

// PrepareAssetReq — входные данные препроцессора.
type PrepareAssetReq struct {
	Data         []byte
	Kind         domain.AssetKind
	OriginalName string
	ContentType  string
	Mode         PrepareMode
}

// PreparedAsset — байты для сохранения. Thumbnail пустой для видео.
type PreparedAsset struct {
	Data                 []byte
	ContentType          string
	Thumbnail            []byte
	ThumbnailContentType string
}

type PutObjectReq struct {
	Key         string
	Data        []byte
	ContentType string
}

type EmbedImageReq struct {
	Data        []byte
	ContentType string
	FileName    string
}

type EmbedImageRes struct {
	Vector []float32
	Model  string
	Device string
}

type WriteRawMessageReq struct {
	Key     string
	Payload []byte
}

// AssetEvent — событие жизненного цикла медиа для внешних потребителей.
type AssetEvent struct {
	EventID    string
	Type       OutboxEventType
	OccurredAt time.Time
	Asset      *domain.Asset
}

// OUTBOX

type OutboxStatus string

const (
	Pending    OutboxStatus = "pending"
	Processing OutboxStatus = "processing"
	Processed  OutboxStatus = "processed"
)

type OutboxEventType string

const (
	EventAssetUploaded OutboxEventType = "asset.uploaded"
	EventAssetIndexed  OutboxEventType = "asset.indexed"
)

// OutboxEvent — событие, ожидающее публикации в Kafka.
type OutboxEvent struct {
	ID           int64
	EventID      string
	EventType    OutboxEventType
	AggregateKey string // ключ партиционирования: tenant/product
	Payload      []byte
	Status       OutboxStatus
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// MAPPERS

func NewNearestNeighborsReq(tenantID string, modality domain.Modality, vector []float32, limit int) *NearestNeighborsReq {
	return &NearestNeighborsReq{
		TenantID: tenantID,
		Modality: modality,
		Vector:   vector,
		Limit:    limit,
	}
}

func NewSearchReq(tenantID string, vector []float32, limit int) *SearchReq {
	return &SearchReq{
		TenantID: tenantID,
		Vector:   vector,
		Limit:    limit,
	}
}

func NewPutObjectReq(key string, data []byte, contentType string) *PutObjectReq {
	return &PutObjectReq{
		Key:         key,
		Data:        data,
		ContentType: contentType,
	}
}

func NewWriteRawMessageReq(key string, payload []byte) *WriteRawMessageReq {
	return &WriteRawMessageReq{
		Key:     key,
		Payload: payload,
	}
}

func NewOutboxEvent(eventID string, eventType OutboxEventType, aggregateKey string, payload []byte) *OutboxEvent {
	return &OutboxEvent{
		EventID:      eventID,
		EventType:    eventType,
		AggregateKey: aggregateKey,
		Payload:      payload,
		Status:       Pending,
		CreatedAt:    time.Now().UTC(),
	}
}
