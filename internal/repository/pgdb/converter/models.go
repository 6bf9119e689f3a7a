package converter

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductModel представляет запись таблицы products в PostgreSQL.
type ProductModel struct {
	ID        int64           `db:"id"`
	TenantID  string          `db:"tenant_id"`
	Sku       string          `db:"sku"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	IsActive  bool            `db:"is_active"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt *time.Time      `db:"updated_at"`
}

// AssetModel представляет запись таблицы assets в PostgreSQL.
type AssetModel struct {
	ID              int64      `db:"id"`
	TenantID        string     `db:"tenant_id"`
	ProductID       int64      `db:"product_id"`
	Sku             string     `db:"sku"`
	Kind            string     `db:"kind"`
	StorageKey      string     `db:"storage_key"`
	ThumbnailKey    *string    `db:"thumbnail_key"`
	ContentType     string     `db:"content_type"`
	Size            int64      `db:"size"`
	OriginalName    string     `db:"original_name"`
	EmbeddingStatus string     `db:"embedding_status"`
	EmbeddingError  *string    `db:"embedding_error"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at"`
}

// OutboxEventModel представляет запись таблицы outbox_events в PostgreSQL.
type OutboxEventModel struct {
	ID           int64      `db:"id"`
	EventID      string     `db:"event_id"`
	EventType    string     `db:"event_type"`
	AggregateKey string     `db:"aggregate_key"`
	Payload      []byte     `db:"payload"`
	Status       string     `db:"status"`
	CreatedAt    time.Time  `db:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at"`
}
