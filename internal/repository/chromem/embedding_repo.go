// Package chromem реализует векторный индекс в памяти процесса поверх chromem-go.
// Подходит для локальной разработки и тестов: данные не переживают перезапуск.
package chromem

import (
	"context"
	"math"
	"strconv"
	"sync"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/philippgille/chromem-go"
)

const (
	collectionName = "media_embeddings"

	metaTenantID     = "tenant_id"
	metaProductID    = "product_id"
	metaModality     = "modality"
	metaIsActive     = "is_active"
	metaStorageKey   = "storage_key"
	metaThumbnailKey = "thumbnail_key"
	metaTsMs         = "ts_ms"
	metaModel        = "model"
)

type EmbeddingRepo struct {
	collection *chromem.Collection

	mu       sync.Mutex
	products map[string][]string // tenant/product -> ID документов
}

func NewEmbeddingRepo() (*EmbeddingRepo, error) {
	// эмбеддинги всегда передаются готовыми, функция эмбеддинга не вызывается
	collection, err := chromem.NewDB().GetOrCreateCollection(collectionName, nil, noEmbedding)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &EmbeddingRepo{
		collection: collection,
		products:   make(map[string][]string),
	}, nil
}

func (r *EmbeddingRepo) Upsert(ctx context.Context, emb *domain.Embedding) error {
	id := emb.TenantID + "/" + emb.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.collection.AddDocument(ctx, chromem.Document{
		ID:        id,
		Embedding: emb.Vector,
		Metadata: map[string]string{
			metaTenantID:     emb.TenantID,
			metaProductID:    strconv.FormatInt(emb.ProductID, 10),
			metaModality:     string(emb.Modality),
			metaIsActive:     "true",
			metaStorageKey:   emb.StorageKey,
			metaThumbnailKey: emb.ThumbnailKey,
			metaTsMs:         strconv.FormatInt(emb.TsMs, 10),
			metaModel:        emb.Model,
		},
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	key := productKey(emb.TenantID, emb.ProductID)
	for _, existing := range r.products[key] {
		if existing == id {
			return nil
		}
	}
	r.products[key] = append(r.products[key], id)

	return nil
}

// NearestNeighbors возвращает ближайшие документы модальности среди активных товаров тенанта.
// chromem нормализует вектор запроса, косинус умножается на норму запроса:
// для нормализованных документов score = -dot, как в qdrant и pgvector.
func (r *EmbeddingRepo) NearestNeighbors(ctx context.Context, req *usecase.NearestNeighborsReq) ([]domain.Neighbor, error) {
	n := min(req.Limit, r.collection.Count())
	if n <= 0 {
		return nil, nil
	}

	queryNorm := math.Sqrt(domain.Dot(req.Vector, req.Vector))

	results, err := r.collection.QueryEmbedding(ctx, req.Vector, n, map[string]string{
		metaTenantID: req.TenantID,
		metaModality: string(req.Modality),
		metaIsActive: "true",
	}, nil)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	neighbors := make([]domain.Neighbor, 0, len(results))
	for _, res := range results {
		productID, err := strconv.ParseInt(res.Metadata[metaProductID], 10, 64)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		tsMs, _ := strconv.ParseInt(res.Metadata[metaTsMs], 10, 64)

		similarity := float64(res.Similarity) * queryNorm
		if queryNorm == 0 || math.IsNaN(similarity) {
			// нулевой вектор запроса: скалярное произведение равно нулю
			similarity = 0
		}

		neighbors = append(neighbors, domain.Neighbor{
			ProductID:    productID,
			Modality:     domain.Modality(res.Metadata[metaModality]),
			StorageKey:   res.Metadata[metaStorageKey],
			ThumbnailKey: res.Metadata[metaThumbnailKey],
			TsMs:         tsMs,
			Score:        -similarity,
		})
	}

	return neighbors, nil
}

func (r *EmbeddingRepo) SetProductActive(ctx context.Context, tenantID string, productID int64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.products[productKey(tenantID, productID)] {
		doc, err := r.collection.GetByID(ctx, id)
		if err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}

		metadata := make(map[string]string, len(doc.Metadata))
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		metadata[metaIsActive] = strconv.FormatBool(active)
		doc.Metadata = metadata

		if err := r.collection.AddDocument(ctx, doc); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}

func productKey(tenantID string, productID int64) string {
	return tenantID + "/" + strconv.FormatInt(productID, 10)
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, e.ErrVectorEmbeddingEmpty
}
