package qdrant

import (
	"context"
	"time"

	"github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/clients"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

const (
	fieldAssetID      = "asset_id"
	fieldStorageKey   = "storage_key"
	fieldThumbnailKey = "thumbnail_key"
	fieldTsMs         = "ts_ms"
	fieldModel        = "model"
	fieldCreatedAt    = "created_at"
)

// EmbeddingRepo репозиторий для работы с embedding-векторами в Qdrant.
// Коллекция создаётся с метрикой Dot, векторы приходят нормализованными.
type EmbeddingRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewEmbeddingRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *EmbeddingRepo {
	return &EmbeddingRepo{
		client: client,
		cfg:    cfg,
	}
}

// Upsert сохраняет или заменяет вектор изображения или кадра.
// ID точки детерминированно выводится из Embedding.Key.
func (q *EmbeddingRepo) Upsert(ctx context.Context, emb *domain.Embedding) error {
	point := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(emb)),
		Vectors: qdrant.NewVectors(emb.Vector...),
		Payload: qdrant.NewValueMap(map[string]any{
			clients.QdrantFieldTenantID:  emb.TenantID,
			clients.QdrantFieldProductID: emb.ProductID,
			clients.QdrantFieldModality:  string(emb.Modality),
			clients.QdrantFieldIsActive:  true,
			fieldAssetID:                 emb.AssetID,
			fieldStorageKey:              emb.StorageKey,
			fieldThumbnailKey:            emb.ThumbnailKey,
			fieldTsMs:                    emb.TsMs,
			fieldModel:                   emb.Model,
			fieldCreatedAt:               emb.CreatedAt.UTC().Format(time.RFC3339),
		}),
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// NearestNeighbors ищет ближайшие векторы одной модальности среди активных товаров тенанта.
// score = -dot, чтобы меньшее значение означало большую похожесть.
func (q *EmbeddingRepo) NearestNeighbors(ctx context.Context, req *usecase.NearestNeighborsReq) ([]domain.Neighbor, error) {
	if req.Limit <= 0 {
		return nil, nil
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Query:          qdrant.NewQuery(req.Vector...),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeyword(clients.QdrantFieldTenantID, req.TenantID),
				qdrant.NewMatchKeyword(clients.QdrantFieldModality, string(req.Modality)),
				qdrant.NewMatchBool(clients.QdrantFieldIsActive, true),
			},
		},
		Limit:       qdrant.PtrOf(uint64(req.Limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	neighbors := make([]domain.Neighbor, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		neighbors = append(neighbors, domain.Neighbor{
			ProductID:    payload[clients.QdrantFieldProductID].GetIntegerValue(),
			Modality:     domain.Modality(payload[clients.QdrantFieldModality].GetStringValue()),
			StorageKey:   payload[fieldStorageKey].GetStringValue(),
			ThumbnailKey: payload[fieldThumbnailKey].GetStringValue(),
			TsMs:         payload[fieldTsMs].GetIntegerValue(),
			Score:        -float64(p.GetScore()),
		})
	}

	return neighbors, nil
}

// SetProductActive переключает флаг is_active у всех точек товара.
func (q *EmbeddingRepo) SetProductActive(ctx context.Context, tenantID string, productID int64, active bool) error {
	_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Wait:           qdrant.PtrOf(true),
		Payload:        qdrant.NewValueMap(map[string]any{clients.QdrantFieldIsActive: active}),
		PointsSelector: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchKeyword(clients.QdrantFieldTenantID, tenantID),
				qdrant.NewMatchInt(clients.QdrantFieldProductID, productID),
			},
		}),
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// PointID возвращает UUID точки, стабильный для одного изображения или кадра.
func PointID(emb *domain.Embedding) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(emb.TenantID+"/"+emb.Key())).String()
}
