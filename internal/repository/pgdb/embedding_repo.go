package pgdb

import (
	"context"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingRepo — векторный индекс на pgvector в той же базе, что и каталог.
// Активность товара берётся из products, поэтому отдельный флаг в индексе не хранится.
type EmbeddingRepo struct {
	pool *pgxpool.Pool
}

func NewEmbeddingRepo(pool *pgxpool.Pool) *EmbeddingRepo {
	return &EmbeddingRepo{pool: pool}
}

func (r *EmbeddingRepo) Upsert(ctx context.Context, emb *domain.Embedding) error {
	query := `
		INSERT INTO media_embeddings (
			tenant_id, embedding_key, product_id, asset_id, modality,
			storage_key, thumbnail_key, ts_ms, model, embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10::vector, $11)
		ON CONFLICT (tenant_id, embedding_key)
		DO UPDATE SET
			storage_key = EXCLUDED.storage_key,
			thumbnail_key = EXCLUDED.thumbnail_key,
			model = EXCLUDED.model,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		emb.TenantID,
		emb.Key(),
		emb.ProductID,
		emb.AssetID,
		string(emb.Modality),
		emb.StorageKey,
		emb.ThumbnailKey,
		emb.TsMs,
		emb.Model,
		pgvector.NewVector(emb.Vector),
		emb.CreatedAt,
	)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// NearestNeighbors использует оператор <#>: он возвращает отрицательное скалярное произведение.
func (r *EmbeddingRepo) NearestNeighbors(ctx context.Context, req *usecase.NearestNeighborsReq) ([]domain.Neighbor, error) {
	if req.Limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT me.product_id, p.name, me.modality, me.storage_key,
		       COALESCE(me.thumbnail_key, ''), me.ts_ms,
		       me.embedding <#> $3::vector AS score
		FROM media_embeddings me
		JOIN products p ON p.id = me.product_id
		WHERE me.tenant_id = $1 AND me.modality = $2 AND p.is_active
		ORDER BY score
		LIMIT $4
	`

	rows, err := conn(ctx, r.pool).Query(ctx, query,
		req.TenantID, string(req.Modality), pgvector.NewVector(req.Vector), req.Limit,
	)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	neighbors, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Neighbor, error) {
		var n domain.Neighbor
		var modality string
		err := row.Scan(&n.ProductID, &n.ProductName, &modality, &n.StorageKey, &n.ThumbnailKey, &n.TsMs, &n.Score)
		n.Modality = domain.Modality(modality)
		return n, err
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return neighbors, nil
}

// SetProductActive ничего не делает: фильтр по активности выполняется через products.
func (r *EmbeddingRepo) SetProductActive(context.Context, string, int64, bool) error {
	return nil
}
