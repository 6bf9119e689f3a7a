package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

const assetColumns = `id, tenant_id, product_id, sku, kind, storage_key, thumbnail_key, content_type,
	size, original_name, embedding_status, embedding_error, created_at, updated_at`

// AssetRepo хранит записи о загруженных медиа и статус их индексации.
type AssetRepo struct {
	pool *pgxpool.Pool
	conv converter.AssetConverter
}

func NewAssetRepo(pool *pgxpool.Pool, conv converter.AssetConverter) *AssetRepo {
	return &AssetRepo{
		pool: pool,
		conv: conv,
	}
}

func (a *AssetRepo) Create(ctx context.Context, asset *domain.Asset) (*domain.Asset, error) {
	model := a.conv.ToModel(asset)
	query := `
		INSERT INTO assets (
			tenant_id, product_id, sku, kind, storage_key, thumbnail_key,
			content_type, size, original_name, embedding_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + assetColumns

	created, err := scanAsset(conn(ctx, a.pool).QueryRow(ctx, query,
		model.TenantID,
		model.ProductID,
		model.Sku,
		model.Kind,
		model.StorageKey,
		model.ThumbnailKey,
		model.ContentType,
		model.Size,
		model.OriginalName,
		model.EmbeddingStatus,
	))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return a.conv.ToEntity(created), nil
}

func (a *AssetRepo) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	model, err := scanAsset(conn(ctx, a.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrAssetNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return a.conv.ToEntity(model), nil
}

// UpdateStatus меняет статус индексации. Пустой errText очищает прошлую ошибку.
func (a *AssetRepo) UpdateStatus(ctx context.Context, id int64, status domain.EmbeddingStatus, errText string) error {
	query := `
		UPDATE assets
		SET embedding_status = $2, embedding_error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`

	tag, err := conn(ctx, a.pool).Exec(ctx, query, id, string(status), errText)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrAssetNotFound)
	}

	return nil
}

func scanAsset(row pgx.Row) (*converter.AssetModel, error) {
	var model converter.AssetModel
	err := row.Scan(
		&model.ID,
		&model.TenantID,
		&model.ProductID,
		&model.Sku,
		&model.Kind,
		&model.StorageKey,
		&model.ThumbnailKey,
		&model.ContentType,
		&model.Size,
		&model.OriginalName,
		&model.EmbeddingStatus,
		&model.EmbeddingError,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &model, nil
}
