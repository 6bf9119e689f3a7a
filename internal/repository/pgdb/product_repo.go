package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

const productColumns = `id, tenant_id, sku, name, price, is_active, created_at, updated_at`

// ProductRepo реализует каталог товаров поверх PostgreSQL.
type ProductRepo struct {
	pool *pgxpool.Pool
	conv converter.ProductConverter
}

func NewProductRepo(pool *pgxpool.Pool, conv converter.ProductConverter) *ProductRepo {
	return &ProductRepo{
		pool: pool,
		conv: conv,
	}
}

// Upsert идемпотентно создаёт товар по (tenant_id, sku).
// У существующего товара обновляется только явно заданное имя, цена не трогается.
func (p *ProductRepo) Upsert(ctx context.Context, product *domain.Product) (*domain.Product, error) {
	// VALUES ($1, $2, $3, $4) tenant_id, sku, name, price
	query := `
		WITH upsert AS (
		INSERT INTO products (tenant_id, sku, name, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, sku)
		DO UPDATE SET
			name = EXCLUDED.name,
			updated_at = NOW()
		WHERE
			EXCLUDED.name <> EXCLUDED.sku AND
			products.name IS DISTINCT FROM EXCLUDED.name
		RETURNING ` + productColumns + `
		)
		SELECT ` + productColumns + ` FROM upsert

		UNION ALL

		SELECT ` + productColumns + `
		FROM products
		WHERE tenant_id = $1 AND sku = $2
		  AND NOT EXISTS (SELECT 1 FROM upsert);
	`

	model, err := scanProduct(conn(ctx, p.pool).QueryRow(ctx, query,
		product.TenantID, product.Sku, product.Name, product.Price,
	))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(model), nil
}

func (p *ProductRepo) GetBySku(ctx context.Context, tenantID, sku string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND sku = $2`

	model, err := scanProduct(conn(ctx, p.pool).QueryRow(ctx, query, tenantID, sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return p.conv.ToEntity(model), nil
}

// GetProductsInfo возвращает информацию о товарах тенанта по их идентификаторам.
func (p *ProductRepo) GetProductsInfo(ctx context.Context, tenantID string, ids []int64) ([]usecase.ProductInfo, error) {
	query := `
		SELECT id, tenant_id, sku, name, price, is_active
		FROM products
		WHERE tenant_id = $1 AND id = ANY($2)
	`

	rows, err := conn(ctx, p.pool).Query(ctx, query, tenantID, ids)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]usecase.ProductInfo, 0, len(ids))
	for rows.Next() {
		var info usecase.ProductInfo
		if err := rows.Scan(&info.ID, &info.TenantID, &info.Sku, &info.Name, &info.Price, &info.IsActive); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		result = append(result, info)
	}

	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}

func (p *ProductRepo) SetActive(ctx context.Context, tenantID string, productID int64, active bool) error {
	query := `
		UPDATE products
		SET is_active = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`

	tag, err := conn(ctx, p.pool).Exec(ctx, query, tenantID, productID, active)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if tag.RowsAffected() == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrProductNotFound)
	}

	return nil
}

func scanProduct(row pgx.Row) (*converter.ProductModel, error) {
	var model converter.ProductModel
	err := row.Scan(
		&model.ID, &model.TenantID, &model.Sku, &model.Name, &model.Price,
		&model.IsActive, &model.CreatedAt, &model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &model, nil
}
