package pgdb

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/DRSN-tech/media-search/pkg/postgres"
	"github.com/DRSN-tech/media-search/pkg/tr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const migrationsURL = "file://../../../db/migrations"

// testPool подключается к базе из TEST_POSTGRES_* (расширение pgvector обязательно)
// и применяет миграции. Без TEST_POSTGRES_HOST тест пропускается.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	host := os.Getenv("TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("TEST_POSTGRES_HOST is not set")
	}

	db, err := postgres.Connect(context.Background(), &cfg.PGDBCfg{
		Host:     host,
		Port:     envOr("TEST_POSTGRES_PORT", "5432"),
		User:     envOr("TEST_POSTGRES_USER", "postgres"),
		Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
		DBName:   envOr("TEST_POSTGRES_DB", "postgres"),
		SSLMode:  envOr("TEST_POSTGRES_SSLMODE", "disable"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(context.Background()) })

	require.NoError(t, db.RunMigrations(migrationsURL, logger.NewNop()))

	return db.Pool
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// tenant возвращает уникальный тенант, чтобы тесты не пересекались по данным.
func tenant() string {
	return "it-" + uuid.NewString()[:8]
}

func createProduct(t *testing.T, repo *ProductRepo, tenantID, sku string) *domain.Product {
	t.Helper()

	p, err := repo.Upsert(context.Background(), domain.NewProduct(tenantID, sku, "Name "+sku, decimal.RequireFromString("19.90")))
	require.NoError(t, err)
	return p
}

func TestProductRepoUpsertIsIdempotent(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewProductRepo(pool, converter.NewProductConverterImpl())
	tenantID := tenant()

	first := createProduct(t, repo, tenantID, "sku-1")
	again, err := repo.Upsert(ctx, domain.NewProduct(tenantID, "sku-1", "sku-1", decimal.Zero))
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Name sku-1", again.Name)
	assert.True(t, again.Price.Equal(decimal.RequireFromString("19.90")))

	_, err = repo.GetBySku(ctx, tenant(), "sku-1")
	assert.ErrorIs(t, err, e.ErrProductNotFound)

	infos, err := repo.GetProductsInfo(ctx, tenant(), []int64{first.ID})
	require.NoError(t, err)
	assert.Empty(t, infos)

	assert.ErrorIs(t, repo.SetActive(ctx, tenant(), first.ID, false), e.ErrProductNotFound)
}

func TestAssetRepoStatusTransitions(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	tenantID := tenant()
	product := createProduct(t, NewProductRepo(pool, converter.NewProductConverterImpl()), tenantID, "sku-1")
	repo := NewAssetRepo(pool, converter.NewAssetConverterImpl())

	asset, err := repo.Create(ctx, domain.NewAsset(tenantID, product.ID, "sku-1", domain.AssetKindImage,
		"tenants/"+tenantID+"/a.png", "tenants/"+tenantID+"/a.jpg", "image/png", 10, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingPending, asset.EmbeddingStatus)

	require.NoError(t, repo.UpdateStatus(ctx, asset.ID, domain.EmbeddingProcessing, ""))
	require.NoError(t, repo.UpdateStatus(ctx, asset.ID, domain.EmbeddingFailed, "embedder unavailable"))

	got, err := repo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingFailed, got.EmbeddingStatus)
	assert.Equal(t, "embedder unavailable", got.EmbeddingError)

	require.NoError(t, repo.UpdateStatus(ctx, asset.ID, domain.EmbeddingCompleted, ""))
	got, err = repo.GetByID(ctx, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EmbeddingCompleted, got.EmbeddingStatus)
	assert.Empty(t, got.EmbeddingError)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, -1, domain.EmbeddingCompleted, ""), e.ErrAssetNotFound)
	_, err = repo.GetByID(ctx, -1)
	assert.ErrorIs(t, err, e.ErrAssetNotFound)
}

func TestEmbeddingRepoNearestNeighbors(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	tenantID := tenant()
	products := NewProductRepo(pool, converter.NewProductConverterImpl())
	index := NewEmbeddingRepo(pool)

	near := createProduct(t, products, tenantID, "near")
	far := createProduct(t, products, tenantID, "far")
	hidden := createProduct(t, products, tenantID, "hidden")
	foreign := createProduct(t, products, tenant(), "foreign")

	upsert := func(p *domain.Product, assetID int64, v []float32) {
		require.NoError(t, index.Upsert(ctx, &domain.Embedding{
			TenantID: p.TenantID, ProductID: p.ID, AssetID: assetID, Modality: domain.ModalityImage,
			StorageKey: "img", Vector: v,
		}))
	}
	upsert(near, near.ID*10, []float32{0, 1, 0})
	// повторная индексация того же изображения заменяет вектор
	upsert(near, near.ID*10, []float32{1, 0, 0})
	upsert(far, far.ID*10, []float32{0, 1, 0})
	upsert(hidden, hidden.ID*10, []float32{1, 0, 0})
	upsert(foreign, foreign.ID*10, []float32{1, 0, 0})

	require.NoError(t, products.SetActive(ctx, tenantID, hidden.ID, false))

	got, err := index.NearestNeighbors(ctx, usecase.NewNearestNeighborsReq(tenantID, domain.ModalityImage, []float32{0.5, 0, 0}, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, near.ID, got[0].ProductID)
	assert.InDelta(t, -0.5, got[0].Score, 1e-6)
	assert.Equal(t, "Name near", got[0].ProductName)
	assert.Equal(t, far.ID, got[1].ProductID)
	assert.InDelta(t, 0, got[1].Score, 1e-6)

	frames, err := index.NearestNeighbors(ctx, usecase.NewNearestNeighborsReq(tenantID, domain.ModalityVideoFrame, []float32{1, 0, 0}, 10))
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestOutboxClaimsAreDisjoint(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewOutboxEventRepo(pool, converter.NewOutboxEventConverterImpl())
	txManager := tr.NewManager(pool)

	ours := make(map[string]bool)
	require.NoError(t, txManager.Do(ctx, func(ctx context.Context) error {
		for i := 0; i < 6; i++ {
			eventID := uuid.NewString()
			ours[eventID] = true
			if _, err := repo.Create(ctx, usecase.NewOutboxEvent(eventID, usecase.EventAssetUploaded, "t/1", []byte("{}"))); err != nil {
				return err
			}
		}
		return nil
	}))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = make(map[string][]*usecase.OutboxEvent)
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := repo.GetAndMarkAsProcessing(ctx, 100)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, ev := range events {
				claimed[ev.EventID] = append(claimed[ev.EventID], ev)
				assert.Equal(t, usecase.Processing, ev.Status)
			}
		}()
	}
	wg.Wait()

	for eventID := range ours {
		require.Len(t, claimed[eventID], 1, eventID)
	}

	// события в processing не выдаются повторно, пока не истёк таймаут
	again, err := repo.GetAndMarkAsProcessing(ctx, 100)
	require.NoError(t, err)
	for _, ev := range again {
		assert.False(t, ours[ev.EventID], "event %s claimed twice", ev.EventID)
	}

	for eventID := range ours {
		require.NoError(t, repo.MarkAsProcessed(ctx, claimed[eventID][0].ID))
	}
}
