package clients

import (
	"context"
	"fmt"

	config "github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

// Поля payload, по которым фильтруется поиск
const (
	QdrantFieldTenantID  = "tenant_id"
	QdrantFieldModality  = "modality"
	QdrantFieldIsActive  = "is_active"
	QdrantFieldProductID = "product_id"
)

type QdrantClient struct {
	Client *qdrant.Client
	cfg    *config.QdrantCfg
}

func NewQdrantClient(cfg *config.QdrantCfg) (*QdrantClient, error) {
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.ApiKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &QdrantClient{
		Client: qdrantClient,
		cfg:    cfg,
	}, nil
}

// EnsureCollection создаёт коллекцию эмбеддингов и индексы полей фильтрации.
// Векторы хранятся нормализованными, метрика Dot.
func EnsureCollection(ctx context.Context, client *QdrantClient) error {
	name := client.cfg.QdrantCollectionName

	exists, err := client.Client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := client.Client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     client.cfg.VectorSize,
			Distance: qdrant.Distance_Dot,
		}),
	}); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := []struct {
		field string
		typ   qdrant.FieldType
	}{
		{field: QdrantFieldTenantID, typ: qdrant.FieldType_FieldTypeKeyword},
		{field: QdrantFieldModality, typ: qdrant.FieldType_FieldTypeKeyword},
		{field: QdrantFieldIsActive, typ: qdrant.FieldType_FieldTypeBool},
		{field: QdrantFieldProductID, typ: qdrant.FieldType_FieldTypeInteger},
	}
	for _, idx := range indexes {
		if _, err := client.Client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      idx.field,
			FieldType:      idx.typ.Enum(),
		}); err != nil {
			return fmt.Errorf("failed to create %s index: %w", idx.field, err)
		}
	}

	return nil
}

// Ping проверяет доступность Qdrant.
func (c *QdrantClient) Ping(ctx context.Context) error {
	if _, err := c.Client.HealthCheck(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
