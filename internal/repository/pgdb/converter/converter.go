package converter

import (
	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
)

// ProductConverter преобразует Product между domain и моделью PostgreSQL.
type ProductConverter interface {
	ToModel(entity *domain.Product) *ProductModel
	ToEntity(model *ProductModel) *domain.Product
}

// AssetConverter преобразует Asset между domain и моделью PostgreSQL.
type AssetConverter interface {
	ToModel(entity *domain.Asset) *AssetModel
	ToEntity(model *AssetModel) *domain.Asset
}

// OutboxEventConverter преобразует OutboxEvent между usecase и моделью PostgreSQL.
type OutboxEventConverter interface {
	ToModel(entity *usecase.OutboxEvent) *OutboxEventModel
	ToEntity(model *OutboxEventModel) *usecase.OutboxEvent
	ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent
}

type ProductConverterImpl struct{}

func NewProductConverterImpl() *ProductConverterImpl {
	return &ProductConverterImpl{}
}

func (c *ProductConverterImpl) ToModel(entity *domain.Product) *ProductModel {
	if entity == nil {
		return nil
	}

	return &ProductModel{
		ID:        entity.ID,
		TenantID:  entity.TenantID,
		Sku:       entity.Sku,
		Name:      entity.Name,
		Price:     entity.Price,
		IsActive:  entity.IsActive,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}

func (c *ProductConverterImpl) ToEntity(model *ProductModel) *domain.Product {
	if model == nil {
		return nil
	}

	return &domain.Product{
		ID:        model.ID,
		TenantID:  model.TenantID,
		Sku:       model.Sku,
		Name:      model.Name,
		Price:     model.Price,
		IsActive:  model.IsActive,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

type AssetConverterImpl struct{}

func NewAssetConverterImpl() *AssetConverterImpl {
	return &AssetConverterImpl{}
}

func (c *AssetConverterImpl) ToModel(entity *domain.Asset) *AssetModel {
	if entity == nil {
		return nil
	}

	return &AssetModel{
		ID:              entity.ID,
		TenantID:        entity.TenantID,
		ProductID:       entity.ProductID,
		Sku:             entity.Sku,
		Kind:            string(entity.Kind),
		StorageKey:      entity.StorageKey,
		ThumbnailKey:    nullString(entity.ThumbnailKey),
		ContentType:     entity.ContentType,
		Size:            entity.Size,
		OriginalName:    entity.OriginalName,
		EmbeddingStatus: string(entity.EmbeddingStatus),
		EmbeddingError:  nullString(entity.EmbeddingError),
		CreatedAt:       entity.CreatedAt,
		UpdatedAt:       entity.UpdatedAt,
	}
}

func (c *AssetConverterImpl) ToEntity(model *AssetModel) *domain.Asset {
	if model == nil {
		return nil
	}

	return &domain.Asset{
		ID:              model.ID,
		TenantID:        model.TenantID,
		ProductID:       model.ProductID,
		Sku:             model.Sku,
		Kind:            domain.AssetKind(model.Kind),
		StorageKey:      model.StorageKey,
		ThumbnailKey:    fromNullString(model.ThumbnailKey),
		ContentType:     model.ContentType,
		Size:            model.Size,
		OriginalName:    model.OriginalName,
		EmbeddingStatus: domain.EmbeddingStatus(model.EmbeddingStatus),
		EmbeddingError:  fromNullString(model.EmbeddingError),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

type OutboxEventConverterImpl struct{}

func NewOutboxEventConverterImpl() *OutboxEventConverterImpl {
	return &OutboxEventConverterImpl{}
}

func (c *OutboxEventConverterImpl) ToModel(entity *usecase.OutboxEvent) *OutboxEventModel {
	if entity == nil {
		return nil
	}

	return &OutboxEventModel{
		ID:           entity.ID,
		EventID:      entity.EventID,
		EventType:    string(entity.EventType),
		AggregateKey: entity.AggregateKey,
		Payload:      entity.Payload,
		Status:       string(entity.Status),
		CreatedAt:    entity.CreatedAt,
		ProcessedAt:  entity.ProcessedAt,
	}
}

func (c *OutboxEventConverterImpl) ToEntity(model *OutboxEventModel) *usecase.OutboxEvent {
	if model == nil {
		return nil
	}

	return &usecase.OutboxEvent{
		ID:           model.ID,
		EventID:      model.EventID,
		EventType:    usecase.OutboxEventType(model.EventType),
		AggregateKey: model.AggregateKey,
		Payload:      model.Payload,
		Status:       usecase.OutboxStatus(model.Status),
		CreatedAt:    model.CreatedAt,
		ProcessedAt:  model.ProcessedAt,
	}
}

func (c *OutboxEventConverterImpl) ToArrEntity(models []*OutboxEventModel) []*usecase.OutboxEvent {
	entities := make([]*usecase.OutboxEvent, 0, len(models))
	for _, m := range models {
		entities = append(entities, c.ToEntity(m))
	}

	return entities
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func fromNullString(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
