package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/metrics"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/DRSN-tech/media-search/pkg/objkey"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MediaParams — настройки загрузки и индексации медиа.
type MediaParams struct {
	Dimension       int
	Mode            PrepareMode
	MaxUploadBytes  int64
	URLTTL          time.Duration // TTL ссылок в ответе на загрузку, 0: по умолчанию
	MaxRefreshBatch int
	BackgroundLimit int           // параллельность фоновой индексации
	EmbedTimeout    time.Duration // таймаут фоновой индексации одного медиа
}

// MediaUseCase реализует загрузку медиа товаров, их индексацию и обновление ссылок.
type MediaUseCase struct {
	catalog      CatalogRepository
	assets       AssetRepository
	outbox       OutboxRepository
	cacheRepo    CacheRepository
	store        ObjectStore
	storageInfra StorageInfra
	index        VectorIndex
	preprocessor Preprocessor
	embedder     Embedder
	urls         URLManager
	encoder      EventEncoder
	txManager    TxManager
	params       MediaParams
	logger       logger.Logger

	bgSem chan struct{}
	bgWg  sync.WaitGroup
}

func NewMediaUC(
	catalog CatalogRepository,
	assets AssetRepository,
	outbox OutboxRepository,
	cacheRepo CacheRepository,
	store ObjectStore,
	storageInfra StorageInfra,
	index VectorIndex,
	preprocessor Preprocessor,
	embedder Embedder,
	urls URLManager,
	encoder EventEncoder,
	txManager TxManager,
	params MediaParams,
	logger logger.Logger,
) *MediaUseCase {
	return &MediaUseCase{
		catalog:      catalog,
		assets:       assets,
		outbox:       outbox,
		cacheRepo:    cacheRepo,
		store:        store,
		storageInfra: storageInfra,
		index:        index,
		preprocessor: preprocessor,
		embedder:     embedder,
		urls:         urls,
		encoder:      encoder,
		txManager:    txManager,
		params:       params,
		logger:       logger,
		bgSem:        make(chan struct{}, max(params.BackgroundLimit, 1)),
	}
}

// UploadAsset подготавливает медиа, сохраняет его и миниатюру в хранилище,
// регистрирует медиа в БД вместе с событием outbox и запускает индексацию изображения.
// Ошибка декодирования изображения прерывает загрузку целиком: ничего не сохраняется.
func (m *MediaUseCase) UploadAsset(ctx context.Context, req *UploadAssetReq) (res *UploadAssetRes, err error) {
	const op = "MediaUseCase.UploadAsset"

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.AssetsIngestedTotal.WithLabelValues(string(req.Kind), result).Inc()
	}()

	// Валидация данных
	if err = m.validateUpload(req); err != nil {
		return nil, e.Wrap(op, err)
	}

	mode := req.Mode
	if mode == "" {
		mode = m.params.Mode
	}

	prepared, err := m.preprocessor.Prepare(ctx, &PrepareAssetReq{
		Data:         req.Data,
		Kind:         req.Kind,
		OriginalName: req.OriginalName,
		ContentType:  req.ContentType,
		Mode:         mode,
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	storageKey := objkey.AssetKey(req.OriginalName, req.TenantID, req.Sku, string(req.Kind))
	var thumbnailKey string
	if len(prepared.Thumbnail) > 0 {
		thumbnailKey = objkey.ThumbnailKey(req.OriginalName, req.TenantID, req.Sku)
	}

	var (
		uploaded []string
		asset    *domain.Asset
		event    *OutboxEvent
	)
	// Если произошла ошибка, загруженные объекты удаляются в фоне
	defer func() {
		if err != nil && len(uploaded) > 0 {
			m.logger.Warnf("Cleaning up orphaned objects after failed upload. sku: %s, error: %v", req.Sku, e.Wrap(op, err))
			m.storageInfra.CleanupObjects(uploaded)
		}
	}()

	err = m.txManager.Do(ctx, func(ctx context.Context) error {
		// идемпотентное создание товара
		product, err := m.catalog.Upsert(ctx, domain.NewProduct(req.TenantID, req.Sku, productName(req), decimal.Zero))
		if err != nil {
			return err
		}

		if err := m.store.Put(ctx, NewPutObjectReq(storageKey, prepared.Data, prepared.ContentType)); err != nil {
			return err
		}
		uploaded = append(uploaded, storageKey)

		if thumbnailKey != "" {
			if err := m.store.Put(ctx, NewPutObjectReq(thumbnailKey, prepared.Thumbnail, prepared.ThumbnailContentType)); err != nil {
				return err
			}
			uploaded = append(uploaded, thumbnailKey)
		}

		asset, err = m.assets.Create(ctx, domain.NewAsset(
			req.TenantID, product.ID, req.Sku, req.Kind,
			storageKey, thumbnailKey, prepared.ContentType, int64(len(prepared.Data)), req.OriginalName,
		))
		if err != nil {
			return err
		}

		event, err = m.createEvent(ctx, EventAssetUploaded, asset)
		return err
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Удаление из кэша старых данных товара
	if m.cacheRepo != nil {
		if err := m.cacheRepo.DeleteProducts(ctx, req.TenantID, []int64{asset.ProductID}); err != nil {
			m.logger.Warnf("Failed to delete products from cache: %v", e.Wrap(op, err))
		}
	}

	res = &UploadAssetRes{
		Asset:   asset,
		URL:     m.urls.MintOrDirect(ctx, storageKey, m.params.URLTTL),
		EventID: event.EventID,
	}
	if thumbnailKey != "" {
		res.ThumbnailURL = m.urls.MintOrDirect(ctx, thumbnailKey, m.params.URLTTL)
	}

	if asset.Kind == domain.AssetKindImage && m.embedder != nil {
		m.indexInBackground(asset.ID)
	}

	return res, nil
}

// ProcessImageEmbedding вычисляет эмбеддинг изображения и сохраняет его в индекс.
// Статус медиа проходит pending → processing → completed | failed.
func (m *MediaUseCase) ProcessImageEmbedding(ctx context.Context, assetID int64) (err error) {
	const op = "MediaUseCase.ProcessImageEmbedding"

	asset, err := m.assets.GetByID(ctx, assetID)
	if err != nil {
		return e.Wrap(op, err)
	}
	if asset.Kind != domain.AssetKindImage {
		return e.Wrap(op, e.ErrUnsupportedAssetKind)
	}

	if err := m.assets.UpdateStatus(ctx, assetID, domain.EmbeddingProcessing, ""); err != nil {
		return e.Wrap(op, err)
	}

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			if statusErr := m.assets.UpdateStatus(context.WithoutCancel(ctx), assetID, domain.EmbeddingFailed, err.Error()); statusErr != nil {
				m.logger.Warnf("%s: failed to mark asset %d as failed: %v", op, assetID, statusErr)
			}
		}
		metrics.EmbeddingsTotal.WithLabelValues(string(domain.ModalityImage), result).Inc()
	}()

	data, err := m.store.Get(ctx, asset.StorageKey)
	if err != nil {
		return e.Wrap(op, err)
	}

	emb, err := m.embedder.EmbedImage(ctx, &EmbedImageReq{
		Data:        data,
		ContentType: asset.ContentType,
		FileName:    asset.OriginalName,
	})
	if err != nil {
		return e.Wrap(op, e.WrapKind(e.ErrEmbedderUnavailable, err))
	}

	vector, err := m.normalize(emb.Vector)
	if err != nil {
		return e.Wrap(op, err)
	}

	if err := m.index.Upsert(ctx, domain.NewImageEmbedding(asset, vector, emb.Model)); err != nil {
		return e.Wrap(op, err)
	}

	err = m.txManager.Do(ctx, func(ctx context.Context) error {
		if err := m.assets.UpdateStatus(ctx, assetID, domain.EmbeddingCompleted, ""); err != nil {
			return err
		}
		_, err := m.createEvent(ctx, EventAssetIndexed, asset)
		return err
	})
	if err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// IndexVideoFrame сохраняет эмбеддинг кадра видео, полученный от внешнего экстрактора кадров.
func (m *MediaUseCase) IndexVideoFrame(ctx context.Context, req *IndexFrameReq) (err error) {
	const op = "MediaUseCase.IndexVideoFrame"

	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.EmbeddingsTotal.WithLabelValues(string(domain.ModalityVideoFrame), result).Inc()
	}()

	if err := validateTenant(req.TenantID); err != nil {
		return e.Wrap(op, err)
	}
	if req.TsMs < 0 {
		return e.Wrap(op, e.ErrNegativeTimestamp)
	}
	if strings.TrimSpace(req.FrameKey) == "" {
		return e.Wrap(op, e.ErrFrameKeyRequired)
	}
	if len(req.Vector) != m.params.Dimension {
		return e.Wrap(op, e.ErrInvalidVectorLength)
	}

	asset, err := m.assets.GetByID(ctx, req.AssetID)
	if err != nil {
		return e.Wrap(op, err)
	}
	if asset.TenantID != req.TenantID {
		return e.Wrap(op, e.ErrAssetNotFound)
	}
	if asset.Kind != domain.AssetKindVideo {
		return e.Wrap(op, e.ErrUnsupportedAssetKind)
	}

	vector, err := m.normalize(req.Vector)
	if err != nil {
		return e.Wrap(op, err)
	}

	if err := m.index.Upsert(ctx, domain.NewFrameEmbedding(asset, req.FrameKey, req.TsMs, vector, req.Model)); err != nil {
		return e.Wrap(op, err)
	}

	return nil
}

// RefreshURLs перевыпускает истёкшие или неподписанные ссылки пачки медиа.
func (m *MediaUseCase) RefreshURLs(ctx context.Context, req *RefreshURLsReq) (*RefreshURLsRes, error) {
	const op = "MediaUseCase.RefreshURLs"

	if err := validateTenant(req.TenantID); err != nil {
		return nil, e.Wrap(op, err)
	}
	if m.params.MaxRefreshBatch > 0 && len(req.Items) > m.params.MaxRefreshBatch {
		return nil, e.Wrap(op, e.ErrTooManyItems)
	}

	// чужие ключи не подписываются: элемент возвращается без изменений с ошибкой
	results := make([]RefreshResult, len(req.Items))
	owned := make([]MediaURLs, 0, len(req.Items))
	positions := make([]int, 0, len(req.Items))
	for i, item := range req.Items {
		if !m.ownsKeys(req.TenantID, item) {
			m.logger.Warnf("%s: foreign object key, tenant_id: %s, id: %s, key: %s", op, req.TenantID, item.ID, item.Key)
			results[i] = RefreshResult{Item: item, Err: e.Wrap(op, e.ErrForeignObjectKey)}
			continue
		}
		owned = append(owned, item)
		positions = append(positions, i)
	}

	if len(owned) > 0 {
		for i, res := range m.urls.RefreshBatch(ctx, owned) {
			results[positions[i]] = res
		}
	}

	return &RefreshURLsRes{Results: results}, nil
}

// ownsKeys: заданные ключи элемента лежат под префиксом тенанта.
func (m *MediaUseCase) ownsKeys(tenantID string, item MediaURLs) bool {
	if item.Key != "" && !objkey.BelongsToTenant(item.Key, tenantID) {
		return false
	}
	if item.ThumbnailKey != "" && !objkey.BelongsToTenant(item.ThumbnailKey, tenantID) {
		return false
	}

	return true
}

// SetProductActive включает или скрывает товар в выдаче поиска.
func (m *MediaUseCase) SetProductActive(ctx context.Context, req *SetProductActiveReq) error {
	const op = "MediaUseCase.SetProductActive"

	if err := validateTenant(req.TenantID); err != nil {
		return e.Wrap(op, err)
	}
	if strings.TrimSpace(req.Sku) == "" {
		return e.Wrap(op, e.ErrSkuRequired)
	}

	product, err := m.catalog.GetBySku(ctx, req.TenantID, req.Sku)
	if err != nil {
		return e.Wrap(op, err)
	}

	if err := m.catalog.SetActive(ctx, req.TenantID, product.ID, req.Active); err != nil {
		return e.Wrap(op, err)
	}

	if err := m.index.SetProductActive(ctx, req.TenantID, product.ID, req.Active); err != nil {
		return e.Wrap(op, err)
	}

	if m.cacheRepo != nil {
		if err := m.cacheRepo.DeleteProducts(ctx, req.TenantID, []int64{product.ID}); err != nil {
			m.logger.Warnf("Failed to delete products from cache: %v", e.Wrap(op, err))
		}
	}

	return nil
}

// WaitForBackground ожидает завершения фоновой индексации с учётом таймаута завершения приложения.
func (m *MediaUseCase) WaitForBackground(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.bgWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background indexing did not finish: %w", ctx.Err())
	}
}

// indexInBackground запускает индексацию изображения вне запроса с ограничением параллельности.
func (m *MediaUseCase) indexInBackground(assetID int64) {
	const op = "MediaUseCase.indexInBackground"

	m.bgWg.Add(1)
	go func() {
		defer m.bgWg.Done()
		m.bgSem <- struct{}{}
		defer func() { <-m.bgSem }()

		ctx := context.Background()
		if m.params.EmbedTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.params.EmbedTimeout)
			defer cancel()
		}

		if err := m.ProcessImageEmbedding(ctx, assetID); err != nil {
			m.logger.Errorf(err, "%s: asset %d was not indexed", op, assetID)
		}
	}()
}

func (m *MediaUseCase) createEvent(ctx context.Context, eventType OutboxEventType, asset *domain.Asset) (*OutboxEvent, error) {
	ev := &AssetEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Asset:      asset,
	}

	payload, err := m.encoder.EncodeAssetEvent(ev)
	if err != nil {
		return nil, err
	}

	aggregateKey := fmt.Sprintf("%s/%d", asset.TenantID, asset.ProductID)
	return m.outbox.Create(ctx, NewOutboxEvent(ev.EventID, eventType, aggregateKey, payload))
}

func (m *MediaUseCase) normalize(vector []float32) ([]float32, error) {
	if len(vector) == 0 {
		return nil, e.ErrVectorEmbeddingEmpty
	}
	if len(vector) != m.params.Dimension {
		return nil, e.ErrInvalidVectorLength
	}

	normalized, ok := domain.L2Normalize(vector)
	if !ok {
		return nil, e.WrapKind(e.ErrValidation, e.ErrZeroVector)
	}

	return normalized, nil
}

func (m *MediaUseCase) validateUpload(req *UploadAssetReq) error {
	if err := validateTenant(req.TenantID); err != nil {
		return err
	}

	if strings.TrimSpace(req.Sku) == "" {
		return e.ErrSkuRequired
	}

	if req.Kind == "" {
		kind, ok := domain.ParseAssetKind(req.ContentType)
		if !ok {
			return e.ErrUnsupportedMediaType
		}
		req.Kind = kind
	}
	if req.Kind != domain.AssetKindImage && req.Kind != domain.AssetKindVideo {
		return e.ErrUnsupportedAssetKind
	}

	if len(req.Data) == 0 {
		return e.ErrEmptyFile
	}

	if m.params.MaxUploadBytes > 0 && int64(len(req.Data)) > m.params.MaxUploadBytes {
		return e.ErrFileTooLarge
	}

	return nil
}

func validateTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return e.ErrTenantRequired
	}
	if !tenantIDPattern.MatchString(tenantID) {
		return e.ErrInvalidTenant
	}

	return nil
}

func productName(req *UploadAssetReq) string {
	if name := strings.TrimSpace(req.ProductName); name != "" {
		return name
	}

	return req.Sku
}
