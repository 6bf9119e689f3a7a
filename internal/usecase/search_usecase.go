package usecase

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/metrics"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxQueryImageSize — максимальный размер изображения для поиска
	MaxQueryImageSize = 10 << 20

	enrichConcurrency = 8
)

var (
	tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	queryImageTypes = map[string]struct{}{
		"image/jpeg": {},
		"image/jpg":  {},
		"image/png":  {},
		"image/webp": {},
	}
)

// SearchParams — настройки поиска.
type SearchParams struct {
	Dimension     int
	DefaultLimit  int
	MaxLimit      int
	QueryTimeout  time.Duration
	MinSimilarity float64
	FallbackSize  int
	PreviewTTL    time.Duration
}

// SearchUseCase реализует поиск похожих товаров по изображениям и кадрам видео.
type SearchUseCase struct {
	index     VectorIndex
	urls      URLManager
	catalog   CatalogRepository
	cacheRepo CacheRepository
	embedder  Embedder
	params    SearchParams
	logger    logger.Logger
}

func NewSearchUC(
	index VectorIndex,
	urls URLManager,
	catalog CatalogRepository,
	cacheRepo CacheRepository,
	embedder Embedder,
	params SearchParams,
	logger logger.Logger,
) *SearchUseCase {
	return &SearchUseCase{
		index:     index,
		urls:      urls,
		catalog:   catalog,
		cacheRepo: cacheRepo,
		embedder:  embedder,
		params:    params,
		logger:    logger,
	}
}

// Search ищет товары тенанта, похожие на вектор запроса.
//
// Оба запроса к индексу (изображения и кадры видео) выполняются параллельно,
// кандидаты объединяются по товару с сохранением лучшего score.
func (s *SearchUseCase) Search(ctx context.Context, req *SearchReq) (res *SearchRes, err error) {
	const op = "SearchUseCase.Search"

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(searchResultLabel(err)).Observe(time.Since(start).Seconds())
	}()

	if err := s.validate(req); err != nil {
		return nil, e.Wrap(op, err)
	}
	limit := s.limit(req.Limit)

	candidates, err := s.queryNeighbors(ctx, req.TenantID, req.Vector, limit*2)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	products := s.productsInfo(ctx, req.TenantID, candidates)
	candidates = applyCatalog(candidates, products)

	fused := fuseByProduct(candidates)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	results, fallback := s.applyThreshold(fused)
	if fallback {
		metrics.SearchFallbackTotal.Inc()
		s.logger.Debugf("%s: no result reached %.0f%%, returning top %d, tenant_id: %s", op, s.params.MinSimilarity, len(results), req.TenantID)
	}

	matches := make([]domain.MatchResult, len(results))
	for i, n := range results {
		matches[i] = domain.NewMatchResult(n)
		if info, ok := products[n.ProductID]; ok {
			matches[i].Sku = info.Sku
			price := info.Price
			matches[i].Price = &price
			if matches[i].ProductName == "" {
				matches[i].ProductName = info.Name
			}
		}
	}
	s.enrichPreviews(ctx, matches)

	return &SearchRes{Results: matches, Fallback: fallback}, nil
}

// SearchByImage получает вектор изображения у сервиса эмбеддингов и выполняет Search.
func (s *SearchUseCase) SearchByImage(ctx context.Context, req *SearchByImageReq) (*SearchRes, error) {
	const op = "SearchUseCase.SearchByImage"

	if strings.TrimSpace(req.TenantID) == "" {
		return nil, e.Wrap(op, e.ErrTenantRequired)
	}
	if len(req.Data) == 0 {
		return nil, e.Wrap(op, e.ErrEmptyFile)
	}
	if len(req.Data) > MaxQueryImageSize {
		return nil, e.Wrap(op, e.ErrFileTooLarge)
	}
	if _, ok := queryImageTypes[strings.ToLower(req.ContentType)]; !ok {
		return nil, e.Wrap(op, e.ErrUnsupportedMediaType)
	}

	emb, err := s.embedder.EmbedImage(ctx, &EmbedImageReq{
		Data:        req.Data,
		ContentType: req.ContentType,
		FileName:    req.FileName,
	})
	if err != nil {
		return nil, e.Wrap(op, e.WrapKind(e.ErrEmbedderUnavailable, err))
	}

	res, err := s.Search(ctx, NewSearchReq(req.TenantID, emb.Vector, req.Limit))
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	res.Model = emb.Model

	return res, nil
}

func (s *SearchUseCase) validate(req *SearchReq) error {
	if strings.TrimSpace(req.TenantID) == "" {
		return e.ErrTenantRequired
	}

	if !tenantIDPattern.MatchString(req.TenantID) {
		return e.ErrMalformedTenant
	}

	if len(req.Vector) != s.params.Dimension {
		return e.ErrInvalidVectorLength
	}

	return nil
}

func (s *SearchUseCase) limit(requested int) int {
	if requested <= 0 {
		return s.params.DefaultLimit
	}

	return min(requested, s.params.MaxLimit)
}

// queryNeighbors параллельно запрашивает ближайших соседей среди изображений и кадров видео.
// Любая ошибка или таймаут делают поиск недоступным.
func (s *SearchUseCase) queryNeighbors(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.Neighbor, error) {
	var images, frames []domain.Neighbor

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		images, err = s.nearest(gCtx, NewNearestNeighborsReq(tenantID, domain.ModalityImage, vector, k))
		return err
	})
	g.Go(func() error {
		var err error
		frames, err = s.nearest(gCtx, NewNearestNeighborsReq(tenantID, domain.ModalityVideoFrame, vector, k))
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, e.WrapKind(e.ErrSearchUnavailable, err)
	}

	// изображения идут первыми: при равном score побеждает изображение
	return append(images, frames...), nil
}

func (s *SearchUseCase) nearest(ctx context.Context, req *NearestNeighborsReq) ([]domain.Neighbor, error) {
	if s.params.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.params.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	neighbors, err := s.index.NearestNeighbors(ctx, req)
	metrics.IndexQueryDuration.WithLabelValues(string(req.Modality)).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = errors.Join(err, ctxErr)
		}
		return nil, e.Wrap(string(req.Modality), err)
	}

	return neighbors, nil
}

// productsInfo возвращает карточки товаров кандидатов: сначала из кэша, затем из каталога.
// При недоступности каталога возвращает то, что удалось получить.
func (s *SearchUseCase) productsInfo(ctx context.Context, tenantID string, candidates []domain.Neighbor) map[int64]ProductInfo {
	const op = "SearchUseCase.productsInfo"

	if len(candidates) == 0 || s.catalog == nil {
		return nil
	}

	ids := uniqueProductIDs(candidates)
	result := make(map[int64]ProductInfo, len(ids))

	var missing []int64
	if s.cacheRepo != nil {
		cached, err := s.cacheRepo.GetProducts(ctx, tenantID, ids)
		if err != nil {
			s.logger.Warnf("%s: cache lookup failed: %v", op, err)
		}
		for _, id := range ids {
			if info, ok := cached[id]; ok {
				result[id] = info
			} else {
				missing = append(missing, id)
			}
		}
	} else {
		missing = ids
	}

	if len(missing) == 0 {
		return result
	}

	fromDB, err := s.catalog.GetProductsInfo(ctx, tenantID, missing)
	if err != nil {
		s.logger.Warnf("%s: catalog lookup failed, results are not enriched: %v", op, err)
		return result
	}
	for _, info := range fromDB {
		result[info.ID] = info
	}

	if s.cacheRepo != nil && len(fromDB) > 0 {
		// Фоновое добавление товаров в кэш
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			if err := s.cacheRepo.SetProducts(bgCtx, tenantID, fromDB); err != nil {
				s.logger.Warnf("%s: failed to cache products in background: %v", op, err)
			}
		}()
	}

	return result
}

// applyThreshold оставляет результаты не ниже порога похожести.
// Если таких нет, возвращает первые FallbackSize результатов.
func (s *SearchUseCase) applyThreshold(fused []domain.Neighbor) ([]domain.Neighbor, bool) {
	passed := make([]domain.Neighbor, 0, len(fused))
	for _, n := range fused {
		if domain.SimilarityPercent(n.Score) >= s.params.MinSimilarity {
			passed = append(passed, n)
		}
	}

	if len(passed) > 0 || len(fused) == 0 {
		return passed, false
	}

	return fused[:min(s.params.FallbackSize, len(fused))], true
}

// enrichPreviews выпускает ссылки превью. Абсолютные http(s)-ссылки отдаются как есть.
func (s *SearchUseCase) enrichPreviews(ctx context.Context, matches []domain.MatchResult) {
	var g errgroup.Group
	g.SetLimit(enrichConcurrency)

	for i := range matches {
		ref := matches[i].Match.PreviewRef
		if ref == "" {
			continue
		}
		if isAbsoluteURL(ref) {
			matches[i].Match.PreviewURL = ref
			continue
		}

		g.Go(func() error {
			matches[i].Match.PreviewURL = s.urls.MintOrDirect(ctx, ref, s.params.PreviewTTL)
			return nil
		})
	}

	_ = g.Wait()
}

// applyCatalog отбрасывает кандидатов неактивных товаров и подставляет имя товара.
// Кандидаты без карточки остаются: индекс уже отфильтровал их по активности.
func applyCatalog(candidates []domain.Neighbor, products map[int64]ProductInfo) []domain.Neighbor {
	if len(products) == 0 {
		return candidates
	}

	out := candidates[:0]
	for _, n := range candidates {
		info, ok := products[n.ProductID]
		if ok && !info.IsActive {
			continue
		}
		if ok && n.ProductName == "" {
			n.ProductName = info.Name
		}
		out = append(out, n)
	}

	return out
}

// fuseByProduct оставляет по одному кандидату на товар с наименьшим score.
// При равенстве сохраняется кандидат, встретившийся раньше.
// Результат отсортирован по возрастанию score, затем по ID товара.
func fuseByProduct(candidates []domain.Neighbor) []domain.Neighbor {
	best := make(map[int64]int, len(candidates))
	fused := make([]domain.Neighbor, 0, len(candidates))

	for _, n := range candidates {
		idx, ok := best[n.ProductID]
		if !ok {
			best[n.ProductID] = len(fused)
			fused = append(fused, n)
			continue
		}
		if rankScore(n.Score) < rankScore(fused[idx].Score) {
			fused[idx] = n
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		si, sj := rankScore(fused[i].Score), rankScore(fused[j].Score)
		if si != sj {
			return si < sj
		}
		return fused[i].ProductID < fused[j].ProductID
	})

	return fused
}

// rankScore ставит NaN в конец выдачи.
func rankScore(score float64) float64 {
	if math.IsNaN(score) {
		return math.Inf(1)
	}

	return score
}

func uniqueProductIDs(candidates []domain.Neighbor) []int64 {
	seen := make(map[int64]struct{}, len(candidates))
	ids := make([]int64, 0, len(candidates))
	for _, n := range candidates {
		if _, ok := seen[n.ProductID]; ok {
			continue
		}
		seen[n.ProductID] = struct{}{}
		ids = append(ids, n.ProductID)
	}

	return ids
}

func isAbsoluteURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func searchResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, e.ErrValidation):
		return "validation"
	case errors.Is(err, e.ErrSearchUnavailable), errors.Is(err, e.ErrEmbedderUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
