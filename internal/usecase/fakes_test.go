package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/pkg/e"
)

// memIndex — индекс в памяти, считает score как отрицательное скалярное произведение.
type memIndex struct {
	mu       sync.Mutex
	items    []domain.Embedding
	inactive map[int64]bool
	delay    time.Duration
	err      error
	upserts  int
}

func newMemIndex() *memIndex {
	return &memIndex{inactive: map[int64]bool{}}
}

func (m *memIndex) NearestNeighbors(ctx context.Context, req *NearestNeighborsReq) ([]domain.Neighbor, error) {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Neighbor
	for _, emb := range m.items {
		if emb.TenantID != req.TenantID || emb.Modality != req.Modality || m.inactive[emb.ProductID] {
			continue
		}
		out = append(out, domain.Neighbor{
			ProductID:    emb.ProductID,
			Modality:     emb.Modality,
			StorageKey:   emb.StorageKey,
			ThumbnailKey: emb.ThumbnailKey,
			TsMs:         emb.TsMs,
			Score:        -domain.Dot(emb.Vector, req.Vector),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}

	return out, nil
}

func (m *memIndex) Upsert(_ context.Context, emb *domain.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upserts++
	for i, cur := range m.items {
		if cur.AssetID == emb.AssetID && cur.Modality == emb.Modality && cur.TsMs == emb.TsMs {
			m.items[i] = *emb
			return nil
		}
	}
	m.items = append(m.items, *emb)

	return nil
}

func (m *memIndex) SetProductActive(_ context.Context, _ string, productID int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.inactive[productID] = !active
	return nil
}

func (m *memIndex) add(tenantID string, productID int64, modality domain.Modality, key string, vector []float32) {
	v, _ := domain.L2Normalize(vector)
	m.items = append(m.items, domain.Embedding{
		TenantID:     tenantID,
		ProductID:    productID,
		AssetID:      int64(len(m.items) + 1),
		Modality:     modality,
		StorageKey:   key,
		ThumbnailKey: thumbFor(modality, key),
		Vector:       v,
	})
}

func thumbFor(modality domain.Modality, key string) string {
	if modality == domain.ModalityImage {
		return key + ".thumb.jpg"
	}
	return ""
}

// fakeURLs выпускает «подписанные» ссылки вида signed://key.
type fakeURLs struct {
	mu     sync.Mutex
	minted []string
	fail   bool
}

func (f *fakeURLs) Mint(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.fail {
		return "", e.WrapKind(e.ErrCredentialMint, errors.New("no credentials"))
	}
	f.mu.Lock()
	f.minted = append(f.minted, key)
	f.mu.Unlock()

	return "signed://" + key, nil
}

func (f *fakeURLs) MintOrDirect(ctx context.Context, key string, ttl time.Duration) string {
	signed, err := f.Mint(ctx, key, ttl)
	if err != nil {
		return "direct://" + key
	}
	return signed
}

func (f *fakeURLs) IsExpired(string) bool { return false }

func (f *fakeURLs) RefreshBatch(_ context.Context, items []MediaURLs) []RefreshResult {
	out := make([]RefreshResult, len(items))
	for i, item := range items {
		f.mu.Lock()
		f.minted = append(f.minted, item.Key)
		f.mu.Unlock()
		item.URL = "signed://" + item.Key
		out[i] = RefreshResult{Item: item, Refreshed: true}
	}
	return out
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[int64]*domain.Product
	nextID   int64
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[int64]*domain.Product{}}
}

func (f *fakeCatalog) Upsert(_ context.Context, p *domain.Product) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	for _, cur := range f.products {
		if cur.TenantID == p.TenantID && cur.Sku == p.Sku {
			return cur, nil
		}
	}
	f.nextID++
	cp := *p
	cp.ID = f.nextID
	f.products[cp.ID] = &cp

	return &cp, nil
}

func (f *fakeCatalog) GetBySku(_ context.Context, tenantID, sku string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, cur := range f.products {
		if cur.TenantID == tenantID && cur.Sku == sku {
			return cur, nil
		}
	}
	return nil, e.ErrProductNotFound
}

func (f *fakeCatalog) GetProductsInfo(_ context.Context, tenantID string, ids []int64) ([]ProductInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	var out []ProductInfo
	for _, id := range ids {
		p, ok := f.products[id]
		if !ok || p.TenantID != tenantID {
			continue
		}
		out = append(out, ProductInfo{ID: p.ID, TenantID: p.TenantID, Sku: p.Sku, Name: p.Name, Price: p.Price, IsActive: p.IsActive})
	}
	return out, nil
}

func (f *fakeCatalog) SetActive(_ context.Context, _ string, productID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[productID]
	if !ok {
		return e.ErrProductNotFound
	}
	p.IsActive = active
	return nil
}

func (f *fakeCatalog) put(p domain.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.products[p.ID] = &p
	f.nextID = max(f.nextID, p.ID)
}

type fakeAssets struct {
	mu       sync.Mutex
	assets   map[int64]*domain.Asset
	history  map[int64][]domain.EmbeddingStatus
	nextID   int64
	createFn func(*domain.Asset) error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{assets: map[int64]*domain.Asset{}, history: map[int64][]domain.EmbeddingStatus{}}
}

func (f *fakeAssets) Create(_ context.Context, a *domain.Asset) (*domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createFn != nil {
		if err := f.createFn(a); err != nil {
			return nil, err
		}
	}
	f.nextID++
	cp := *a
	cp.ID = f.nextID
	f.assets[cp.ID] = &cp
	f.history[cp.ID] = []domain.EmbeddingStatus{cp.EmbeddingStatus}

	return &cp, nil
}

func (f *fakeAssets) GetByID(_ context.Context, id int64) (*domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[id]
	if !ok {
		return nil, e.ErrAssetNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssets) UpdateStatus(_ context.Context, id int64, status domain.EmbeddingStatus, errText string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.assets[id]
	if !ok {
		return e.ErrAssetNotFound
	}
	a.EmbeddingStatus = status
	a.EmbeddingError = errText
	f.history[id] = append(f.history[id], status)
	return nil
}

func (f *fakeAssets) statuses(id int64) []domain.EmbeddingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]domain.EmbeddingStatus(nil), f.history[id]...)
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []*OutboxEvent
}

func (f *fakeOutbox) Create(_ context.Context, ev *OutboxEvent) (*OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ev.ID = int64(len(f.events) + 1)
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeOutbox) GetAndMarkAsProcessing(context.Context, int) ([]*OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkAsProcessed(context.Context, int64) error { return nil }

func (f *fakeOutbox) types() []OutboxEventType {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]OutboxEventType, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.EventType
	}
	return out
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut map[string]bool
	puts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, failPut: map[string]bool{}}
}

func (f *fakeStore) Put(_ context.Context, req *PutObjectReq) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.puts++
	for substr := range f.failPut {
		if strings.Contains(req.Key, substr) {
			return errors.New("storage unavailable")
		}
	}
	f.objects[req.Key] = req.Data
	return nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[key]
	if !ok {
		return nil, e.ErrNotFound
	}
	return data, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.objects, key)
	return nil
}

func (f *fakeStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "signed://" + key, nil
}

func (f *fakeStore) DirectURL(key string) string { return "direct://" + key }

type fakeCleanup struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeCleanup) CleanupObjects(keys []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keys = append(f.keys, keys...)
}

type fakePreprocessor struct {
	err error
}

func (f *fakePreprocessor) Prepare(_ context.Context, req *PrepareAssetReq) (*PreparedAsset, error) {
	if f.err != nil {
		return nil, f.err
	}
	res := &PreparedAsset{Data: req.Data, ContentType: req.ContentType}
	if req.Kind == domain.AssetKindImage {
		res.Thumbnail = []byte("thumb")
		res.ThumbnailContentType = "image/jpeg"
	}
	return res, nil
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
	mu     sync.Mutex
}

func (f *fakeEmbedder) EmbedImage(context.Context, *EmbedImageReq) (*EmbedImageRes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &EmbedImageRes{Vector: f.vector, Model: "clip-test", Device: "cpu"}, nil
}

type fakeEncoder struct{}

func (fakeEncoder) EncodeAssetEvent(ev *AssetEvent) ([]byte, error) {
	return []byte(string(ev.Type) + ":" + ev.EventID), nil
}

// fakeTx выполняет fn без транзакции.
type fakeTx struct{}

func (fakeTx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
