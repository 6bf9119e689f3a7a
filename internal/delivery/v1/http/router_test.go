package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/DRSN-tech/media-search/pkg/objkey"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 PNG
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01, 0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

type stubSearch struct {
	req      *usecase.SearchReq
	imageReq *usecase.SearchByImageReq
	res      *usecase.SearchRes
	err      error
}

func (s *stubSearch) Search(_ context.Context, req *usecase.SearchReq) (*usecase.SearchRes, error) {
	s.req = req
	return s.res, s.err
}

func (s *stubSearch) SearchByImage(_ context.Context, req *usecase.SearchByImageReq) (*usecase.SearchRes, error) {
	s.imageReq = req
	return s.res, s.err
}

type stubMedia struct {
	upload    *usecase.UploadAssetReq
	frame     *usecase.IndexFrameReq
	active    *usecase.SetProductActiveReq
	refresh   *usecase.RefreshURLsReq
	uploadRes *usecase.UploadAssetRes
	err       error
}

func (s *stubMedia) UploadAsset(_ context.Context, req *usecase.UploadAssetReq) (*usecase.UploadAssetRes, error) {
	s.upload = req
	return s.uploadRes, s.err
}

func (s *stubMedia) ProcessImageEmbedding(context.Context, int64) error { return s.err }

func (s *stubMedia) IndexVideoFrame(_ context.Context, req *usecase.IndexFrameReq) error {
	s.frame = req
	return s.err
}

func (s *stubMedia) RefreshURLs(_ context.Context, req *usecase.RefreshURLsReq) (*usecase.RefreshURLsRes, error) {
	s.refresh = req
	results := make([]usecase.RefreshResult, 0, len(req.Items))
	for _, item := range req.Items {
		if !objkey.BelongsToTenant(item.Key, req.TenantID) {
			results = append(results, usecase.RefreshResult{Item: item, Err: e.ErrForeignObjectKey})
			continue
		}
		item.URL = "signed://" + item.Key
		results = append(results, usecase.RefreshResult{Item: item, Refreshed: true})
	}
	return &usecase.RefreshURLsRes{Results: results}, s.err
}

func (s *stubMedia) SetProductActive(_ context.Context, req *usecase.SetProductActiveReq) error {
	s.active = req
	return s.err
}

func newTestRouter(search usecase.SearchUC, media usecase.MediaUC, checks map[string]HealthCheck) http.Handler {
	mux := chi.NewRouter()
	NewRouter(mux, logger.NewNop()).Init(search, media, 1<<20, checks)
	return mux
}

func do(t *testing.T, h http.Handler, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func multipartBody(t *testing.T, field, fileName string, data []byte, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, fileName)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestSearchRendersResults(t *testing.T) {
	price := decimal.RequireFromString("19.9")
	ts := int64(4200)
	search := &stubSearch{res: &usecase.SearchRes{
		Fallback: true,
		Results: []domain.MatchResult{{
			ProductID: 7, ProductName: "Lamp", Sku: "sku-7", Price: &price,
			Score: -0.4, SimilarityPercent: 70,
			Match: domain.MatchDescriptor{Modality: domain.ModalityVideoFrame, TsMs: &ts, PreviewURL: "https://cdn/frame.jpg"},
		}},
	}}
	h := newTestRouter(search, &stubMedia{}, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/search", bytes.NewBufferString(`{"vector":[0.1,0.2],"limit":5}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "t1", search.req.TenantID)
	assert.Equal(t, []float32{0.1, 0.2}, search.req.Vector)
	assert.Equal(t, 5, search.req.Limit)

	var got searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Results, 1)
	assert.True(t, got.Fallback)
	assert.Equal(t, "19.90", *got.Results[0].Price)
	assert.Equal(t, int64(4200), *got.Results[0].Match.TsMs)
	assert.Equal(t, "video_frame", got.Results[0].Match.Modality)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", e.Wrap("op", e.ErrInvalidVectorLength), http.StatusBadRequest},
		{"not found", e.Wrap("op", e.ErrProductNotFound), http.StatusNotFound},
		{"unavailable", e.Wrap("op", e.WrapKind(e.ErrSearchUnavailable, context.DeadlineExceeded)), http.StatusServiceUnavailable},
		{"malformed tenant", e.ErrMalformedTenant, http.StatusServiceUnavailable},
		{"embedder", e.WrapKind(e.ErrEmbedderUnavailable, errors.New("dial")), http.StatusServiceUnavailable},
		{"decode", e.WrapKind(e.ErrAssetDecode, errors.New("bad png")), http.StatusUnprocessableEntity},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&stubSearch{err: tt.err}, &stubMedia{}, nil)
			rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/search", bytes.NewBufferString(`{"vector":[1]}`), "application/json")

			assert.Equal(t, tt.code, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Message, "op:")
		})
	}
}

func TestSearchRejectsMalformedJSON(t *testing.T) {
	h := newTestRouter(&stubSearch{}, &stubMedia{}, nil)
	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/search", bytes.NewBufferString(`{"vector":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchByImage(t *testing.T) {
	search := &stubSearch{res: &usecase.SearchRes{Model: "clip"}}
	h := newTestRouter(search, &stubMedia{}, nil)

	body, ct := multipartBody(t, "image", "query.png", pngPixel, map[string]string{"limit": "3"})
	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/search/by-image", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "image/png", search.imageReq.ContentType)
	assert.Equal(t, 3, search.imageReq.Limit)
	assert.Equal(t, pngPixel, search.imageReq.Data)
}

func TestSearchByImageRequiresMultipart(t *testing.T) {
	h := newTestRouter(&stubSearch{}, &stubMedia{}, nil)
	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/search/by-image", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAsset(t *testing.T) {
	media := &stubMedia{uploadRes: &usecase.UploadAssetRes{
		Asset: &domain.Asset{ID: 1, TenantID: "t1", Sku: "sku-1", Kind: domain.AssetKindImage, EmbeddingStatus: domain.EmbeddingPending},
		URL:   "signed://a", EventID: "ev",
	}}
	h := newTestRouter(&stubSearch{}, media, nil)

	body, ct := multipartBody(t, "file", "Photo.PNG", pngPixel, map[string]string{"name": "Lamp", "mode": "optimize"})
	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/products/sku-1/media", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "sku-1", media.upload.Sku)
	assert.Equal(t, domain.AssetKindImage, media.upload.Kind)
	assert.Equal(t, "Photo.PNG", media.upload.OriginalName)
	assert.Equal(t, usecase.ModeOptimize, media.upload.Mode)
	assert.Equal(t, "Lamp", media.upload.ProductName)

	var got uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "pending", got.Asset.EmbeddingStatus)
	assert.Equal(t, "ev", got.EventID)
}

func TestUploadAssetRejectsUnknownKind(t *testing.T) {
	h := newTestRouter(&stubSearch{}, &stubMedia{}, nil)
	body, ct := multipartBody(t, "file", "a.png", pngPixel, map[string]string{"kind": "audio"})
	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/products/sku-1/media", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAssetTooLarge(t *testing.T) {
	h := newTestRouter(&stubSearch{}, &stubMedia{}, nil)
	body, ct := multipartBody(t, "file", "a.png", bytes.Repeat([]byte{1}, 3<<20), nil)
	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/products/sku-1/media", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexFrame(t *testing.T) {
	media := &stubMedia{}
	h := newTestRouter(&stubSearch{}, media, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/assets/42/frames",
		bytes.NewBufferString(`{"tsMs":1500,"frameKey":"frames/42/1500.jpg","vector":[1,0]}`), "application/json")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(42), media.frame.AssetID)
	assert.Equal(t, int64(1500), media.frame.TsMs)

	rec = do(t, h, http.MethodPost, "/api/v1/tenants/t1/assets/abc/frames", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetActive(t *testing.T) {
	media := &stubMedia{}
	h := newTestRouter(&stubSearch{}, media, nil)

	rec := do(t, h, http.MethodPut, "/api/v1/tenants/t1/products/sku-1/active", bytes.NewBufferString(`{"active":false}`), "application/json")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, media.active.Active)
	assert.Equal(t, "sku-1", media.active.Sku)

	rec = do(t, h, http.MethodPut, "/api/v1/tenants/t1/products/sku-1/active", bytes.NewBufferString(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshURLs(t *testing.T) {
	media := &stubMedia{}
	h := newTestRouter(&stubSearch{}, media, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/tenants/t1/media/refresh-urls",
		bytes.NewBufferString(`{"items":[{"id":"1","key":"tenants/t1/a.jpg"},{"id":"2","key":"tenants/t2/b.jpg","url":"old"}]}`),
		"application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", media.refresh.TenantID)

	var got refreshURLsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "signed://tenants/t1/a.jpg", got.Items[0].URL)
	assert.True(t, got.Items[0].Refreshed)

	assert.False(t, got.Items[1].Refreshed)
	assert.Equal(t, "old", got.Items[1].URL)
	assert.Equal(t, "object key belongs to another tenant", got.Items[1].Error)
}

func TestRefreshURLsIsTenantScoped(t *testing.T) {
	h := newTestRouter(&stubSearch{}, &stubMedia{}, nil)

	rec := do(t, h, http.MethodPost, "/api/v1/media/refresh-urls",
		bytes.NewBufferString(`{"items":[{"id":"1","key":"tenants/t1/a.jpg"}]}`), "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(&stubSearch{}, &stubMedia{}, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"index":    func(context.Context) error { return errors.New("down") },
	})

	rec := do(t, h, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"index":"down"`))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(&stubSearch{}, &stubMedia{}, nil)
	rec := do(t, h, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
