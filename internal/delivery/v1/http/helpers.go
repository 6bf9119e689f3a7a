package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jimlawless/whereami"
)

const maxJSONBody = 4 << 20

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// ToHTTPResponse переводит категорию ошибки в HTTP-статус. Для 4xx клиент видит
// текст конкретной ошибки, для 5xx только общий текст категории.
func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrValidation):
		return http.StatusBadRequest, clientMessage(err)
	case errors.Is(err, e.ErrNotFound):
		return http.StatusNotFound, clientMessage(err)
	case errors.Is(err, e.ErrAssetDecode):
		return http.StatusUnprocessableEntity, e.ErrAssetDecode.Error()
	case errors.Is(err, e.ErrSearchUnavailable):
		return http.StatusServiceUnavailable, e.ErrSearchUnavailable.Error()
	case errors.Is(err, e.ErrEmbedderUnavailable):
		return http.StatusServiceUnavailable, e.ErrEmbedderUnavailable.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

// clientMessage отбрасывает служебный префикс с местом возникновения ошибки.
func clientMessage(err error) string {
	for _, known := range clientErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	return err.Error()
}

var clientErrors = []error{
	e.ErrTenantRequired,
	e.ErrInvalidTenant,
	e.ErrInvalidVectorLength,
	e.ErrTTLTooLong,
	e.ErrSkuRequired,
	e.ErrProductRequired,
	e.ErrUnsupportedMediaType,
	e.ErrUnsupportedAssetKind,
	e.ErrFileTooLarge,
	e.ErrEmptyFile,
	e.ErrExpectedMultipart,
	e.ErrExpectedJSON,
	e.ErrMissingFields,
	e.ErrTooManyItems,
	e.ErrNegativeTimestamp,
	e.ErrFrameKeyRequired,
	e.ErrAssetNotFound,
	e.ErrProductNotFound,
	e.ErrValidation,
	e.ErrNotFound,
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	WriteSuccess(w, code, NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return e.Wrap(err.Error(), e.ErrExpectedJSON)
	}

	return nil
}

func ensureMultipartForm(r *http.Request, maxMemory int64) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return e.Wrap(whereami.WhereAmI(), e.ErrFileTooLarge)
		}
		return e.Wrap(err.Error(), e.ErrExpectedMultipart)
	}

	return nil
}

// formFile возвращает первый файл из полей names.
func formFile(r *http.Request, names ...string) (*multipart.FileHeader, error) {
	for _, name := range names {
		if files := r.MultipartForm.File[name]; len(files) > 0 {
			return files[0], nil
		}
	}

	return nil, e.Wrap(strings.Join(names, "|"), e.ErrMissingFields)
}

// readFile читает файл и определяет его MIME-тип. Тип из заголовка части
// используется, только если по содержимому тип определить не удалось.
func readFile(fh *multipart.FileHeader, maxSize int64) ([]byte, string, error) {
	if maxSize > 0 && fh.Size > maxSize {
		return nil, "", e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	src, err := fh.Open()
	if err != nil {
		return nil, "", e.Wrap(whereami.WhereAmI(), err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", e.Wrap(whereami.WhereAmI(), err)
	}
	if len(data) == 0 {
		return nil, "", e.Wrap(fh.Filename, e.ErrEmptyFile)
	}

	mimeType := http.DetectContentType(data[:min(len(data), 512)])
	if mimeType == "application/octet-stream" {
		if header := fh.Header.Get("Content-Type"); header != "" {
			mimeType = header
		}
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	return data, mimeType, nil
}

// DTO

type searchRequest struct {
	Vector []float32 `json:"vector"`
	Limit  int       `json:"limit"`
}

type matchDTO struct {
	Modality   string `json:"modality"`
	StorageKey string `json:"storageKey,omitempty"`
	TsMs       *int64 `json:"tsMs,omitempty"`
	PreviewRef string `json:"previewRef,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
}

type searchResultDTO struct {
	ProductID         int64    `json:"productId"`
	ProductName       string   `json:"productName,omitempty"`
	Sku               string   `json:"sku,omitempty"`
	Price             *string  `json:"price,omitempty"`
	Score             float64  `json:"score"`
	SimilarityPercent float64  `json:"similarityPercent"`
	Match             matchDTO `json:"match"`
}

type searchResponse struct {
	Results  []searchResultDTO `json:"results"`
	Fallback bool              `json:"fallback"`
	Model    string            `json:"model,omitempty"`
}

func toSearchResponse(res *usecase.SearchRes) *searchResponse {
	out := &searchResponse{
		Results:  make([]searchResultDTO, 0, len(res.Results)),
		Fallback: res.Fallback,
		Model:    res.Model,
	}

	for _, r := range res.Results {
		dto := searchResultDTO{
			ProductID:         r.ProductID,
			ProductName:       r.ProductName,
			Sku:               r.Sku,
			Score:             r.Score,
			SimilarityPercent: r.SimilarityPercent,
			Match: matchDTO{
				Modality:   string(r.Match.Modality),
				StorageKey: r.Match.StorageKey,
				TsMs:       r.Match.TsMs,
				PreviewRef: r.Match.PreviewRef,
				PreviewURL: r.Match.PreviewURL,
			},
		}
		if r.Price != nil {
			price := r.Price.StringFixed(2)
			dto.Price = &price
		}
		out.Results = append(out.Results, dto)
	}

	return out
}

type assetDTO struct {
	ID              int64  `json:"id"`
	TenantID        string `json:"tenantId"`
	ProductID       int64  `json:"productId"`
	Sku             string `json:"sku"`
	Kind            string `json:"kind"`
	StorageKey      string `json:"storageKey"`
	ThumbnailKey    string `json:"thumbnailKey,omitempty"`
	ContentType     string `json:"contentType"`
	Size            int64  `json:"size"`
	EmbeddingStatus string `json:"embeddingStatus"`
}

type uploadResponse struct {
	Asset        assetDTO `json:"asset"`
	URL          string   `json:"url"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	EventID      string   `json:"eventId"`
}

func toUploadResponse(res *usecase.UploadAssetRes) *uploadResponse {
	a := res.Asset
	return &uploadResponse{
		Asset: assetDTO{
			ID:              a.ID,
			TenantID:        a.TenantID,
			ProductID:       a.ProductID,
			Sku:             a.Sku,
			Kind:            string(a.Kind),
			StorageKey:      a.StorageKey,
			ThumbnailKey:    a.ThumbnailKey,
			ContentType:     a.ContentType,
			Size:            a.Size,
			EmbeddingStatus: string(a.EmbeddingStatus),
		},
		URL:          res.URL,
		ThumbnailURL: res.ThumbnailURL,
		EventID:      res.EventID,
	}
}

type indexFrameRequest struct {
	TsMs     int64     `json:"tsMs"`
	FrameKey string    `json:"frameKey"`
	Vector   []float32 `json:"vector"`
	Model    string    `json:"model"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type refreshURLsRequest struct {
	Items []usecase.MediaURLs `json:"items"`
}

type refreshItemDTO struct {
	usecase.MediaURLs
	Refreshed bool   `json:"refreshed"`
	Error     string `json:"error,omitempty"`
}

type refreshURLsResponse struct {
	Items []refreshItemDTO `json:"items"`
}

func refreshErrorMessage(err error) string {
	if errors.Is(err, e.ErrForeignObjectKey) {
		return "object key belongs to another tenant"
	}

	return "refresh failed"
}

func toRefreshResponse(res *usecase.RefreshURLsRes) *refreshURLsResponse {
	out := &refreshURLsResponse{Items: make([]refreshItemDTO, 0, len(res.Results))}
	for _, r := range res.Results {
		item := refreshItemDTO{MediaURLs: r.Item, Refreshed: r.Refreshed}
		if r.Err != nil {
			item.Error = refreshErrorMessage(r.Err)
		}
		out.Items = append(out.Items, item)
	}

	return out
}

func parseKind(value, mimeType string) (domain.AssetKind, error) {
	if value != "" {
		if kind, ok := domain.ParseAssetKind(value); ok {
			return kind, nil
		}
		return "", e.ErrUnsupportedAssetKind
	}

	if kind, ok := domain.ParseAssetKind(mimeType); ok {
		return kind, nil
	}

	return "", e.ErrUnsupportedMediaType
}
