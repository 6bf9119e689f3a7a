package http

import (
	"net/http"
	"strconv"

	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type MediaHandler struct {
	mediaUsecase   usecase.MediaUC
	maxUploadBytes int64
	logger         logger.Logger
}

func NewMediaHandler(mediaUsecase usecase.MediaUC, maxUploadBytes int64, logger logger.Logger) *MediaHandler {
	return &MediaHandler{mediaUsecase: mediaUsecase, maxUploadBytes: maxUploadBytes, logger: logger}
}

// uploadAsset сохраняет изображение или видео товара.
// Поля формы: file, kind (image|video, по умолчанию по MIME-типу), name, mode (preserve|optimize).
func (m *MediaHandler) uploadAsset(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 32 << 20

	r.Body = http.MaxBytesReader(w, r.Body, m.maxUploadBytes+(1<<20))
	if err := ensureMultipartForm(r, maxMemory); err != nil {
		m.logger.Warnf("%d upload: %v", http.StatusBadRequest, err)
		WriteError(w, err)
		return
	}

	fh, err := formFile(r, "file")
	if err != nil {
		WriteError(w, err)
		return
	}

	data, mimeType, err := readFile(fh, m.maxUploadBytes)
	if err != nil {
		WriteError(w, err)
		return
	}

	kind, err := parseKind(r.FormValue("kind"), mimeType)
	if err != nil {
		WriteError(w, err)
		return
	}

	res, err := m.mediaUsecase.UploadAsset(r.Context(), &usecase.UploadAssetReq{
		TenantID:     chi.URLParam(r, "tenantID"),
		Sku:          chi.URLParam(r, "sku"),
		ProductName:  r.FormValue("name"),
		Kind:         kind,
		OriginalName: fh.Filename,
		ContentType:  mimeType,
		Data:         data,
		Mode:         usecase.PrepareMode(r.FormValue("mode")),
	})
	if err != nil {
		m.logger.Warnf("upload: %v", err)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, toUploadResponse(res))
}

// indexFrame принимает эмбеддинг кадра видео от внешнего экстрактора кадров.
func (m *MediaHandler) indexFrame(w http.ResponseWriter, r *http.Request) {
	assetID, err := strconv.ParseInt(chi.URLParam(r, "assetID"), 10, 64)
	if err != nil {
		WriteError(w, e.Wrap("asset id", e.ErrMissingFields))
		return
	}

	var body indexFrameRequest
	if err := decodeJSON(w, r, &body); err != nil {
		WriteError(w, err)
		return
	}

	err = m.mediaUsecase.IndexVideoFrame(r.Context(), &usecase.IndexFrameReq{
		TenantID: chi.URLParam(r, "tenantID"),
		AssetID:  assetID,
		TsMs:     body.TsMs,
		FrameKey: body.FrameKey,
		Vector:   body.Vector,
		Model:    body.Model,
	})
	if err != nil {
		m.logger.Warnf("index frame: %v", err)
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// setActive включает или скрывает товар в выдаче поиска.
func (m *MediaHandler) setActive(w http.ResponseWriter, r *http.Request) {
	var body setActiveRequest
	if err := decodeJSON(w, r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if body.Active == nil {
		WriteError(w, e.Wrap("active", e.ErrMissingFields))
		return
	}

	err := m.mediaUsecase.SetProductActive(r.Context(), &usecase.SetProductActiveReq{
		TenantID: chi.URLParam(r, "tenantID"),
		Sku:      chi.URLParam(r, "sku"),
		Active:   *body.Active,
	})
	if err != nil {
		m.logger.Warnf("set active: %v", err)
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// refreshURLs перевыпускает истёкшие или почти истёкшие ссылки на медиа тенанта.
// Элементы с ключами вне префикса тенанта возвращаются без изменений с ошибкой.
func (m *MediaHandler) refreshURLs(w http.ResponseWriter, r *http.Request) {
	var body refreshURLsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		WriteError(w, err)
		return
	}

	res, err := m.mediaUsecase.RefreshURLs(r.Context(), &usecase.RefreshURLsReq{
		TenantID: chi.URLParam(r, "tenantID"),
		Items:    body.Items,
	})
	if err != nil {
		m.logger.Warnf("refresh urls: %v", err)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toRefreshResponse(res))
}
