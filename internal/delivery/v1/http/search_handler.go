package http

import (
	"net/http"
	"strconv"

	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type SearchHandler struct {
	searchUsecase usecase.SearchUC
	logger        logger.Logger
}

func NewSearchHandler(searchUsecase usecase.SearchUC, logger logger.Logger) *SearchHandler {
	return &SearchHandler{searchUsecase: searchUsecase, logger: logger}
}

// search ищет товары тенанта по готовому вектору запроса.
// POST /api/v1/tenants/{tenantID}/search {"vector": [...], "limit": 24}
func (s *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.logger.Warnf("%d search: %v", http.StatusBadRequest, err)
		WriteError(w, err)
		return
	}

	res, err := s.searchUsecase.Search(r.Context(), usecase.NewSearchReq(chi.URLParam(r, "tenantID"), body.Vector, body.Limit))
	if err != nil {
		s.logger.Warnf("search: %v", err)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toSearchResponse(res))
}

// searchByImage ищет товары по загруженному изображению (поле file или image).
func (s *SearchHandler) searchByImage(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 16 << 20

	r.Body = http.MaxBytesReader(w, r.Body, usecase.MaxQueryImageSize+(1<<20))
	if err := ensureMultipartForm(r, maxMemory); err != nil {
		s.logger.Warnf("%d search by image: %v", http.StatusBadRequest, err)
		WriteError(w, err)
		return
	}

	fh, err := formFile(r, "file", "image")
	if err != nil {
		WriteError(w, err)
		return
	}

	data, mimeType, err := readFile(fh, usecase.MaxQueryImageSize)
	if err != nil {
		WriteError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.FormValue("limit"))
	res, err := s.searchUsecase.SearchByImage(r.Context(), &usecase.SearchByImageReq{
		TenantID:    chi.URLParam(r, "tenantID"),
		Data:        data,
		ContentType: mimeType,
		FileName:    fh.Filename,
		Limit:       limit,
	})
	if err != nil {
		s.logger.Warnf("search by image: %v", err)
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toSearchResponse(res))
}
