package grpc

import (
	"errors"
	"fmt"

	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func GRPCErrorResponse(err error) error {
	switch {
	case errors.Is(err, e.ErrValidation):
		return status.Error(codes.InvalidArgument, e.ErrValidation.Error())
	case errors.Is(err, e.ErrNotFound):
		return status.Error(codes.NotFound, e.ErrNotFound.Error())
	case errors.Is(err, e.ErrAssetDecode):
		return status.Error(codes.InvalidArgument, e.ErrAssetDecode.Error())
	case errors.Is(err, e.ErrSearchUnavailable):
		return status.Error(codes.Unavailable, e.ErrSearchUnavailable.Error())
	case errors.Is(err, e.ErrEmbedderUnavailable):
		return status.Error(codes.Unavailable, e.ErrEmbedderUnavailable.Error())
	default:
		return status.Error(codes.Internal, e.ErrInternalServerError.Error())
	}
}

func toVector(v *structpb.Value) ([]float32, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, e.Wrap("vector", e.ErrMissingFields)
	}

	vector := make([]float32, 0, len(list.Values))
	for i, item := range list.Values {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, e.Wrap(fmt.Sprintf("vector[%d]", i), e.ErrInvalidVectorLength)
		}
		vector = append(vector, float32(n.NumberValue))
	}

	return vector, nil
}

func toSearchStruct(res *usecase.SearchRes) (*structpb.Struct, error) {
	results := make([]any, 0, len(res.Results))
	for _, r := range res.Results {
		match := map[string]any{
			"modality":    string(r.Match.Modality),
			"storage_key": r.Match.StorageKey,
			"preview_ref": r.Match.PreviewRef,
			"preview_url": r.Match.PreviewURL,
		}
		if r.Match.TsMs != nil {
			match["ts_ms"] = *r.Match.TsMs
		}

		item := map[string]any{
			"product_id":         r.ProductID,
			"product_name":       r.ProductName,
			"sku":                r.Sku,
			"score":              r.Score,
			"similarity_percent": r.SimilarityPercent,
			"match":              match,
		}
		if r.Price != nil {
			item["price"] = r.Price.StringFixed(2)
		}
		results = append(results, item)
	}

	return structpb.NewStruct(map[string]any{
		"results":  results,
		"fallback": res.Fallback,
		"model":    res.Model,
	})
}

func toMediaURLs(v *structpb.Value) usecase.MediaURLs {
	fields := v.GetStructValue().GetFields()
	return usecase.MediaURLs{
		ID:           fields["id"].GetStringValue(),
		Key:          fields["key"].GetStringValue(),
		URL:          fields["url"].GetStringValue(),
		ThumbnailKey: fields["thumbnail_key"].GetStringValue(),
		ThumbnailURL: fields["thumbnail_url"].GetStringValue(),
	}
}

func toRefreshStruct(res *usecase.RefreshURLsRes) (*structpb.Struct, error) {
	items := make([]any, 0, len(res.Results))
	for _, r := range res.Results {
		item := map[string]any{
			"id":            r.Item.ID,
			"key":           r.Item.Key,
			"url":           r.Item.URL,
			"thumbnail_key": r.Item.ThumbnailKey,
			"thumbnail_url": r.Item.ThumbnailURL,
			"refreshed":     r.Refreshed,
		}
		if r.Err != nil {
			item["error"] = "refresh failed"
			if errors.Is(r.Err, e.ErrForeignObjectKey) {
				item["error"] = "object key belongs to another tenant"
			}
		}
		items = append(items, item)
	}

	return structpb.NewStruct(map[string]any{"items": items})
}
