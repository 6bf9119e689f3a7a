package usecase

import "context"

type SearchUC interface {
	Search(ctx context.Context, req *SearchReq) (*SearchRes, error)
	SearchByImage(ctx context.Context, req *SearchByImageReq) (*SearchRes, error)
}

type MediaUC interface {
	UploadAsset(ctx context.Context, req *UploadAssetReq) (*UploadAssetRes, error)
	ProcessImageEmbedding(ctx context.Context, assetID int64) error
	IndexVideoFrame(ctx context.Context, req *IndexFrameReq) error
	RefreshURLs(ctx context.Context, req *RefreshURLsReq) (*RefreshURLsRes, error)
	SetProductActive(ctx context.Context, req *SetProductActiveReq) error
}
