package grpc

import (
	"context"

	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "mediasearch.v1.MediaSearchService"

// MediaSearchServer — gRPC API поиска. Сообщения передаются как google.protobuf.Struct.
type MediaSearchServer interface {
	Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RefreshURLs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var MediaSearchServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MediaSearchServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Search", Handler: unaryHandler("Search", MediaSearchServer.Search)},
		{MethodName: "RefreshURLs", Handler: unaryHandler("RefreshURLs", MediaSearchServer.RefreshURLs)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "media_search.proto",
}

func unaryHandler(
	method string,
	call func(MediaSearchServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MediaSearchServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MediaSearchServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type MediaSearchService struct {
	searchUC usecase.SearchUC
	mediaUC  usecase.MediaUC
	logger   logger.Logger
}

func NewMediaSearchService(searchUC usecase.SearchUC, mediaUC usecase.MediaUC, logger logger.Logger) *MediaSearchService {
	return &MediaSearchService{searchUC: searchUC, mediaUC: mediaUC, logger: logger}
}

// Search: {tenant_id, vector: [..], limit}
func (g *MediaSearchService) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.Search"

	fields := req.GetFields()
	vector, err := toVector(fields["vector"])
	if err != nil {
		return nil, GRPCErrorResponse(err)
	}

	res, err := g.searchUC.Search(ctx, usecase.NewSearchReq(
		fields["tenant_id"].GetStringValue(),
		vector,
		int(fields["limit"].GetNumberValue()),
	))
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}

	out, err := toSearchStruct(res)
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}

	return out, nil
}

// RefreshURLs: {tenant_id, items: [{id, key, url, thumbnail_key, thumbnail_url}]}
func (g *MediaSearchService) RefreshURLs(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	const op = "grpc.RefreshURLs"

	list := req.GetFields()["items"].GetListValue().GetValues()
	items := make([]usecase.MediaURLs, 0, len(list))
	for _, v := range list {
		items = append(items, toMediaURLs(v))
	}

	res, err := g.mediaUC.RefreshURLs(ctx, &usecase.RefreshURLsReq{
		TenantID: req.GetFields()["tenant_id"].GetStringValue(),
		Items:    items,
	})
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}

	out, err := toRefreshStruct(res)
	if err != nil {
		g.logger.Errorf(e.Wrap(op, err), "%s", op)
		return nil, GRPCErrorResponse(err)
	}

	return out, nil
}
