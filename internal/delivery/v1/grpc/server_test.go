package grpc

import (
	"context"
	"net"
	"testing"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/DRSN-tech/media-search/pkg/objkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type stubSearch struct {
	req *usecase.SearchReq
	err error
}

func (s *stubSearch) Search(_ context.Context, req *usecase.SearchReq) (*usecase.SearchRes, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &usecase.SearchRes{Results: []domain.MatchResult{{
		ProductID: 3, Score: -1, SimilarityPercent: 100,
		Match: domain.MatchDescriptor{Modality: domain.ModalityImage, PreviewURL: "signed://thumb"},
	}}}, nil
}

func (s *stubSearch) SearchByImage(context.Context, *usecase.SearchByImageReq) (*usecase.SearchRes, error) {
	return nil, s.err
}

type stubMedia struct {
	usecase.MediaUC
}

func (stubMedia) RefreshURLs(_ context.Context, req *usecase.RefreshURLsReq) (*usecase.RefreshURLsRes, error) {
	if req.TenantID == "" {
		return nil, e.ErrTenantRequired
	}
	res := &usecase.RefreshURLsRes{}
	for _, item := range req.Items {
		if !objkey.BelongsToTenant(item.Key, req.TenantID) {
			res.Results = append(res.Results, usecase.RefreshResult{Item: item, Err: e.ErrForeignObjectKey})
			continue
		}
		item.URL = "signed://" + item.Key
		res.Results = append(res.Results, usecase.RefreshResult{Item: item, Refreshed: true})
	}
	return res, nil
}

func dial(t *testing.T, search usecase.SearchUC) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(nil, logger.NewNop())
	srv.RegisterServices(search, stubMedia{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestSearchOverGRPC(t *testing.T) {
	search := &stubSearch{}
	conn := dial(t, search)

	req, err := structpb.NewStruct(map[string]any{
		"tenant_id": "t1",
		"vector":    []any{0.5, 0.5},
		"limit":     2,
	})
	require.NoError(t, err)

	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(t.Context(), "/"+serviceName+"/Search", req, out))

	assert.Equal(t, "t1", search.req.TenantID)
	assert.Equal(t, []float32{0.5, 0.5}, search.req.Vector)
	assert.Equal(t, 2, search.req.Limit)

	results := out.AsMap()["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, float64(3), first["product_id"])
	assert.Equal(t, "signed://thumb", first["match"].(map[string]any)["preview_url"])
}

func TestSearchErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{e.ErrInvalidVectorLength, codes.InvalidArgument},
		{e.ErrMalformedTenant, codes.Unavailable},
		{e.ErrProductNotFound, codes.NotFound},
		{context.Canceled, codes.Internal},
	}

	for _, tt := range tests {
		conn := dial(t, &stubSearch{err: tt.err})
		req, _ := structpb.NewStruct(map[string]any{"tenant_id": "t1", "vector": []any{1.0}})

		err := conn.Invoke(t.Context(), "/"+serviceName+"/Search", req, new(structpb.Struct))
		assert.Equal(t, tt.code, status.Code(err), tt.err.Error())
	}
}

func TestSearchRequiresVector(t *testing.T) {
	conn := dial(t, &stubSearch{})
	req, _ := structpb.NewStruct(map[string]any{"tenant_id": "t1"})

	err := conn.Invoke(t.Context(), "/"+serviceName+"/Search", req, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRefreshURLsOverGRPC(t *testing.T) {
	conn := dial(t, &stubSearch{})
	req, _ := structpb.NewStruct(map[string]any{
		"tenant_id": "t1",
		"items": []any{
			map[string]any{"id": "1", "key": "tenants/t1/a.jpg"},
			map[string]any{"id": "2", "key": "tenants/t2/b.jpg"},
		},
	})

	out := new(structpb.Struct)
	require.NoError(t, conn.Invoke(t.Context(), "/"+serviceName+"/RefreshURLs", req, out))

	items := out.AsMap()["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "signed://tenants/t1/a.jpg", items[0].(map[string]any)["url"])

	foreign := items[1].(map[string]any)
	assert.Equal(t, false, foreign["refreshed"])
	assert.Equal(t, "", foreign["url"])
	assert.Equal(t, "object key belongs to another tenant", foreign["error"])
}

func TestRefreshURLsRequiresTenantOverGRPC(t *testing.T) {
	conn := dial(t, &stubSearch{})
	req, _ := structpb.NewStruct(map[string]any{
		"items": []any{map[string]any{"id": "1", "key": "tenants/t1/a.jpg"}},
	})

	err := conn.Invoke(t.Context(), "/"+serviceName+"/RefreshURLs", req, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestHealthService(t *testing.T) {
	conn := dial(t, &stubSearch{})

	res, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{Service: serviceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, res.Status)
}
