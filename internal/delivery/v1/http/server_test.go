package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, conf *cfg.HTTPConfig) (string, *Server, <-chan error) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(newTestRouter(&stubSearch{}, &stubMedia{}, nil), conf, logger.NewNop())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	return "http://" + lis.Addr().String(), srv, done
}

func testHTTPConfig() *cfg.HTTPConfig {
	return &cfg.HTTPConfig{
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       5 * time.Second,
		MaxHeaderBytes:    1 << 10,
	}
}

func TestServerStopsGracefully(t *testing.T) {
	base, srv, done := startServer(t, testHTTPConfig())

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}

func TestServerRejectsOversizedHeaders(t *testing.T) {
	base, srv, _ := startServer(t, testHTTPConfig())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	req, err := http.NewRequest(http.MethodGet, base+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Padding", strings.Repeat("a", 16<<10))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusRequestHeaderFieldsTooLarge, resp.StatusCode)
}

func TestServerTimesOutSlowHeaders(t *testing.T) {
	base, srv, _ := startServer(t, testHTTPConfig())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	conn, err := net.Dial("tcp", strings.TrimPrefix(base, "http://"))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /healthz HTTP/1.1\r\nHost: x\r\n"))
	require.NoError(t, err)

	// заголовки не дописаны: сервер закрывает соединение по ReadHeaderTimeout
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	start := time.Now()
	_, err = conn.Read(make([]byte, 1))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
}
