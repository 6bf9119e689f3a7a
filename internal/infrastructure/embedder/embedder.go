// Package embedder содержит HTTP-клиент внешнего сервиса эмбеддингов изображений.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/jitter"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/jimlawless/whereami"
	"golang.org/x/sync/semaphore"
)

const embedImagePath = "/embed-image"

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
	Device    string    `json:"device"`
}

// statusError — ответ сервиса с кодом не 2xx.
type statusError struct {
	code int
	body string
}

func (s *statusError) Error() string {
	return fmt.Sprintf("embedder responded %d: %s", s.code, s.body)
}

// Client отправляет изображение multipart-запросом POST /embed-image.
// Временные сбои повторяются с экспоненциальной задержкой, число одновременных запросов ограничено.
type Client struct {
	http    *http.Client
	baseURL string
	sem     *semaphore.Weighted
	backoff jitter.Backoff
	logger  logger.Logger
}

func NewClient(cfg *cfg.EmbedderCfg, logger logger.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.URL,
		sem:     semaphore.NewWeighted(int64(max(cfg.MaxConcurrent, 1))),
		backoff: jitter.Backoff{
			Base:        200 * time.Millisecond,
			Max:         5 * time.Second,
			MaxAttempts: cfg.MaxRetries,
			Factor:      jitter.DefaultJitter,
		},
		logger: logger,
	}
}

func (c *Client) EmbedImage(ctx context.Context, req *usecase.EmbedImageReq) (*usecase.EmbedImageRes, error) {
	const op = "Client.EmbedImage"

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, e.Wrap(op, err)
	}
	defer c.sem.Release(1)

	body, contentType, err := multipartBody(req)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	var res *embedResponse
	attempt := 0
	err = c.backoff.Retry(ctx, isRetryable, func(ctx context.Context) error {
		if attempt > 0 {
			c.logger.Warnf("%s: retrying embedder request, attempt %d", op, attempt+1)
		}
		attempt++

		res, err = c.do(ctx, body, contentType)
		return err
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if len(res.Embedding) == 0 {
		return nil, e.Wrap(op, e.ErrVectorEmbeddingEmpty)
	}

	return &usecase.EmbedImageRes{
		Vector: res.Embedding,
		Model:  res.Model,
		Device: res.Device,
	}, nil
}

func (c *Client) do(ctx context.Context, body []byte, contentType string) (*embedResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+embedImagePath, bytes.NewReader(body))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(msg))}
	}

	var res embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &res, nil
}

func multipartBody(req *usecase.EmbedImageReq) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fileName := req.FileName
	if fileName == "" {
		fileName = "image"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if req.ContentType != "" {
		header.Set("Content-Type", req.ContentType)
	}

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}

// isRetryable: сетевые ошибки, 429 и 5xx. Остальные 4xx повторять бессмысленно.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}
