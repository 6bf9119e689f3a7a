// Package urlsigner выпускает подписанные ссылки на объекты хранилища,
// определяет их срок действия по параметрам самой ссылки и перевыпускает истёкшие.
package urlsigner

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DRSN-tech/media-search/internal/metrics"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
)

// Семейства подписей: AWS SigV4 (S3, MinIO) и GCS V4.
var signatureFamilies = []struct {
	date      string
	expires   string
	signature string
}{
	{date: "X-Amz-Date", expires: "X-Amz-Expires", signature: "X-Amz-Signature"},
	{date: "X-Goog-Date", expires: "X-Goog-Expires", signature: "X-Goog-Signature"},
}

// signedDateLayout — формат X-Amz-Date / X-Goog-Date
const signedDateLayout = "20060102T150405Z"

// Presigner — примитив подписи объектного хранилища.
type Presigner interface {
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	DirectURL(key string) string
}

// Options — параметры менеджера ссылок.
type Options struct {
	DefaultTTL   time.Duration
	MaxTTL       time.Duration
	ExpiryBuffer time.Duration
	MintTimeout  time.Duration
	Concurrency  int
}

// Manager реализует usecase.URLManager. После создания не изменяется и безопасен для конкурентного использования.
type Manager struct {
	presigner Presigner
	opts      Options
	now       func() time.Time
	logger    logger.Logger
}

func NewManager(presigner Presigner, opts Options, logger logger.Logger) *Manager {
	const (
		week               = 7 * 24 * time.Hour
		defaultBuffer      = 24 * time.Hour
		defaultMintTimeout = 5 * time.Second
		defaultConcurrency = 16
	)

	if opts.MaxTTL <= 0 || opts.MaxTTL > week {
		opts.MaxTTL = week
	}
	if opts.DefaultTTL <= 0 || opts.DefaultTTL > opts.MaxTTL {
		opts.DefaultTTL = opts.MaxTTL
	}
	if opts.ExpiryBuffer <= 0 {
		opts.ExpiryBuffer = defaultBuffer
	}
	if opts.MintTimeout <= 0 {
		opts.MintTimeout = defaultMintTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	return &Manager{
		presigner: presigner,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// Mint выпускает подписанную ссылку на чтение объекта key.
// ttl <= 0 означает TTL по умолчанию, ttl больше максимального возвращает ошибку валидации.
func (m *Manager) Mint(ctx context.Context, key string, ttl time.Duration) (string, error) {
	const op = "Manager.Mint"

	if ttl <= 0 {
		ttl = m.opts.DefaultTTL
	}
	if ttl > m.opts.MaxTTL {
		return "", e.Wrap(op, e.ErrTTLTooLong)
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.MintTimeout)
	defer cancel()

	signed, err := m.presigner.Presign(ctx, key, ttl)
	if err != nil {
		metrics.URLMintTotal.WithLabelValues("error").Inc()
		return "", e.Wrap(op, e.WrapKind(e.ErrCredentialMint, err))
	}

	metrics.URLMintTotal.WithLabelValues("signed").Inc()
	return signed, nil
}

// MintOrDirect выпускает подписанную ссылку, а при ошибке подписи возвращает неподписанную прямую ссылку.
func (m *Manager) MintOrDirect(ctx context.Context, key string, ttl time.Duration) string {
	signed, err := m.Mint(ctx, key, ttl)
	if err == nil {
		return signed
	}

	if !errors.Is(err, e.ErrCredentialMint) {
		// некорректный ttl: подписываем с TTL по умолчанию
		if signed, err = m.Mint(ctx, key, 0); err == nil {
			return signed
		}
	}

	m.logger.Warnf("falling back to unsigned url, key: %s, error: %v", key, err)
	metrics.URLMintTotal.WithLabelValues("direct").Inc()
	return m.presigner.DirectURL(key)
}

// IsExpired сообщает, что ссылка истекла или истечёт в пределах буфера.
// Ссылки без разбираемых параметров даты и срока считаются истёкшими.
func (m *Manager) IsExpired(rawURL string) bool {
	return m.IsExpiredAt(rawURL, m.now())
}

// IsExpiredAt — IsExpired относительно момента now.
func (m *Manager) IsExpiredAt(rawURL string, now time.Time) bool {
	expiresAt, ok := ExpiresAt(rawURL)
	if !ok {
		return true
	}

	return expiresAt.Sub(now) < m.opts.ExpiryBuffer
}

// ExpiresAt возвращает момент истечения ссылки по её параметрам даты выпуска и срока.
func ExpiresAt(rawURL string) (time.Time, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}
	q := u.Query()

	for _, f := range signatureFamilies {
		date, expires := q.Get(f.date), q.Get(f.expires)
		if date == "" || expires == "" {
			continue
		}

		issued, err := time.Parse(signedDateLayout, date)
		if err != nil {
			return time.Time{}, false
		}

		seconds, err := strconv.ParseInt(expires, 10, 64)
		if err != nil || seconds < 0 {
			return time.Time{}, false
		}

		return issued.Add(time.Duration(seconds) * time.Second), true
	}

	return time.Time{}, false
}

// IsSigned сообщает, что ссылка содержит подпись одного из поддерживаемых семейств.
func IsSigned(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()

	for _, f := range signatureFamilies {
		if q.Get(f.signature) != "" {
			return true
		}
	}

	return false
}

// RefreshBatch перевыпускает ссылки элементов, которым это нужно.
// Элементы обрабатываются параллельно, ошибка одного не влияет на остальные:
// такой элемент возвращается без изменений вместе с ошибкой. Порядок результатов совпадает с порядком items.
func (m *Manager) RefreshBatch(ctx context.Context, items []usecase.MediaURLs) []usecase.RefreshResult {
	results := make([]usecase.RefreshResult, len(items))
	sem := make(chan struct{}, m.opts.Concurrency)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			results[i] = m.refreshOne(ctx, item)
		}()
	}
	wg.Wait()

	return results
}

func (m *Manager) refreshOne(ctx context.Context, item usecase.MediaURLs) usecase.RefreshResult {
	const op = "Manager.refreshOne"

	if strings.TrimSpace(item.Key) == "" {
		metrics.URLRefreshTotal.WithLabelValues("skipped").Inc()
		return usecase.RefreshResult{Item: item}
	}

	if !m.needsRefresh(item.URL) && (item.ThumbnailKey == "" || !m.needsRefresh(item.ThumbnailURL)) {
		metrics.URLRefreshTotal.WithLabelValues("fresh").Inc()
		return usecase.RefreshResult{Item: item}
	}

	refreshed := item
	signed, err := m.Mint(ctx, item.Key, 0)
	if err != nil {
		return m.refreshFailed(op, item, err)
	}
	refreshed.URL = signed

	if item.ThumbnailKey != "" {
		thumb, err := m.Mint(ctx, item.ThumbnailKey, 0)
		if err != nil {
			return m.refreshFailed(op, item, err)
		}
		refreshed.ThumbnailURL = thumb
	}

	metrics.URLRefreshTotal.WithLabelValues("refreshed").Inc()
	return usecase.RefreshResult{Item: refreshed, Refreshed: true}
}

func (m *Manager) refreshFailed(op string, item usecase.MediaURLs, err error) usecase.RefreshResult {
	metrics.URLRefreshTotal.WithLabelValues("error").Inc()
	m.logger.Warnf("%s: keeping stale url, id: %s, key: %s, error: %v", op, item.ID, item.Key, err)

	return usecase.RefreshResult{Item: item, Err: e.Wrap(op, err)}
}

// needsRefresh: ссылки нет, она истекает или не подписана.
func (m *Manager) needsRefresh(rawURL string) bool {
	return rawURL == "" || !IsSigned(rawURL) || m.IsExpired(rawURL)
}
