// Package storage содержит фоновые операции над объектным хранилищем.
package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/jitter"
	"github.com/DRSN-tech/media-search/pkg/logger"
)

const cleanupTimeout = 30 * time.Second

// CleanupInfra удаляет осиротевшие объекты, оставшиеся после неудачной загрузки.
type CleanupInfra struct {
	store       usecase.ObjectStore
	logger      logger.Logger
	shutdownCtx context.Context
	wg          sync.WaitGroup
	sem         chan struct{}
	backoff     jitter.Backoff
}

func NewCleanupInfra(store usecase.ObjectStore, limit int, logger logger.Logger, shutdownCtx context.Context) *CleanupInfra {
	return &CleanupInfra{
		store:       store,
		logger:      logger,
		shutdownCtx: shutdownCtx,
		sem:         make(chan struct{}, max(limit, 1)),
		backoff: jitter.Backoff{
			Base:        time.Second,
			Max:         8 * time.Second,
			MaxAttempts: 3,
			Factor:      jitter.DefaultJitter,
		},
	}
}

// CleanupObjects запускает фоновую очистку указанных ключей.
func (c *CleanupInfra) CleanupObjects(keys []string) {
	if len(keys) == 0 {
		return
	}

	c.wg.Add(1)
	go c.cleanupKeys(keys)
}

// cleanupKeys удаляет объекты параллельно, каждую неудачу повторяет с экспоненциальной задержкой и jitter.
func (c *CleanupInfra) cleanupKeys(keys []string) {
	defer c.wg.Done()
	const op = "CleanupInfra.cleanupKeys"
	c.logger.Infof("%s: cleaning up %d orphaned objects", op, len(keys))

	ctx, cancel := context.WithTimeout(c.shutdownCtx, cleanupTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, key := range keys {
		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			c.logger.Warnf("%s: cleanup interrupted by shutdown, key=%v", op, key)
			wg.Wait()
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-c.sem }()

			if err := c.backoff.Retry(ctx, nil, func(ctx context.Context) error {
				return c.store.Delete(ctx, key)
			}); err != nil {
				c.logger.Errorf(err, "%s: failed to delete orphaned object, key=%v", op, key)
			}
		}()
	}
	wg.Wait()
}

// WaitForCleanup ожидает завершения всех фоновых задач очистки с учётом таймаута завершения приложения.
func (c *CleanupInfra) WaitForCleanup(shutdownTimeoutCtx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownTimeoutCtx.Done():
		return fmt.Errorf("storage cleanup timeout during shutdown: %w", shutdownTimeoutCtx.Err())
	}
}
