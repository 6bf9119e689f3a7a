// Package gcs реализует хранилище медиа поверх Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jimlawless/whereami"
)

const publicHost = "https://storage.googleapis.com"

type ObjectRepo struct {
	bucket *storage.BucketHandle
	cfg    *cfg.StorageCfg

	// accessID и signBytes заменяют ключ сервисного аккаунта при подписи, если заданы
	accessID  string
	signBytes func([]byte) ([]byte, error)
}

type signResult struct {
	url string
	err error
}

func NewObjectRepo(client *storage.Client, cfg *cfg.StorageCfg) *ObjectRepo {
	return &ObjectRepo{
		bucket: client.Bucket(cfg.GCSBucket),
		cfg:    cfg,
	}
}

func (o *ObjectRepo) Put(ctx context.Context, req *usecase.PutObjectReq) error {
	w := o.bucket.Object(req.Key).NewWriter(ctx)
	w.ContentType = req.ContentType

	if _, err := w.Write(req.Data); err != nil {
		_ = w.Close()
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if err := w.Close(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (o *ObjectRepo) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := o.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			err = e.WrapKind(e.ErrNotFound, err)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return data, nil
}

// Delete удаляет объект. Отсутствующий объект не считается ошибкой.
func (o *ObjectRepo) Delete(ctx context.Context, key string) error {
	if err := o.bucket.Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Presign выпускает ссылку V4 на GET объекта.
// Подпись выполняется ключом сервисного аккаунта или через IAM signBlob.
// SignedURL не принимает контекст: ожидание подписи ограничено ctx.
func (o *ObjectRepo) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	}
	if o.signBytes != nil {
		opts.GoogleAccessID = o.accessID
		opts.SignBytes = o.signBytes
	}

	done := make(chan signResult, 1)
	go func() {
		signed, err := o.bucket.SignedURL(key, opts)
		done <- signResult{url: signed, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", e.Wrap(whereami.WhereAmI(), res.err)
		}
		return res.url, nil
	case <-ctx.Done():
		return "", e.Wrap(whereami.WhereAmI(), ctx.Err())
	}
}

func (o *ObjectRepo) DirectURL(key string) string {
	base := strings.TrimRight(o.cfg.PublicBaseURL, "/")
	if base == "" {
		base = publicHost + "/" + url.PathEscape(o.cfg.GCSBucket)
	}

	return base + "/" + strings.TrimLeft(key, "/")
}
