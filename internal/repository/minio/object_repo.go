package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/DRSN-tech/media-search/internal/cfg"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

// ObjectRepo реализует хранилище медиа поверх S3-совместимого API (AWS S3, MinIO).
type ObjectRepo struct {
	mc  *minio.Client
	cfg *cfg.StorageCfg
}

func NewObjectRepo(mc *minio.Client, cfg *cfg.StorageCfg) *ObjectRepo {
	return &ObjectRepo{
		mc:  mc,
		cfg: cfg,
	}
}

// Put загружает объект по ключу req.Key.
func (o *ObjectRepo) Put(ctx context.Context, req *usecase.PutObjectReq) error {
	reader := bytes.NewReader(req.Data)

	_, err := o.mc.PutObject(ctx, o.cfg.BucketName, req.Key, reader, int64(len(req.Data)), minio.PutObjectOptions{
		ContentType: req.ContentType,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Get читает объект целиком. Отсутствующий ключ даёт e.ErrNotFound.
func (o *ObjectRepo) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := o.mc.GetObject(ctx, o.cfg.BucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), mapError(err))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), mapError(err))
	}

	return data, nil
}

// Delete удаляет объект по указанному ключу.
func (o *ObjectRepo) Delete(ctx context.Context, key string) error {
	if err := o.mc.RemoveObject(ctx, o.cfg.BucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Presign выпускает ссылку SigV4 на GET объекта. При заданном регионе сетевых запросов нет.
func (o *ObjectRepo) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := o.mc.PresignedGetObject(ctx, o.cfg.BucketName, key, ttl, nil)
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return u.String(), nil
}

// DirectURL возвращает неподписанную ссылку: через публичную базу, если она задана, иначе path-style от endpoint.
func (o *ObjectRepo) DirectURL(key string) string {
	if base := strings.TrimRight(o.cfg.PublicBaseURL, "/"); base != "" {
		return base + "/" + strings.TrimLeft(key, "/")
	}

	u := *o.mc.EndpointURL()
	u.Path = path.Join("/", o.cfg.BucketName, key)
	return u.String()
}

func mapError(err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return e.WrapKind(e.ErrNotFound, err)
	}

	return err
}
