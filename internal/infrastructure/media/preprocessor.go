// Package media подготавливает загруженные медиа к сохранению и строит миниатюры.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/DRSN-tech/media-search/internal/domain"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // регистрирует декодер WebP для image.Decode
)

const (
	defaultThumbnailSize    = 400
	defaultThumbnailQuality = 90
	defaultMaxDimension     = 2160
	defaultJPEGQuality      = 85
	defaultMaxPixels        = 50_000_000

	contentTypeJPEG = "image/jpeg"
	contentTypePNG  = "image/png"
)

// Options — параметры препроцессора. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	ThumbnailSize    int
	ThumbnailQuality int
	MaxDimension     int // предел стороны в режиме optimize
	JPEGQuality      int // качество JPEG в режиме optimize
	MaxPixels        int // предел width*height до декодирования
}

// Preprocessor реализует usecase.Preprocessor.
type Preprocessor struct {
	opts   Options
	logger logger.Logger
}

func NewPreprocessor(opts Options, logger logger.Logger) *Preprocessor {
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = defaultThumbnailSize
	}
	if opts.ThumbnailQuality <= 0 || opts.ThumbnailQuality > 100 {
		opts.ThumbnailQuality = defaultThumbnailQuality
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaultMaxDimension
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = defaultJPEGQuality
	}

	if opts.MaxPixels <= 0 {
		opts.MaxPixels = defaultMaxPixels
	}

	return &Preprocessor{opts: opts, logger: logger}
}

// Prepare возвращает байты для сохранения и миниатюру изображения.
//
// В режиме preserve основной объект сохраняется без изменений.
// Миниатюра строится для изображений всегда, для видео не строится.
// Повреждённое изображение даёт e.ErrAssetDecode.
func (p *Preprocessor) Prepare(ctx context.Context, req *usecase.PrepareAssetReq) (*usecase.PreparedAsset, error) {
	const op = "Preprocessor.Prepare"

	if err := ctx.Err(); err != nil {
		return nil, e.Wrap(op, err)
	}

	if req.Kind == domain.AssetKindVideo {
		return &usecase.PreparedAsset{
			Data:        req.Data,
			ContentType: req.ContentType,
		}, nil
	}
	if req.Kind != domain.AssetKindImage {
		return nil, e.Wrap(op, e.ErrUnsupportedAssetKind)
	}

	img, format, err := decode(req.Data, p.opts.MaxPixels)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	thumb, err := p.thumbnail(img)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	prepared := &usecase.PreparedAsset{
		Data:                 req.Data,
		ContentType:          req.ContentType,
		Thumbnail:            thumb,
		ThumbnailContentType: contentTypeJPEG,
	}

	if req.Mode == usecase.ModeOptimize {
		data, contentType, err := p.optimize(img, format)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		if data != nil {
			prepared.Data, prepared.ContentType = data, contentType
		}
	}

	return prepared, nil
}

// thumbnail вписывает изображение в квадрат ThumbnailSize с обрезкой по центру и кодирует в JPEG.
// Стандартный кодировщик пишет baseline JPEG.
func (p *Preprocessor) thumbnail(img image.Image) ([]byte, error) {
	size := p.opts.ThumbnailSize
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(p.opts.ThumbnailQuality)); err != nil {
		return nil, e.WrapKind(e.ErrAssetDecode, err)
	}

	return buf.Bytes(), nil
}

// optimize перекодирует изображение по формату и ограничивает разрешение.
// PNG остаётся PNG, GIF не трогается (анимация), остальные форматы кодируются в JPEG.
// nil означает «оставить исходные байты».
func (p *Preprocessor) optimize(img image.Image, format string) ([]byte, string, error) {
	if format == "gif" {
		return nil, "", nil
	}

	bounds := img.Bounds()
	if bounds.Dx() > p.opts.MaxDimension || bounds.Dy() > p.opts.MaxDimension {
		img = imaging.Fit(img, p.opts.MaxDimension, p.opts.MaxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if format == "png" {
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), contentTypePNG, nil
	}

	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.opts.JPEGQuality)); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), contentTypeJPEG, nil
}

// decode декодирует изображение с учётом EXIF-ориентации и возвращает имя формата.
// Размеры из заголовка проверяются до выделения памяти под пиксели.
func decode(data []byte, maxPixels int) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", e.ErrAssetDecode
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", e.WrapKind(e.ErrAssetDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", e.WrapKind(e.ErrAssetDecode,
			fmt.Errorf("%w: %dx%d exceeds %d pixels", e.ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels))
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", e.WrapKind(e.ErrAssetDecode, err)
	}

	return img, format, nil
}
