package e

import (
	"errors"
	"fmt"
)

// Категории ошибок. Конкретные ошибки ниже оборачивают одну из них,
// поэтому errors.Is работает на обоих уровнях.
var (
	// ErrValidation — некорректный запрос (400)
	ErrValidation = errors.New("validation error")
	// ErrSearchUnavailable — индекс недоступен, таймаут или некорректный тенант (503)
	ErrSearchUnavailable = errors.New("search unavailable")
	// ErrCredentialMint — не удалось выпустить подписанный URL
	ErrCredentialMint = errors.New("credential mint failed")
	// ErrAssetDecode — байты не удалось декодировать как изображение (422)
	ErrAssetDecode = errors.New("asset decode failed")
	// ErrImageTooLarge — размеры изображения превышают допустимое число пикселей
	ErrImageTooLarge = errors.New("image dimensions are too large")
	// ErrNotFound — запись не найдена (404)
	ErrNotFound = errors.New("not found")
	// ErrEmbedderUnavailable — внешний сервис эмбеддингов не ответил (503)
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
)

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = errors.New("transaction not found")

	// Внутренние ошибки с векторами
	ErrVectorEmbeddingEmpty = errors.New("vector embedding is empty")
	ErrZeroVector           = errors.New("vector has zero norm")

	// 400 Bad Request
	ErrTenantRequired       = fmt.Errorf("%w: tenant id is required", ErrValidation)
	ErrInvalidTenant        = fmt.Errorf("%w: invalid tenant id", ErrValidation)
	ErrInvalidVectorLength  = fmt.Errorf("%w: invalid query vector length", ErrValidation)
	ErrTTLTooLong           = fmt.Errorf("%w: url ttl exceeds maximum", ErrValidation)
	ErrSkuRequired          = fmt.Errorf("%w: sku is required", ErrValidation)
	ErrProductRequired      = fmt.Errorf("%w: product id is required", ErrValidation)
	ErrUnsupportedMediaType = fmt.Errorf("%w: unsupported media type", ErrValidation)
	ErrUnsupportedAssetKind = fmt.Errorf("%w: unsupported asset kind", ErrValidation)
	ErrFileTooLarge         = fmt.Errorf("%w: file is too large", ErrValidation)
	ErrEmptyFile            = fmt.Errorf("%w: file is empty", ErrValidation)
	ErrExpectedMultipart    = fmt.Errorf("%w: expected multipart/form-data", ErrValidation)
	ErrExpectedJSON         = fmt.Errorf("%w: malformed json body", ErrValidation)
	ErrMissingFields        = fmt.Errorf("%w: missing required fields", ErrValidation)
	ErrTooManyItems         = fmt.Errorf("%w: too many items in batch", ErrValidation)
	ErrForeignObjectKey     = fmt.Errorf("%w: object key belongs to another tenant", ErrValidation)
	ErrNegativeTimestamp    = fmt.Errorf("%w: frame timestamp must not be negative", ErrValidation)
	ErrFrameKeyRequired     = fmt.Errorf("%w: frame key is required", ErrValidation)

	// 503 Service Unavailable
	ErrMalformedTenant = fmt.Errorf("%w: malformed tenant id", ErrSearchUnavailable)

	// 404 Not Found
	ErrAssetNotFound   = fmt.Errorf("%w: asset", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("%w: product", ErrNotFound)

	// 500 Internal Server Error
	ErrInternalServerError  = errors.New("internal server error")
	ErrIncorrectEnvVariable = errors.New("incorrect environment variable")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapKind помечает err категорией kind, сохраняя исходную причину в цепочке.
func WrapKind(kind error, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}

	return fmt.Errorf("%w: %w", kind, err)
}
