// Package objkey строит ключи объектов в хранилище для медиа товаров.
//
// Формат ключа: tenants/{tenant}/products/{sku}/media/{kind}/{unique-name}.
// Функции пакета чистые и не возвращают ошибок.
package objkey

import (
	"crypto/rand"
	"encoding/hex"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxBaseNameLen — максимальная длина санитизированного исходного имени в ключе
	MaxBaseNameLen = 50
	// ThumbnailSegment — сегмент пути миниатюр вместо типа медиа
	ThumbnailSegment = "thumbnails"
	// ThumbnailExt — расширение миниатюр, они всегда JPEG
	ThumbnailExt = ".jpg"

	randomBytes    = 4
	unknownSegment = "unknown"
)

var (
	unsafeSegmentChars = regexp.MustCompile(`[^a-z0-9_-]`)
	unsafeNameChars    = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	hyphenRuns         = regexp.MustCompile(`-{2,}`)
	uniqueNamePattern  = regexp.MustCompile(`^(?:(.+)-)?(\d{13,})-([0-9a-f]{8})(?:-(.+))?$`)
)

// now подменяется в тестах.
var now = time.Now

// AssetKey возвращает ключ основного объекта медиа товара.
func AssetKey(originalName, tenantID, sku, kind string) string {
	return path.Join(ProductMediaFolder(tenantID, sku), sanitizeSegment(kind), UniqueFileName(originalName, ""))
}

// ThumbnailKey возвращает ключ миниатюры. Расширение всегда .jpg.
func ThumbnailKey(originalName, tenantID, sku string) string {
	name := UniqueFileName(replaceExt(originalName, ThumbnailExt), "")
	return path.Join(ProductMediaFolder(tenantID, sku), ThumbnailSegment, name)
}

// TenantPrefix возвращает префикс всех объектов тенанта, включая завершающий "/".
func TenantPrefix(tenantID string) string {
	return "tenants/" + sanitizeSegment(tenantID) + "/"
}

// BelongsToTenant сообщает, лежит ли key под префиксом тенанта.
// Ключи с сегментами "." и ".." или лишними "/" не принимаются.
func BelongsToTenant(key, tenantID string) bool {
	if key == "" || path.Clean(key) != key {
		return false
	}

	return strings.HasPrefix(key, TenantPrefix(tenantID))
}

// ProductMediaFolder возвращает общий префикс всех медиа товара.
func ProductMediaFolder(tenantID, sku string) string {
	return path.Join("tenants", sanitizeSegment(tenantID), "products", SanitizeSku(sku), "media")
}

// SanitizeSku приводит SKU к безопасному для пути виду: нижний регистр, [a-z0-9_-].
func SanitizeSku(sku string) string {
	return sanitizeSegment(sku)
}

// UniqueFileName формирует имя вида [prefix-]{ms}-{8 hex}[-{base}]{ext}.
func UniqueFileName(originalName, prefix string) string {
	ext := path.Ext(originalName)
	base := SanitizeBaseName(strings.TrimSuffix(path.Base(originalName), ext))

	parts := make([]string, 0, 4)
	if p := SanitizeBaseName(prefix); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, strconv.FormatInt(now().UnixMilli(), 10), randomToken())
	if base != "" {
		parts = append(parts, base)
	}

	return strings.Join(parts, "-") + sanitizeExt(ext)
}

// SanitizeBaseName заменяет небезопасные символы на '-', схлопывает повторы,
// обрезает дефисы по краям и ограничивает длину MaxBaseNameLen.
func SanitizeBaseName(name string) string {
	s := unsafeNameChars.ReplaceAllString(name, "-")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > MaxBaseNameLen {
		s = strings.TrimRight(s[:MaxBaseNameLen], "-")
	}

	return s
}

// ParsedName — составные части имени, построенного UniqueFileName.
type ParsedName struct {
	Prefix    string
	Timestamp time.Time
	Token     string
	BaseName  string
	Ext       string
}

// ParseUniqueFileName разбирает имя объекта на части. ok=false, если имя построено не UniqueFileName.
func ParseUniqueFileName(name string) (ParsedName, bool) {
	name = path.Base(name)
	ext := path.Ext(name)

	m := uniqueNamePattern.FindStringSubmatch(strings.TrimSuffix(name, ext))
	if m == nil {
		return ParsedName{}, false
	}

	ms, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return ParsedName{}, false
	}

	return ParsedName{
		Prefix:    m[1],
		Timestamp: time.UnixMilli(ms),
		Token:     m[3],
		BaseName:  m[4],
		Ext:       ext,
	}, true
}

func sanitizeSegment(s string) string {
	s = unsafeSegmentChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "-")
	if s == "" {
		return unknownSegment
	}

	return s
}

func sanitizeExt(ext string) string {
	if ext == "" {
		return ""
	}

	clean := unsafeNameChars.ReplaceAllString(strings.TrimPrefix(ext, "."), "")
	if clean == "" {
		return ""
	}

	return "." + clean
}

func replaceExt(name, ext string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ext
}

// randomToken возвращает 8 hex-символов из crypto/rand.
func randomToken() string {
	b := make([]byte, randomBytes)
	_, _ = rand.Read(b) // начиная с Go 1.24 Read не возвращает ошибок

	return hex.EncodeToString(b)
}
