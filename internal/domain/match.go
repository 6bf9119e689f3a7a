package domain

import "github.com/shopspring/decimal"

// MatchDescriptor описывает, чем именно совпал товар.
// Для ModalityImage заполнены StorageKey/ThumbnailKey, для ModalityVideoFrame — StorageKey (ключ кадра) и TsMs.
type MatchDescriptor struct {
	Modality     Modality
	StorageKey   string
	ThumbnailKey string
	TsMs         *int64
	PreviewRef   string // ключ или абсолютный URL превью
	PreviewURL   string // ссылка, готовая к отдаче клиенту
}

// MatchResult — итоговая позиция выдачи поиска
type MatchResult struct {
	ProductID         int64
	ProductName       string
	Sku               string
	Price             *decimal.Decimal
	Score             float64
	SimilarityPercent float64
	Match             MatchDescriptor
}

// NewMatchResult строит результат по лучшему кандидату товара.
func NewMatchResult(n Neighbor) MatchResult {
	match := MatchDescriptor{
		Modality:   n.Modality,
		StorageKey: n.StorageKey,
	}

	switch n.Modality {
	case ModalityVideoFrame:
		ts := n.TsMs
		match.TsMs = &ts
		match.PreviewRef = n.StorageKey
	default:
		match.ThumbnailKey = n.ThumbnailKey
		match.PreviewRef = n.ThumbnailKey
		if match.PreviewRef == "" {
			match.PreviewRef = n.StorageKey
		}
	}

	return MatchResult{
		ProductID:         n.ProductID,
		ProductName:       n.ProductName,
		Score:             n.Score,
		SimilarityPercent: SimilarityPercent(n.Score),
		Match:             match,
	}
}
