package converter

import "github.com/shopspring/decimal"

type ProductInfoRedisModel struct {
	ID       int64           `json:"id"`
	TenantID string          `json:"tenant_id"`
	Sku      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	IsActive bool            `json:"is_active"`
}
