package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает товар каталога тенанта
type Product struct {
	ID        int64
	TenantID  string
	Sku       string
	Name      string
	Price     decimal.Decimal
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt *time.Time
}

func NewProduct(tenantID, sku, name string, price decimal.Decimal) *Product {
	return &Product{
		TenantID: tenantID,
		Sku:      sku,
		Name:     name,
		Price:    price,
		IsActive: true,
	}
}
