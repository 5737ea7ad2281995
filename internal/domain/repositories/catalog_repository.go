package repositories

import (
	"context"
	"strconv"

	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/pkg/utils"
)

// CatalogRepository is the read side of the hosted catalog store
type CatalogRepository interface {
	// ListEntities returns catalog entities matching the filter
	ListEntities(ctx context.Context, filter CatalogFilter) ([]*entities.CatalogEntity, error)
}

// CatalogFilter holds filter parameters for catalog reads
type CatalogFilter struct {
	Category    string
	Brand       string
	InStockOnly bool
	MinPrice    *float64
	MaxPrice    *float64
}

// Matches applies the filter to a single entity in memory
func (f CatalogFilter) Matches(e *entities.CatalogEntity) bool {
	if f.Category != "" && !equalFold(e.Category, f.Category) {
		return false
	}
	if f.Brand != "" && !equalFold(e.Brand, f.Brand) {
		return false
	}
	if f.InStockOnly && !e.InStock() {
		return false
	}
	if f.MinPrice != nil && (e.Price == nil || *e.Price < *f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && (e.Price == nil || *e.Price > *f.MaxPrice) {
		return false
	}
	return true
}

// KeyParts renders the filter as stable strings for cache key derivation
func (f CatalogFilter) KeyParts() []string {
	price := func(p *float64) string {
		if p == nil {
			return "-"
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	return []string{
		"category=" + f.Category,
		"brand=" + f.Brand,
		"in_stock=" + strconv.FormatBool(f.InStockOnly),
		"min_price=" + price(f.MinPrice),
		"max_price=" + price(f.MaxPrice),
	}
}

func equalFold(a, b string) bool {
	return utils.NormalizeText(a) == utils.NormalizeText(b)
}
