package entities

import "time"

// CatalogEntity represents a product listed in the shop catalog
type CatalogEntity struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Aliases     []string  `json:"aliases,omitempty"`
	Brand       string    `json:"brand,omitempty"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Stock       int       `json:"stock"`
	Price       *float64  `json:"price,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// InStock reports whether the entity can currently be bought
func (e *CatalogEntity) InStock() bool {
	return e.Stock > 0
}

// HasPrice reports whether the listing carries a price
func (e *CatalogEntity) HasPrice() bool {
	return e.Price != nil
}
