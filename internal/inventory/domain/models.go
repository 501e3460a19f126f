// Package domain contains the catalog models and the stock ledger rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Category struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Active    bool         `gorm:"not null" json:"active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Category) TableName() string { return "categories" }

type Subcategory struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CategoryID snowflake.ID `gorm:"not null;index" json:"category_id"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	Slug       string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subcategory) TableName() string { return "subcategories" }

// Location is where a product is stored or prepared (bar, kitchen, cellar).
type Location struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Location) TableName() string { return "locations" }

type Product struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	SubcategoryID snowflake.ID  `gorm:"not null;index" json:"subcategory_id"`
	LocationID    *snowflake.ID `gorm:"index" json:"location_id,omitempty"`
	Name          string        `gorm:"type:text;not null" json:"name"`
	Slug          string        `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Description   string        `gorm:"type:text" json:"description,omitempty"`
	Active        bool          `gorm:"not null" json:"active"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

// Variant is the sellable unit and the row the stock ledger operates on.
// Active caches Available() > 0 and is rewritten by every stock mutation.
type Variant struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	ProductID snowflake.ID    `gorm:"not null;index" json:"product_id"`
	Name      string          `gorm:"type:text;not null" json:"name"`
	SKU       string          `gorm:"column:sku;type:text;not null;uniqueIndex" json:"sku"`
	Barcode   string          `gorm:"type:text;not null;uniqueIndex" json:"barcode"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Cost      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"cost"`
	OnHand    int             `gorm:"not null;default:0" json:"on_hand"`
	Reserved  int             `gorm:"not null;default:0" json:"reserved"`
	MinStock  int             `gorm:"not null" json:"min_stock"`
	Active    bool            `gorm:"not null;default:false" json:"active"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Variant) TableName() string { return "product_variants" }
