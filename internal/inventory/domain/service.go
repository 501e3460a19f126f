package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateCategoryRequest struct {
	Name string `validate:"required,max=100"`
}

type CreateSubcategoryRequest struct {
	CategoryID snowflake.ID `validate:"required"`
	Name       string       `validate:"required,max=100"`
}

type CreateLocationRequest struct {
	Name string `validate:"required,max=100"`
}

type CreateProductRequest struct {
	SubcategoryID snowflake.ID  `validate:"required"`
	LocationID    *snowflake.ID `validate:"omitempty"`
	Name          string        `validate:"required,max=150"`
	Description   string        `validate:"max=1000"`
}

type CreateVariantRequest struct {
	ProductID snowflake.ID    `validate:"required"`
	Name      string          `validate:"required,max=100"`
	SKU       string          `validate:"required,max=64"`
	Barcode   string          `validate:"omitempty,max=64"`
	Price     decimal.Decimal `validate:"dpositive"`
	Cost      decimal.Decimal `validate:"dnonnegative"`
	OnHand    int             `validate:"gte=0"`
	MinStock  *int            `validate:"omitempty,gte=0"`
}

// MenuItem is one sellable variant as shown to guests.
type MenuItem struct {
	VariantID snowflake.ID    `json:"variant_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available int             `json:"available"`
}

type MenuProduct struct {
	ProductID   snowflake.ID `json:"product_id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Variants    []MenuItem   `json:"variants"`
}

type MenuCategory struct {
	CategoryID snowflake.ID  `json:"category_id"`
	Name       string        `json:"name"`
	Products   []MenuProduct `json:"products"`
}

// CatalogService manages the product hierarchy.
type CatalogService interface {
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (Category, error)
	CreateSubcategory(ctx context.Context, req CreateSubcategoryRequest) (Subcategory, error)
	CreateLocation(ctx context.Context, req CreateLocationRequest) (Location, error)
	CreateProduct(ctx context.Context, req CreateProductRequest) (Product, error)
	CreateVariant(ctx context.Context, req CreateVariantRequest) (Variant, error)
	GetVariant(ctx context.Context, id snowflake.ID) (Variant, error)
	Restock(ctx context.Context, id snowflake.ID, qty int) (Variant, error)
	Menu(ctx context.Context) ([]MenuCategory, error)
	LowStock(ctx context.Context) ([]Variant, error)
}

// StockLedger mutates variant stock. Every method runs on db, which may be the
// caller's transaction; a nil db makes the ledger open its own.
type StockLedger interface {
	Reserve(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (Variant, error)
	Release(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (Variant, error)
	Commit(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (Variant, error)
	Deduct(ctx context.Context, db *gorm.DB, variantID snowflake.ID, qty int) (Variant, error)
}

type Repository interface {
	InsertCategory(ctx context.Context, db *gorm.DB, c *Category) error
	FindCategory(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Category, error)
	InsertSubcategory(ctx context.Context, db *gorm.DB, s *Subcategory) error
	FindSubcategory(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subcategory, error)
	InsertLocation(ctx context.Context, db *gorm.DB, l *Location) error
	FindLocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Location, error)
	InsertProduct(ctx context.Context, db *gorm.DB, p *Product) error
	FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	InsertVariant(ctx context.Context, db *gorm.DB, v *Variant) error
	FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Variant, error)
	FindVariantForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Variant, error)
	UpdateStock(ctx context.Context, db *gorm.DB, v *Variant) error
	ListLowStock(ctx context.Context, db *gorm.DB) ([]Variant, error)
	ListMenuRows(ctx context.Context, db *gorm.DB) ([]MenuRow, error)
}

// MenuRow is the flattened join the menu is assembled from.
type MenuRow struct {
	CategoryID   snowflake.ID
	CategoryName string
	ProductID    snowflake.ID
	ProductName  string
	Description  string
	VariantID    snowflake.ID
	VariantName  string
	Price        decimal.Decimal
	OnHand       int
	Reserved     int
}

var (
	ErrInsufficientStock   = errors.New("insufficient_stock")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrCategoryNotFound    = errors.New("category_not_found")
	ErrSubcategoryNotFound = errors.New("subcategory_not_found")
	ErrLocationNotFound    = errors.New("location_not_found")
	ErrProductNotFound     = errors.New("product_not_found")
	ErrVariantNotFound     = errors.New("variant_not_found")
	ErrDuplicateSKU        = errors.New("duplicate_sku")
	ErrDuplicateSlug       = errors.New("duplicate_slug")
)
