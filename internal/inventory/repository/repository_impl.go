package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/inventory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertCategory(ctx context.Context, db *gorm.DB, c *domain.Category) error {
	return db.WithContext(ctx).Create(c).Error
}

func (r *repo) FindCategory(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Category, error) {
	return first[domain.Category](ctx, db, id)
}

func (r *repo) InsertSubcategory(ctx context.Context, db *gorm.DB, s *domain.Subcategory) error {
	return db.WithContext(ctx).Create(s).Error
}

func (r *repo) FindSubcategory(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subcategory, error) {
	return first[domain.Subcategory](ctx, db, id)
}

func (r *repo) InsertLocation(ctx context.Context, db *gorm.DB, l *domain.Location) error {
	return db.WithContext(ctx).Create(l).Error
}

func (r *repo) FindLocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Location, error) {
	return first[domain.Location](ctx, db, id)
}

func (r *repo) InsertProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	return first[domain.Product](ctx, db, id)
}

func (r *repo) InsertVariant(ctx context.Context, db *gorm.DB, v *domain.Variant) error {
	return db.WithContext(ctx).Create(v).Error
}

func (r *repo) FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Variant, error) {
	return first[domain.Variant](ctx, db, id)
}

// FindVariantForUpdate locks the row until the surrounding transaction ends.
func (r *repo) FindVariantForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Variant, error) {
	return first[domain.Variant](ctx, db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repo) UpdateStock(ctx context.Context, db *gorm.DB, v *domain.Variant) error {
	res := db.WithContext(ctx).Model(&domain.Variant{}).
		Where("id = ?", v.ID).
		Updates(map[string]any{
			"on_hand":    v.OnHand,
			"reserved":   v.Reserved,
			"active":     v.Active,
			"updated_at": v.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

func (r *repo) ListLowStock(ctx context.Context, db *gorm.DB) ([]domain.Variant, error) {
	var variants []domain.Variant
	err := db.WithContext(ctx).
		Where("(on_hand - reserved) <= min_stock").
		Order("(on_hand - reserved) asc, sku asc").
		Find(&variants).Error
	if err != nil {
		return nil, err
	}
	return variants, nil
}

func (r *repo) ListMenuRows(ctx context.Context, db *gorm.DB) ([]domain.MenuRow, error) {
	var rows []domain.MenuRow
	err := db.WithContext(ctx).Raw(
		`SELECT c.id AS category_id, c.name AS category_name,
		        p.id AS product_id, p.name AS product_name, p.description AS description,
		        v.id AS variant_id, v.name AS variant_name, v.price AS price,
		        v.on_hand AS on_hand, v.reserved AS reserved
		 FROM product_variants v
		 JOIN products p ON p.id = v.product_id
		 JOIN subcategories s ON s.id = p.subcategory_id
		 JOIN categories c ON c.id = s.category_id
		 WHERE c.active = ? AND p.active = ? AND v.active = ? AND v.on_hand > v.reserved
		 ORDER BY c.name, c.id, p.name, p.id, v.price, v.id`,
		true, true, true,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func first[T any](ctx context.Context, db *gorm.DB, id snowflake.ID) (*T, error) {
	var out T
	err := db.WithContext(ctx).Where("id = ?", id).Take(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
