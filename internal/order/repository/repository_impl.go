package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(o).Error
}

func (r *repo) FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.find(ctx, db, id, false)
}

// FindOrderForUpdate locks the order row; lines are loaded in variant order so
// stock rows are always locked in the same sequence.
func (r *repo) FindOrderForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return r.find(ctx, db, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*domain.Order, error) {
	q := db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var o domain.Order
	err := q.Where("id = ?", id).Take(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).
		Where("order_id = ?", o.ID).
		Order("variant_id ASC").
		Order("id ASC").
		Find(&o.Lines).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repo) UpdateOrder(ctx context.Context, db *gorm.DB, o *domain.Order) error {
	res := db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", o.ID).
		Updates(map[string]any{
			"status":       o.Status,
			"total":        o.Total,
			"cancelled":    o.Cancelled,
			"cancelled_at": o.CancelledAt,
			"delivered_at": o.DeliveredAt,
			"updated_at":   o.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, l *domain.Line) error {
	return db.WithContext(ctx).Create(l).Error
}

func (r *repo) UpdateLine(ctx context.Context, db *gorm.DB, l *domain.Line) error {
	res := db.WithContext(ctx).Model(&domain.Line{}).
		Where("id = ?", l.ID).
		Updates(map[string]any{
			"quantity":   l.Quantity,
			"subtotal":   l.Subtotal,
			"reserved":   l.Reserved,
			"updated_at": l.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrLineNotFound
	}
	return nil
}

func (r *repo) DeleteLine(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Line{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrLineNotFound
	}
	return nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Order, error) {
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ClientID != nil {
		stmt = stmt.Where("client_id = ?", *filter.ClientID)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var orders []domain.Order
	if err := stmt.Preload("Lines").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListByStatusBetween(ctx context.Context, db *gorm.DB, statuses []domain.Status, from, to time.Time) ([]domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at asc, id asc").
		Preload("Lines").
		Find(&orders).Error
	return orders, err
}
