package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/credit/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertLine(ctx context.Context, db *gorm.DB, line *domain.CreditLine) error {
	return db.WithContext(ctx).Create(line).Error
}

func (r *repo) FindLine(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CreditLine, error) {
	return take(db.WithContext(ctx).Where("id = ?", id))
}

// FindLineForUpdate serializes movements on one line until the transaction ends.
func (r *repo) FindLineForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CreditLine, error) {
	return take(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) FindActiveByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*domain.CreditLine, error) {
	return take(db.WithContext(ctx).
		Where("client_id = ? AND status = ?", clientID, domain.StatusActive).
		Order("created_at DESC").
		Order("id DESC"))
}

func (r *repo) ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]domain.CreditLine, error) {
	var lines []domain.CreditLine
	err := db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("start_date DESC").
		Order("id DESC").
		Find(&lines).Error
	return lines, err
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, line *domain.CreditLine) error {
	return updates(ctx, db, line.ID, map[string]any{
		"balance":        line.Balance,
		"status":         line.Status,
		"movement_count": line.MovementCount,
		"updated_at":     line.UpdatedAt,
	})
}

func (r *repo) UpdateEndDate(ctx context.Context, db *gorm.DB, line *domain.CreditLine) error {
	return updates(ctx, db, line.ID, map[string]any{
		"end_date":   line.EndDate,
		"updated_at": line.UpdatedAt,
	})
}

func (r *repo) InsertMovement(ctx context.Context, db *gorm.DB, m *domain.Movement) error {
	return db.WithContext(ctx).Create(m).Error
}

func (r *repo) ListMovements(ctx context.Context, db *gorm.DB, lineID snowflake.ID) ([]domain.Movement, error) {
	var items []domain.Movement
	err := db.WithContext(ctx).
		Where("credit_line_id = ?", lineID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	return items, err
}

func (r *repo) InsertAudit(ctx context.Context, db *gorm.DB, a *domain.Audit) error {
	return db.WithContext(ctx).Create(a).Error
}

func (r *repo) ListAudit(ctx context.Context, db *gorm.DB, lineID snowflake.ID) ([]domain.Audit, error) {
	var items []domain.Audit
	err := db.WithContext(ctx).
		Where("credit_line_id = ?", lineID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	return items, err
}

func take(q *gorm.DB) (*domain.CreditLine, error) {
	var line domain.CreditLine
	err := q.Take(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func updates(ctx context.Context, db *gorm.DB, id snowflake.ID, values map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.CreditLine{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
