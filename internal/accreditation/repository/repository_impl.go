package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/accreditation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return db.WithContext(ctx).Create(req).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Request, error) {
	return take(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Request, error) {
	return take(db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *repo) ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]domain.Request, error) {
	var out []domain.Request
	err := db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("requested_at DESC").
		Order("id DESC").
		Find(&out).Error
	return out, err
}

func (r *repo) LatestRejection(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*domain.Request, error) {
	return take(db.WithContext(ctx).
		Where("client_id = ? AND status = ? AND rejected_at IS NOT NULL", clientID, domain.StatusRejected).
		Order("rejected_at DESC"))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Request, error) {
	stmt := db.WithContext(ctx).Model(&domain.Request{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ClientID != nil {
		stmt = stmt.Where("client_id = ?", *filter.ClientID)
	}

	var out []domain.Request
	err := stmt.Order("requested_at DESC").Order("id DESC").Find(&out).Error
	return out, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, req *domain.Request) error {
	return db.WithContext(ctx).
		Model(&domain.Request{}).
		Where("id = ?", req.ID).
		Updates(map[string]any{
			"status":         req.Status,
			"staff_note":     req.StaffNote,
			"credit_line_id": req.CreditLineID,
			"responded_at":   req.RespondedAt,
			"rejected_at":    req.RejectedAt,
			"responded_by":   req.RespondedBy,
		}).Error
}

func take(stmt *gorm.DB) (*domain.Request, error) {
	var out domain.Request
	if err := stmt.Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}
