package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"github.com/smallbiznis/bistro/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Create(n).Error
}

// ClaimDue locks due rows so concurrent dispatchers never pick the same notification.
func (r *repo) ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Notification, error) {
	var items []domain.Notification
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status IN ?", []domain.Status{domain.StatusPending, domain.StatusRetrying}).
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *repo) MarkAttempt(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", n.ID).
		Updates(map[string]any{
			"status":          n.Status,
			"attempts":        n.Attempts,
			"next_attempt_at": n.NextAttemptAt,
			"last_error":      n.LastError,
			"sent_at":         n.SentAt,
			"updated_at":      n.UpdatedAt,
		}).Error
}

func (r *repo) ListForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Notification, error) {
	var items []domain.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&items).Error
	return items, err
}

func (r *repo) FindChannel(ctx context.Context, db *gorm.DB, code string) (*domain.Channel, error) {
	var ch domain.Channel
	err := db.WithContext(ctx).Where("code = ?", code).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *repo) FindPreference(ctx context.Context, db *gorm.DB, userID snowflake.ID, event domain.Event) (*domain.Preference, error) {
	var p domain.Preference
	err := db.WithContext(ctx).
		Where("user_id = ? AND event = ?", userID, event).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) UpsertPreference(ctx context.Context, db *gorm.DB, p *domain.Preference) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event"}},
			DoUpdates: clause.AssignmentColumns([]string{"channel_code", "updated_at"}),
		}).
		Create(p).Error
}

func (r *repo) ListUserIDsByRole(ctx context.Context, db *gorm.DB, role actorcontext.Role) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Table("users").
		Where("role = ? AND active = ?", role, true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
