package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/bistro/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.AuditLog, error) {
	var logs []domain.AuditLog
	err := db.WithContext(ctx).
		Scopes(matching(filter), within(filter), after(filter)).
		Order("created_at desc, id desc").
		Limit(limitPlusOne(filter.Limit)).
		Find(&logs).Error
	return logs, err
}

func matching(f domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		for _, eq := range [][2]string{
			{"action", f.Action},
			{"target_type", f.TargetType},
			{"target_id", f.TargetID},
		} {
			if v := strings.TrimSpace(eq[1]); v != "" {
				q = q.Where(eq[0]+" = ?", v)
			}
		}
		if f.ActorID != nil {
			q = q.Where("actor_id = ?", *f.ActorID)
		}
		return q
	}
}

func within(f domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if f.StartAt != nil {
			q = q.Where("created_at >= ?", f.StartAt.UTC())
		}
		if f.EndAt != nil {
			q = q.Where("created_at <= ?", f.EndAt.UTC())
		}
		return q
	}
}

// after continues a keyset page ordered by (created_at, id) descending.
func after(f domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if f.Cursor == nil {
			return q
		}
		c := f.Cursor
		return q.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
}

// limitPlusOne over-fetches a row so the caller can tell whether a next page exists.
// gorm treats -1 as no limit.
func limitPlusOne(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit + 1
}
