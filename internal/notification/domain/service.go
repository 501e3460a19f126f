package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/internal/actorcontext"
	"gorm.io/gorm"
)

type NotifyRequest struct {
	UserID  snowflake.ID
	Event   Event
	Payload map[string]any
}

// Notifier enqueues notifications. db may be the caller's transaction so the
// row commits or rolls back with the change it announces.
type Notifier interface {
	Notify(ctx context.Context, db *gorm.DB, req NotifyRequest) error
	NotifyRole(ctx context.Context, db *gorm.DB, role actorcontext.Role, event Event, payload map[string]any) error
}

// Sender delivers one notification over its channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

type DispatchResult struct {
	Claimed  int
	Sent     int
	Retrying int
	Failed   int
}

type SetPreferenceRequest struct {
	UserID      snowflake.ID `validate:"required"`
	Event       Event        `validate:"required"`
	ChannelCode string       `validate:"required"`
}

type Service interface {
	Notifier
	DispatchDue(ctx context.Context, limit int) (DispatchResult, error)
	SetPreference(ctx context.Context, req SetPreferenceRequest) (Preference, error)
	ListForUser(ctx context.Context, userID snowflake.ID) ([]Notification, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, n *Notification) error
	ClaimDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Notification, error)
	MarkAttempt(ctx context.Context, db *gorm.DB, n *Notification) error
	ListForUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Notification, error)
	FindChannel(ctx context.Context, db *gorm.DB, code string) (*Channel, error)
	FindPreference(ctx context.Context, db *gorm.DB, userID snowflake.ID, event Event) (*Preference, error)
	UpsertPreference(ctx context.Context, db *gorm.DB, p *Preference) error
	ListUserIDsByRole(ctx context.Context, db *gorm.DB, role actorcontext.Role) ([]snowflake.ID, error)
}

var (
	ErrInvalidEvent   = errors.New("invalid_event")
	ErrInvalidUser    = errors.New("invalid_user")
	ErrUnknownChannel = errors.New("unknown_channel")
	ErrPreferenceLost = errors.New("preference_not_persisted")
)
