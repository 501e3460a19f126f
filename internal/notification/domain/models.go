package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Event string

const (
	EventUserRegistered   Event = "user_registered"
	EventOrderCreated     Event = "order_created"
	EventOrderDelivered   Event = "order_delivered"
	EventOrderCancelled   Event = "order_cancelled"
	EventCreditApproved   Event = "credit_approved"
	EventCreditRejected   Event = "credit_rejected"
	EventCreditConsumed   Event = "credit_consumed"
	EventCreditPaid       Event = "credit_paid"
	EventCreditSuspended  Event = "credit_suspended"
	EventCreditPaidInFull Event = "credit_paid_in_full"
	EventStockLow         Event = "stock_low"
	EventStockOut         Event = "stock_out"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusRetrying Status = "retrying"
	StatusFailed   Status = "failed"
)

// Channel is a seeded reference row; Code is the stable key.
type Channel struct {
	Code      string    `gorm:"primaryKey;type:text" json:"code"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Channel) TableName() string { return "notification_channels" }

// Preference routes one event of one user to a channel.
type Preference struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID      snowflake.ID `gorm:"not null;uniqueIndex:ux_notification_preferences_user_event" json:"user_id"`
	Event       Event        `gorm:"type:text;not null;uniqueIndex:ux_notification_preferences_user_event" json:"event"`
	ChannelCode string       `gorm:"type:text;not null" json:"channel"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Preference) TableName() string { return "notification_preferences" }

// Notification is an outbox row written in the same transaction as the change it announces.
type Notification struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID        snowflake.ID      `gorm:"not null;index" json:"user_id"`
	Event         Event             `gorm:"type:text;not null" json:"event"`
	ChannelCode   string            `gorm:"type:text;not null" json:"channel"`
	Payload       datatypes.JSONMap `gorm:"type:jsonb" json:"payload,omitempty"`
	Status        Status            `gorm:"type:text;not null;index:idx_notifications_due" json:"status"`
	Attempts      int               `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts   int               `gorm:"not null;default:3" json:"max_attempts"`
	NextAttemptAt time.Time         `gorm:"not null;index:idx_notifications_due" json:"next_attempt_at"`
	LastError     *string           `gorm:"type:text" json:"last_error,omitempty"`
	SentAt        *time.Time        `json:"sent_at,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Notification) TableName() string { return "notifications" }

// Fail records a failed delivery attempt and schedules the next one, or gives up
// once MaxAttempts is reached.
func (n *Notification) Fail(cause error, now time.Time, backoff time.Duration) {
	n.Attempts++
	msg := cause.Error()
	n.LastError = &msg
	n.UpdatedAt = now
	if n.Attempts >= n.MaxAttempts {
		n.Status = StatusFailed
		return
	}
	n.Status = StatusRetrying
	n.NextAttemptAt = now.Add(backoff)
}

// Succeed marks the notification delivered.
func (n *Notification) Succeed(now time.Time) {
	n.Attempts++
	n.Status = StatusSent
	n.SentAt = &now
	n.LastError = nil
	n.UpdatedAt = now
}

// Terminal reports whether the dispatcher is done with the row.
func (n *Notification) Terminal() bool {
	return n.Status == StatusSent || n.Status == StatusFailed
}
