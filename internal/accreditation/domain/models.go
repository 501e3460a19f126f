package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusUnderReview, StatusApproved, StatusRejected:
		return s, true
	}
	return "", false
}

// Request is a client's application for a credit line. An approved request
// always points at the line it produced.
type Request struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	ClientID     snowflake.ID    `gorm:"not null;index" json:"client_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status       Status          `gorm:"type:text;not null;index" json:"status"`
	StaffNote    string          `gorm:"type:text" json:"staff_note,omitempty"`
	CreditLineID *snowflake.ID   `gorm:"uniqueIndex" json:"credit_line_id,omitempty"`
	RequestedAt  time.Time       `gorm:"not null" json:"requested_at"`
	RespondedAt  *time.Time      `json:"responded_at,omitempty"`
	RejectedAt   *time.Time      `json:"rejected_at,omitempty"`
	RespondedBy  *snowflake.ID   `json:"responded_by,omitempty"`
}

func (Request) TableName() string { return "accreditation_requests" }

// Open reports whether the request still blocks a new submission.
func (r Request) Open() bool {
	return r.Status == StatusUnderReview || (r.Status == StatusApproved && r.CreditLineID == nil)
}

// CoolingDown reports whether a rejection still blocks reapplying at now.
func (r Request) CoolingDown(now time.Time, cooldown time.Duration) bool {
	return r.Status == StatusRejected && r.RejectedAt != nil && now.Before(r.RejectedAt.Add(cooldown))
}
