package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusPaid      Status = "paid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusPaid:
		return true
	}
	return false
}

type MovementKind string

const (
	KindConsumption MovementKind = "consumption"
	KindPayment     MovementKind = "payment"
)

// Label is the human-readable movement name used in audit rows.
func (k MovementKind) Label() string {
	switch k {
	case KindConsumption:
		return "Consumo"
	case KindPayment:
		return "Pago"
	}
	return string(k)
}

// CreditLine is a client's revolving store credit. Balance is a projection of
// its movements and is only written together with a new movement.
type CreditLine struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	ClientID      snowflake.ID    `gorm:"not null;index" json:"client_id"`
	Limit         decimal.Decimal `gorm:"column:credit_limit;type:numeric(12,2);not null" json:"limit"`
	Balance       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance"`
	Status        Status          `gorm:"type:text;not null;index" json:"status"`
	StartDate     time.Time       `gorm:"not null" json:"start_date"`
	EndDate       *time.Time      `json:"end_date,omitempty"`
	MovementCount int             `gorm:"not null;default:0" json:"movement_count"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (CreditLine) TableName() string { return "credit_lines" }

type Movement struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	CreditLineID snowflake.ID    `gorm:"not null;index" json:"credit_line_id"`
	Kind         MovementKind    `gorm:"type:text;not null" json:"kind"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"balance_after"`
	OrderID      *snowflake.ID   `gorm:"index" json:"order_id,omitempty"`
	UserID       *snowflake.ID   `json:"user_id,omitempty"`
	Detail       string          `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Movement) TableName() string { return "credit_movements" }

type Audit struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	CreditLineID snowflake.ID  `gorm:"not null;index" json:"credit_line_id"`
	UserID       *snowflake.ID `json:"user_id,omitempty"`
	OrderID      *snowflake.ID `json:"order_id,omitempty"`
	Action       string        `gorm:"type:text;not null" json:"action"`
	Detail       string        `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Audit) TableName() string { return "credit_audits" }
