package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GrantRequest struct {
	ClientID  snowflake.ID
	Limit     decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
}

type ConsumeRequest struct {
	CreditLineID snowflake.ID `validate:"required"`
	Amount       decimal.Decimal
	Detail       string `validate:"max=500"`
	OrderID      *snowflake.ID
}

type PayRequest struct {
	CreditLineID snowflake.ID `validate:"required"`
	Amount       decimal.Decimal
	Detail       string `validate:"max=500"`
}

// MovementResult is the line after a movement together with the movement itself.
type MovementResult struct {
	Line       CreditLine
	Movement   Movement
	Transition Transition
}

type Service interface {
	// Grant opens a line after checking the actor may grant credit.
	Grant(ctx context.Context, req GrantRequest) (CreditLine, error)
	// Open opens a line on db without an authorization check. Callers own the gate.
	Open(ctx context.Context, db *gorm.DB, req GrantRequest) (CreditLine, error)
	// Consume debits a line. db may be the caller's transaction; nil opens one.
	Consume(ctx context.Context, db *gorm.DB, req ConsumeRequest) (MovementResult, error)
	Pay(ctx context.Context, req PayRequest) (MovementResult, error)
	StaffPayment(ctx context.Context, req PayRequest) (MovementResult, error)
	GetActiveByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (CreditLine, error)
	Get(ctx context.Context, id snowflake.ID) (CreditLine, error)
	ListByClient(ctx context.Context, clientID snowflake.ID) ([]CreditLine, error)
	ListMovements(ctx context.Context, lineID snowflake.ID) ([]Movement, error)
	ListAudit(ctx context.Context, lineID snowflake.ID) ([]Audit, error)
	ExtendValidity(ctx context.Context, lineID snowflake.ID, end time.Time) (CreditLine, error)
	Recompute(ctx context.Context, lineID snowflake.ID) (CreditLine, error)
}

type Repository interface {
	InsertLine(ctx context.Context, db *gorm.DB, line *CreditLine) error
	FindLine(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CreditLine, error)
	FindLineForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CreditLine, error)
	FindActiveByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*CreditLine, error)
	ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]CreditLine, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, line *CreditLine) error
	UpdateEndDate(ctx context.Context, db *gorm.DB, line *CreditLine) error
	InsertMovement(ctx context.Context, db *gorm.DB, m *Movement) error
	ListMovements(ctx context.Context, db *gorm.DB, lineID snowflake.ID) ([]Movement, error)
	InsertAudit(ctx context.Context, db *gorm.DB, a *Audit) error
	ListAudit(ctx context.Context, db *gorm.DB, lineID snowflake.ID) ([]Audit, error)
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrOverPayment         = errors.New("over_payment")
	ErrNoDebt              = errors.New("no_debt")
	ErrAlreadyPaid         = errors.New("already_paid")
	ErrNoActiveCredit      = errors.New("no_active_credit")
	ErrOutOfDateRange      = errors.New("out_of_date_range")
	ErrInconsistentState   = errors.New("inconsistent_state")
	ErrInvalidClient       = errors.New("invalid_client")
	ErrInvalidWindow       = errors.New("invalid_validity_window")
	ErrExpired             = errors.New("credit_expired")
	ErrNotOwner            = errors.New("credit_not_owned_by_actor")
	ErrNotFound            = errors.New("credit_line_not_found")
)
