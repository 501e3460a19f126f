package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SubmitRequest struct {
	Amount decimal.Decimal
}

type RespondRequest struct {
	RequestID snowflake.ID `validate:"required"`
	Status    string       `validate:"required"`
	StaffNote string       `validate:"max=1000"`
}

type BatchResult struct {
	Approved []Request
	Skipped  []snowflake.ID
}

type Service interface {
	Submit(ctx context.Context, req SubmitRequest) (Request, error)
	Respond(ctx context.Context, req RespondRequest) (Request, error)
	ApproveBatch(ctx context.Context, ids []snowflake.ID) (BatchResult, error)
	Get(ctx context.Context, id snowflake.ID) (Request, error)
	List(ctx context.Context, status Status) ([]Request, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, r *Request) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Request, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Request, error)
	ListByClient(ctx context.Context, db *gorm.DB, clientID snowflake.ID) ([]Request, error)
	LatestRejection(ctx context.Context, db *gorm.DB, clientID snowflake.ID) (*Request, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Request, error)
	Update(ctx context.Context, db *gorm.DB, r *Request) error
}

type ListFilter struct {
	Status   Status
	ClientID *snowflake.ID
}

var (
	ErrDuplicateRequest = errors.New("duplicate_request")
	ErrAlreadyResponded = errors.New("already_responded")
	ErrUnknownStatus    = errors.New("unknown_status")
	ErrReapplyCooldown  = errors.New("reapply_cooldown")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrNotFound         = errors.New("accreditation_request_not_found")
)
