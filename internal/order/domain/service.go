package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bistro/pkg/db/pagination"
	"gorm.io/gorm"
)

type LineInput struct {
	VariantID snowflake.ID `validate:"required"`
	Quantity  int          `validate:"gte=1"`
}

type CreateOrderRequest struct {
	ClientID      *snowflake.ID
	Type          string      `validate:"omitempty,oneof=dine_in takeaway"`
	TableNumber   *int        `validate:"omitempty,gte=1"`
	Notes         string      `validate:"max=1000"`
	PaymentMethod string      `validate:"omitempty"`
	Lines         []LineInput `validate:"dive"`
}

type ListOrderRequest struct {
	pagination.Pagination
	Status   Status
	ClientID *snowflake.ID
}

type ListOrderResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type ListFilter struct {
	Status   Status
	ClientID *snowflake.ID
	Cursor   *pagination.Cursor
	Limit    int
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	AddLine(ctx context.Context, orderID snowflake.ID, in LineInput) (Order, error)
	UpdateLineQuantity(ctx context.Context, orderID, lineID snowflake.ID, qty int) (Order, error)
	RemoveLine(ctx context.Context, orderID, lineID snowflake.ID) (Order, error)
	// Confirm holds stock for every line and moves the order to target
	// (Pending or InKitchen).
	Confirm(ctx context.Context, orderID snowflake.ID, target Status) (Order, error)
	Advance(ctx context.Context, orderID snowflake.ID) (Order, error)
	Deliver(ctx context.Context, orderID snowflake.ID) (Order, error)
	Cancel(ctx context.Context, orderID snowflake.ID) (Order, error)
	// Transition lets an administrator jump the order straight to target.
	Transition(ctx context.Context, orderID snowflake.ID, target Status) (Order, error)
	Get(ctx context.Context, orderID snowflake.ID) (Order, error)
	List(ctx context.Context, req ListOrderRequest) (ListOrderResponse, error)
	KitchenQueue(ctx context.Context, day time.Time) ([]Order, error)
}

type Repository interface {
	InsertOrder(ctx context.Context, db *gorm.DB, o *Order) error
	FindOrder(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindOrderForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	UpdateOrder(ctx context.Context, db *gorm.DB, o *Order) error
	InsertLine(ctx context.Context, db *gorm.DB, l *Line) error
	UpdateLine(ctx context.Context, db *gorm.DB, l *Line) error
	DeleteLine(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Order, error)
	ListByStatusBetween(ctx context.Context, db *gorm.DB, statuses []Status, from, to time.Time) ([]Order, error)
}

var (
	ErrAlreadyCancelled     = errors.New("already_cancelled")
	ErrOrderFinalized       = errors.New("order_finalized")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrClientRequired       = errors.New("client_required")
	ErrEmptyOrder           = errors.New("empty_order")
	ErrNotFound             = errors.New("order_not_found")
	ErrLineNotFound         = errors.New("order_line_not_found")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrNotOwner             = errors.New("order_not_owned_by_actor")
)
