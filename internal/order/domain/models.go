package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusInKitchen Status = "in_kitchen"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var statusRank = map[Status]int{
	StatusPending:   1,
	StatusInKitchen: 2,
	StatusReady:     3,
	StatusDelivered: 4,
	StatusCancelled: 5,
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := statusRank[s]
	return s, ok
}

func (s Status) Rank() int { return statusRank[s] }

// Terminal statuses freeze the order and its lines.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Holding statuses keep stock reserved for the order's lines.
func (s Status) Holding() bool {
	return s == StatusPending || s == StatusInKitchen || s == StatusReady
}

// Next is the kitchen step that follows s, if any.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusPending:
		return StatusInKitchen, true
	case StatusInKitchen:
		return StatusReady, true
	}
	return "", false
}

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCredit   PaymentMethod = "credit"
)

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch m := PaymentMethod(raw); m {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCredit:
		return m, true
	}
	return "", false
}

type Type string

const (
	TypeDineIn   Type = "dine_in"
	TypeTakeaway Type = "takeaway"
)

func ParseType(raw string) (Type, bool) {
	switch t := Type(raw); t {
	case TypeDineIn, TypeTakeaway:
		return t, true
	}
	return "", false
}

type Order struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	ClientID      *snowflake.ID   `gorm:"index" json:"client_id,omitempty"`
	StaffID       *snowflake.ID   `json:"staff_id,omitempty"`
	Status        Status          `gorm:"type:text;not null;index" json:"status"`
	Type          Type            `gorm:"type:text;not null" json:"type"`
	TableNumber   *int            `json:"table_number,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	PaymentMethod PaymentMethod   `gorm:"type:text;not null" json:"payment_method"`
	Total         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Cancelled     bool            `gorm:"not null;default:false" json:"cancelled"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	DeliveredAt   *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`

	Lines []Line `gorm:"foreignKey:OrderID" json:"lines,omitempty"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// Line is one item of an order. Reserved is the quantity currently held in the
// stock ledger on behalf of this line.
type Line struct {
	ID        snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrderID   snowflake.ID    `gorm:"not null;index" json:"order_id"`
	VariantID snowflake.ID    `gorm:"not null;index" json:"variant_id"`
	Quantity  int             `gorm:"not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Subtotal  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Reserved  int             `gorm:"not null;default:0" json:"reserved"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Line) TableName() string { return "order_lines" }

func (l *Line) SetQuantity(qty int) {
	l.Quantity = qty
	l.Subtotal = l.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// Recalculate sets Total to the sum of the line subtotals and reports whether it changed.
func (o *Order) Recalculate() bool {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal)
	}
	if total.Equal(o.Total) {
		return false
	}
	o.Total = total
	return true
}

// Editable fails for orders that reached a terminal status.
func (o *Order) Editable() error {
	if o.Cancelled || o.Status.Terminal() {
		return ErrOrderFinalized
	}
	return nil
}

// Live fails when the order cannot move through the lifecycle any more.
func (o *Order) Live() error {
	if o.Cancelled || o.Status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if o.Status == StatusDelivered {
		return ErrOrderFinalized
	}
	return nil
}
