package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// validAmount holds for positive amounts with at most cents precision.
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

// Derive maps a balance to the status it implies.
func Derive(balance, limit decimal.Decimal) Status {
	switch {
	case balance.Equal(limit):
		return StatusPaid
	case balance.IsPositive():
		return StatusActive
	default:
		return StatusSuspended
	}
}

// Transition describes the effect of one movement on a line.
type Transition struct {
	Kind          MovementKind
	Amount        decimal.Decimal
	From          Status
	To            Status
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// IsReactivation reports whether the movement lifts a suspension. Callers gate
// it on administrator privilege.
func (t Transition) IsReactivation() bool {
	return t.From == StatusSuspended && t.To != StatusSuspended
}

func (t Transition) StatusChanged() bool {
	return t.From != t.To
}

func (c *CreditLine) Debt() decimal.Decimal {
	return c.Limit.Sub(c.Balance)
}

// ExpectedStatus is the status the line must carry. A line that never moved
// stays Active even though its balance equals the limit.
func (c *CreditLine) ExpectedStatus() Status {
	if c.MovementCount == 0 {
		return StatusActive
	}
	return Derive(c.Balance, c.Limit)
}

// Contains reports whether t falls inside the validity window.
func (c *CreditLine) Contains(t time.Time) bool {
	if t.Before(c.StartDate) {
		return false
	}
	return c.EndDate == nil || !t.After(*c.EndDate)
}

// Expired reports whether the validity window closed before t.
func (c *CreditLine) Expired(t time.Time) bool {
	return c.EndDate != nil && t.After(*c.EndDate)
}

// Check validates the stored fields against the ledger rules.
func (c *CreditLine) Check() error {
	if !c.Limit.IsPositive() {
		return ErrInvalidAmount
	}
	if c.Balance.IsNegative() || c.Balance.GreaterThan(c.Limit) {
		return ErrInconsistentState
	}
	if c.Status == StatusPaid && c.Debt().IsPositive() {
		return ErrInconsistentState
	}
	if c.Status != c.ExpectedStatus() {
		return ErrInconsistentState
	}
	return nil
}

// Consume takes amount off the balance.
func (c *CreditLine) Consume(amount decimal.Decimal, at time.Time) (Transition, error) {
	if !validAmount(amount) {
		return Transition{}, ErrInvalidAmount
	}
	if amount.GreaterThan(c.Balance) {
		return Transition{}, ErrInsufficientBalance
	}
	if !c.Contains(at) {
		return Transition{}, ErrOutOfDateRange
	}
	return c.apply(KindConsumption, amount, c.Balance.Sub(amount), at), nil
}

// Pay returns amount to the balance.
func (c *CreditLine) Pay(amount decimal.Decimal, at time.Time) (Transition, error) {
	if !validAmount(amount) {
		return Transition{}, ErrInvalidAmount
	}
	if c.Status == StatusPaid {
		return Transition{}, ErrAlreadyPaid
	}
	debt := c.Debt()
	if !debt.IsPositive() {
		return Transition{}, ErrNoDebt
	}
	if amount.GreaterThan(debt) {
		return Transition{}, ErrOverPayment
	}
	if !c.Contains(at) {
		return Transition{}, ErrOutOfDateRange
	}
	return c.apply(KindPayment, amount, c.Balance.Add(amount), at), nil
}

func (c *CreditLine) apply(kind MovementKind, amount, balance decimal.Decimal, at time.Time) Transition {
	t := Transition{
		Kind:          kind,
		Amount:        amount,
		From:          c.Status,
		BalanceBefore: c.Balance,
		BalanceAfter:  balance,
	}
	c.Balance = balance
	c.MovementCount++
	c.Status = c.ExpectedStatus()
	c.UpdatedAt = at
	t.To = c.Status
	return t
}
