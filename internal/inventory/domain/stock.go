package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Available is the quantity that can still be reserved or sold.
func (v *Variant) Available() int {
	if v.OnHand <= v.Reserved {
		return 0
	}
	return v.OnHand - v.Reserved
}

// LowStock reports whether availability reached the minimum threshold.
func (v *Variant) LowStock() bool {
	return v.Available() <= v.MinStock
}

// Margin is the gross margin as a percentage of price.
func (v *Variant) Margin() decimal.Decimal {
	if !v.Price.IsPositive() {
		return decimal.Zero
	}
	return v.Price.Sub(v.Cost).Div(v.Price).Mul(hundred).Round(2)
}

// Reserve holds qty units for a pending order.
func (v *Variant) Reserve(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > v.Available() {
		return ErrInsufficientStock
	}
	v.Reserved += qty
	v.refresh()
	return nil
}

// Release returns qty reserved units. Releasing more than is reserved clamps to zero.
func (v *Variant) Release(qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	v.Reserved -= qty
	if v.Reserved < 0 {
		v.Reserved = 0
	}
	v.refresh()
	return nil
}

// Commit consumes qty reserved units from on-hand stock.
func (v *Variant) Commit(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > v.Available() {
		return ErrInsufficientStock
	}
	v.Reserved -= qty
	if v.Reserved < 0 {
		v.Reserved = 0
	}
	v.OnHand -= qty
	v.refresh()
	return nil
}

// Deduct takes qty units off on-hand stock without touching other reservations.
func (v *Variant) Deduct(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if qty > v.Available() {
		return ErrInsufficientStock
	}
	v.OnHand -= qty
	v.refresh()
	return nil
}

// Restock adds qty units to on-hand stock.
func (v *Variant) Restock(qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	v.OnHand += qty
	v.refresh()
	return nil
}

// Normalize repairs the derived fields after the row was loaded or edited.
func (v *Variant) Normalize() {
	if v.OnHand < 0 {
		v.OnHand = 0
	}
	if v.Reserved < 0 {
		v.Reserved = 0
	}
	// reserved never exceeds on_hand
	if v.Reserved > v.OnHand {
		v.Reserved = v.OnHand
	}
	v.refresh()
}

func (v *Variant) refresh() {
	v.Active = v.Available() > 0
}
