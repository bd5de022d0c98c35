package domain

import "time"

const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Discount is a promo code. Value is a percentage or an amount depending on DiscountType.
type Discount struct {
	ID           int64   `db:"id" json:"id"`
	Code         string  `db:"code" json:"code"`
	Name         string  `db:"name" json:"name"`
	DiscountType string  `db:"discount_type" json:"discount_type"`
	Value        int64   `db:"value" json:"value"`
	MinPurchase  int64   `db:"min_purchase" json:"min_purchase"`
	MaxDiscount  *int64  `db:"max_discount" json:"max_discount"`
	IsActive     bool    `db:"is_active" json:"is_active"`
	ValidUntil   *string `db:"valid_until" json:"valid_until"`
	UsageLimit   *int64  `db:"usage_limit" json:"usage_limit"`
	UsageCount   int64   `db:"usage_count" json:"usage_count"`
	CreatedAt    string  `db:"created_at" json:"created_at,omitempty"`
}

// Amount returns how much the discount takes off subtotal. A nil discount takes nothing.
// The result never exceeds subtotal.
func (d *Discount) Amount(subtotal int64) int64 {
	if d == nil || subtotal <= 0 {
		return 0
	}
	switch d.DiscountType {
	case DiscountPercentage:
		amount := subtotal * d.Value / 100
		if d.MaxDiscount != nil && amount > *d.MaxDiscount {
			amount = *d.MaxDiscount
		}
		return clamp(amount, subtotal)
	case DiscountFixed:
		return clamp(d.Value, subtotal)
	}
	return 0
}

// Expired reports whether the discount has a ValidUntil before now.
// Unparseable dates are treated as no expiry.
func (d *Discount) Expired(now time.Time) bool {
	if d == nil || d.ValidUntil == nil || *d.ValidUntil == "" {
		return false
	}
	until, err := ParseTime(*d.ValidUntil)
	if err != nil {
		return false
	}
	return until.Before(now)
}

// Exhausted reports whether the usage limit has been reached.
func (d *Discount) Exhausted() bool {
	return d != nil && d.UsageLimit != nil && *d.UsageLimit > 0 && d.UsageCount >= *d.UsageLimit
}

func clamp(amount, max int64) int64 {
	if amount < 0 {
		return 0
	}
	if amount > max {
		return max
	}
	return amount
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime accepts the timestamp formats SQLite and API clients produce.
func ParseTime(value string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		t, perr := time.Parse(layout, value)
		if perr == nil {
			return t, nil
		}
		err = perr
	}
	return time.Time{}, err
}

// DiscountQuote is the result of validating a code against a subtotal.
type DiscountQuote struct {
	Discount       Discount `json:"discount"`
	DiscountAmount int64    `json:"discount_amount"`
	FinalTotal     int64    `json:"final_total"`
}
