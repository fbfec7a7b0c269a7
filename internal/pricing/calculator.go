// Package pricing turns a cart of GST-inclusive lines into invoice totals.
//
// The base price is backed out of the inclusive subtotal with the store's
// default GST rate, while the GST charged on the invoice uses the bracket
// rate picked from the discounted base price. Issued invoices depend on this
// exact formula; keep the two rates separate.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"slaydrip/backend/internal/domain"
	"slaydrip/backend/internal/store"
)

var (
	BracketThreshold   = decimal.NewFromInt(1500)
	LowBracketPercent  = decimal.NewFromInt(5)
	HighBracketPercent = decimal.NewFromInt(12)

	hundred = decimal.NewFromInt(100)
)

type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Breakdown holds unrounded results; call Rounded before presenting or persisting.
type Breakdown struct {
	SubtotalInclusive   decimal.Decimal
	BasePriceTotal      decimal.Decimal
	DiscountPercent     decimal.Decimal
	DiscountAmount      decimal.Decimal
	DiscountedBasePrice decimal.Decimal
	GSTPercent          decimal.Decimal
	GSTAmount           decimal.Decimal
	GrandTotal          decimal.Decimal
}

func LinesFromCart(cart []domain.CartLine) []Line {
	lines := make([]Line, 0, len(cart))
	for _, item := range cart {
		lines = append(lines, Line{UnitPrice: item.Price, Quantity: item.Quantity})
	}
	return lines
}

func Calculate(lines []Line, discountPercent decimal.Decimal, defaultGSTPercent decimal.Decimal) (Breakdown, error) {
	if discountPercent.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: discount_percent must not be negative", store.ErrValidation)
	}
	if defaultGSTPercent.IsNegative() {
		return Breakdown{}, fmt.Errorf("%w: gst_percent must not be negative", store.ErrValidation)
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 0 || line.UnitPrice.IsNegative() {
			return Breakdown{}, fmt.Errorf("%w: negative price or quantity", store.ErrValidation)
		}
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	multiplier := decimal.NewFromInt(1).Add(defaultGSTPercent.Div(hundred))
	base := subtotal.Div(multiplier)
	discount := base.Mul(discountPercent).Div(hundred)
	discounted := base.Sub(discount)
	bracket := BracketPercent(discounted)
	gst := discounted.Mul(bracket).Div(hundred)

	return Breakdown{
		SubtotalInclusive:   subtotal,
		BasePriceTotal:      base,
		DiscountPercent:     discountPercent,
		DiscountAmount:      discount,
		DiscountedBasePrice: discounted,
		GSTPercent:          bracket,
		GSTAmount:           gst,
		GrandTotal:          discounted.Add(gst),
	}, nil
}

// BracketPercent returns 5 below the threshold and 12 at or above it.
func BracketPercent(discountedBase decimal.Decimal) decimal.Decimal {
	if discountedBase.LessThan(BracketThreshold) {
		return LowBracketPercent
	}
	return HighBracketPercent
}

func (b Breakdown) Rounded() domain.PriceBreakdown {
	return domain.PriceBreakdown{
		SubtotalInclusive:   b.SubtotalInclusive.Round(2),
		BasePriceTotal:      b.BasePriceTotal.Round(2),
		DiscountPercent:     b.DiscountPercent,
		DiscountAmount:      b.DiscountAmount.Round(2),
		DiscountedBasePrice: b.DiscountedBasePrice.Round(2),
		GSTPercent:          b.GSTPercent,
		GSTAmount:           b.GSTAmount.Round(2),
		GrandTotal:          b.GrandTotal.Round(2),
	}
}
