// Package calc recomputes invoice money from untrusted line input.
//
// All amounts are integer cents. Every line is rounded on its own (half
// away from zero) and invoice totals are plain sums of the rounded line
// figures, so the header always equals what the printed lines add up to.
package calc

import (
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/invoicer/internal/tax/domain"
)

// QuantityScale is the number of fractional quantity digits persisted.
const QuantityScale = 4

var hundred = decimal.NewFromInt(100)

// Input bounds. Inside them every cent figure, invoice totals included,
// fits in int64 for tax rates up to 100%. All three are exclusive and
// Recalculate does not check them.
var (
	// MaxQuantity matches the numeric(12,4) quantity column.
	MaxQuantity = decimal.New(1, 8)
	// MaxUnitPrice is in currency units.
	MaxUnitPrice = decimal.New(1, 10)
	// MaxInvoiceAmount bounds the sum of quantity x unit price.
	MaxInvoiceAmount = decimal.New(1, 13)
)

// Input is one submitted line.
type Input struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	// Taxable is nil when the caller did not say; nil means taxable.
	Taxable *bool
}

// Line is one computed line in input order.
type Line struct {
	Position          int
	Description       string
	Quantity          decimal.Decimal
	UnitPriceCents    int64
	Taxable           bool
	LineSubtotalCents int64
	Tax1Cents         int64
	Tax2Cents         int64
	LineTotalCents    int64
}

// Result is the recomputed invoice.
type Result struct {
	Lines         []Line
	SubtotalCents int64
	Tax1Cents     int64
	Tax2Cents     int64
	TotalCents    int64
}

// Recalculate computes line and invoice figures. It does no I/O and returns
// the same Result for the same arguments.
func Recalculate(items []Input, cfg taxdomain.Config) Result {
	rate1 := effectiveRate(cfg.Tax1)
	rate2 := effectiveRate(cfg.Tax2)

	out := Result{Lines: make([]Line, 0, len(items))}
	for i, item := range items {
		line := computeLine(i, item, rate1, rate2)
		out.Lines = append(out.Lines, line)
		out.SubtotalCents += line.LineSubtotalCents
		out.Tax1Cents += line.Tax1Cents
		out.Tax2Cents += line.Tax2Cents
	}
	out.TotalCents = out.SubtotalCents + out.Tax1Cents + out.Tax2Cents
	return out
}

// ToCents converts a currency amount to cents, rounding half away from
// zero. Negative amounts clamp to zero.
func ToCents(amount decimal.Decimal) int64 {
	cents := amount.Mul(hundred).Round(0)
	if cents.IsNegative() {
		return 0
	}
	return cents.IntPart()
}

// NormalizeQuantity clamps negatives to zero and rounds to QuantityScale.
func NormalizeQuantity(qty decimal.Decimal) decimal.Decimal {
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	return qty.Round(QuantityScale)
}

func computeLine(position int, item Input, rate1, rate2 decimal.Decimal) Line {
	qty := NormalizeQuantity(item.Quantity)
	unitCents := ToCents(item.UnitPrice)
	taxable := item.Taxable == nil || *item.Taxable

	subtotal := qty.Mul(decimal.NewFromInt(unitCents)).Round(0).IntPart()

	var tax1, tax2 int64
	if taxable {
		tax1 = applyRate(subtotal, rate1)
		tax2 = applyRate(subtotal, rate2)
	}

	return Line{
		Position:          position,
		Description:       item.Description,
		Quantity:          qty,
		UnitPriceCents:    unitCents,
		Taxable:           taxable,
		LineSubtotalCents: subtotal,
		Tax1Cents:         tax1,
		Tax2Cents:         tax2,
		LineTotalCents:    subtotal + tax1 + tax2,
	}
}

func effectiveRate(rule taxdomain.Rule) decimal.Decimal {
	if !rule.Enabled {
		return decimal.Zero
	}
	return rule.RateDecimal()
}

func applyRate(subtotal int64, rate decimal.Decimal) int64 {
	if subtotal == 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(subtotal).Mul(rate).Round(0).IntPart()
}
