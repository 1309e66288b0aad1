package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Built-in slot defaults (Canadian GST/QST).
const (
	DefaultTax1Label = "GST"
	DefaultTax2Label = "QST"
)

var (
	DefaultTax1Rate = decimal.RequireFromString("5")
	DefaultTax2Rate = decimal.RequireFromString("9.975")
)

var hundred = decimal.NewFromInt(100)

// Rule is one tax slot as applied at save time.
type Rule struct {
	Label              string          `json:"label"`
	RatePercent        decimal.Decimal `json:"ratePercent"`
	RegistrationNumber string          `json:"number"`
	Enabled            bool            `json:"enabled"`
}

// RateDecimal returns the rate as a fraction (9.975 -> 0.09975).
func (r Rule) RateDecimal() decimal.Decimal {
	return r.RatePercent.Div(hundred)
}

// Config is the pair of independent tax rules used by one recalculation.
type Config struct {
	Tax1 Rule `json:"tax1"`
	Tax2 Rule `json:"tax2"`
}

// Resolver returns the tax configuration active inside the caller's
// transaction, creating default settings on first use.
type Resolver interface {
	Current(ctx context.Context, db *gorm.DB) (Config, error)
}
