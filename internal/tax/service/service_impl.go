package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	settingsdomain "github.com/smallbiznis/invoicer/internal/settings/domain"
	taxdomain "github.com/smallbiznis/invoicer/internal/tax/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type ResolverParams struct {
	fx.In

	Settings settingsdomain.Repository
}

type resolver struct {
	settings settingsdomain.Repository
}

func NewResolver(p ResolverParams) taxdomain.Resolver {
	return &resolver{settings: p.Settings}
}

func (r *resolver) Current(ctx context.Context, db *gorm.DB) (taxdomain.Config, error) {
	settings, err := r.settings.Ensure(ctx, db)
	if err != nil {
		return taxdomain.Config{}, err
	}
	return Resolve(*settings), nil
}

// Resolve derives both tax rules from a settings row. It never fails:
// blank labels and missing rates take the slot defaults, negative rates
// clamp to zero and blank numbers fall back to the legacy GST/QST numbers.
func Resolve(s settingsdomain.Settings) taxdomain.Config {
	return taxdomain.Config{
		Tax1: resolveRule(s.Tax1Label, s.Tax1Rate, s.Tax1Number, s.GSTNumber, taxdomain.DefaultTax1Label, taxdomain.DefaultTax1Rate),
		Tax2: resolveRule(s.Tax2Label, s.Tax2Rate, s.Tax2Number, s.QSTNumber, taxdomain.DefaultTax2Label, taxdomain.DefaultTax2Rate),
	}
}

func resolveRule(label string, rate decimal.NullDecimal, number, legacyNumber, defaultLabel string, defaultRate decimal.Decimal) taxdomain.Rule {
	label = strings.TrimSpace(label)
	if label == "" {
		label = defaultLabel
	}

	percent := defaultRate
	if rate.Valid {
		percent = rate.Decimal
	}
	if percent.IsNegative() {
		percent = decimal.Zero
	}

	number = strings.TrimSpace(number)
	if number == "" {
		number = strings.TrimSpace(legacyNumber)
	}

	return taxdomain.Rule{
		Label:              label,
		RatePercent:        percent,
		RegistrationNumber: number,
		Enabled:            label != "" && percent.IsPositive(),
	}
}
