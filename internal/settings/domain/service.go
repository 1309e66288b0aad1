package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	// Ensure creates the default row when absent and returns the stored row.
	Ensure(ctx context.Context, db *gorm.DB) (*Settings, error)
	Update(ctx context.Context, db *gorm.DB, settings *Settings) error
}

// UpdateRequest replaces the business profile. Tax fields left nil keep
// their stored value.
type UpdateRequest struct {
	BusinessName    string `json:"business_name"`
	BusinessEmail   string `json:"business_email"`
	BusinessPhone   string `json:"business_phone"`
	BusinessAddress string `json:"business_address"`
	GSTNumber       string `json:"gst_number"`
	QSTNumber       string `json:"qst_number"`
	DefaultTerms    string `json:"default_terms"`

	Tax1Label  *string          `json:"tax_1_label"`
	Tax1Rate   *decimal.Decimal `json:"tax_1_rate"`
	Tax1Number *string          `json:"tax_1_number"`
	Tax2Label  *string          `json:"tax_2_label"`
	Tax2Rate   *decimal.Decimal `json:"tax_2_rate"`
	Tax2Number *string          `json:"tax_2_number"`
}

type Service interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, req UpdateRequest) (Settings, error)
}

var (
	ErrInvalidTaxRate = errors.New("invalid_tax_rate")
)
