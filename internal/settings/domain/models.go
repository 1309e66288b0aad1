package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SingletonID is the primary key of the only settings row.
const SingletonID int16 = 1

// Settings is the business profile and tax setup used on every invoice.
// Tax rates are percentages (9.975 means 9.975%). A NULL rate falls back to
// the built-in default of its slot.
type Settings struct {
	ID              int16  `gorm:"primaryKey;autoIncrement:false" json:"-"`
	BusinessName    string `gorm:"not null" json:"business_name"`
	BusinessEmail   string `gorm:"not null" json:"business_email"`
	BusinessPhone   string `gorm:"not null" json:"business_phone"`
	BusinessAddress string `gorm:"type:text;not null" json:"business_address"`

	GSTNumber string `gorm:"column:gst_number;not null" json:"gst_number"`
	QSTNumber string `gorm:"column:qst_number;not null" json:"qst_number"`

	Tax1Label  string              `gorm:"column:tax_1_label;not null" json:"tax_1_label"`
	Tax1Rate   decimal.NullDecimal `gorm:"column:tax_1_rate;type:numeric(8,3)" json:"tax_1_rate"`
	Tax1Number string              `gorm:"column:tax_1_number;not null" json:"tax_1_number"`
	Tax2Label  string              `gorm:"column:tax_2_label;not null" json:"tax_2_label"`
	Tax2Rate   decimal.NullDecimal `gorm:"column:tax_2_rate;type:numeric(8,3)" json:"tax_2_rate"`
	Tax2Number string              `gorm:"column:tax_2_number;not null" json:"tax_2_number"`

	DefaultTerms string `gorm:"type:text;not null" json:"default_terms"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Settings) TableName() string { return "settings" }

// Defaults returns the row created on first access.
func Defaults(now time.Time) Settings {
	return Settings{
		ID:        SingletonID,
		Tax1Label: "GST",
		Tax1Rate:  decimal.NewNullDecimal(decimal.RequireFromString("5")),
		Tax2Label: "QST",
		Tax2Rate:  decimal.NewNullDecimal(decimal.RequireFromString("9.975")),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
