// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	LanguageEnglish = "en"
	LanguageFrench  = "fr"
)

// Invoice is a saved invoice. Header totals always equal the sums of the
// item fields of the same save.
type Invoice struct {
	ID            snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	InvoiceNumber string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_invoice_number"`
	Language      string       `gorm:"type:char(2);not null;default:'en'"`
	IssueDate     time.Time    `gorm:"type:date;not null;index:ix_invoices_issue_date_id,priority:1"`
	DueDate       *time.Time   `gorm:"type:date"`

	ClientName    string `gorm:"not null"`
	ClientEmail   string `gorm:"not null"`
	ClientPhone   string `gorm:"not null"`
	ClientAddress string `gorm:"type:text;not null"`
	Notes         string `gorm:"type:text;not null"`
	Terms         string `gorm:"type:text;not null"`

	SubtotalCents int64 `gorm:"not null;default:0"`
	Tax1Cents     int64 `gorm:"column:tax1_cents;not null;default:0"`
	Tax2Cents     int64 `gorm:"column:tax2_cents;not null;default:0"`
	TotalCents    int64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is one persisted line. Items are never patched: every save
// deletes and re-inserts the whole set.
type InvoiceItem struct {
	ID                snowflake.ID    `gorm:"primaryKey;autoIncrement:false"`
	InvoiceID         snowflake.ID    `gorm:"not null;index:ix_invoice_items_invoice_position,priority:1"`
	Position          int             `gorm:"not null;index:ix_invoice_items_invoice_position,priority:2"`
	Description       string          `gorm:"type:text;not null"`
	Quantity          decimal.Decimal `gorm:"type:numeric(12,4);not null"`
	UnitPriceCents    int64           `gorm:"not null"`
	Taxable           bool            `gorm:"not null"`
	LineSubtotalCents int64           `gorm:"not null"`
	Tax1Cents         int64           `gorm:"column:tax1_cents;not null"`
	Tax2Cents         int64           `gorm:"column:tax2_cents;not null"`
	LineTotalCents    int64           `gorm:"not null"`
	CreatedAt         time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// Summary is one row of the invoice list.
type Summary struct {
	ID            snowflake.ID
	InvoiceNumber string
	IssueDate     time.Time
	DueDate       *time.Time
	ClientName    string
	TotalCents    int64
	CreatedAt     time.Time
}
