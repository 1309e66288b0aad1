package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	taxdomain "github.com/smallbiznis/invoicer/internal/tax/domain"
	"github.com/smallbiznis/invoicer/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	UpdateHeader(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// ReplaceItems deletes every item of invoiceID and inserts items.
	ReplaceItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]Summary, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}

type ListFilter struct {
	Search string
}

// ItemRequest is one submitted line. Qty and UnitPrice accept JSON numbers
// or numeric strings.
type ItemRequest struct {
	Description string           `json:"description"`
	Qty         *decimal.Decimal `json:"qty"`
	UnitPrice   *decimal.Decimal `json:"unitPrice"`
	Taxable     *bool            `json:"taxable"`
}

// SaveRequest is the body of create and update.
type SaveRequest struct {
	InvoiceNumber string        `json:"invoice_number"`
	Language      string        `json:"language"`
	IssueDate     string        `json:"issue_date"`
	DueDate       string        `json:"due_date"`
	ClientName    string        `json:"client_name"`
	ClientEmail   string        `json:"client_email"`
	ClientPhone   string        `json:"client_phone"`
	ClientAddress string        `json:"client_address"`
	Notes         string        `json:"notes"`
	Terms         string        `json:"terms"`
	Items         []ItemRequest `json:"items"`
}

type ListRequest struct {
	Search    string
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Invoices []Summary
}

// NumberPreview is the non-binding next number for an issue date.
type NumberPreview struct {
	InvoiceNumber string `json:"invoiceNumber"`
	IssueDate     string `json:"issueDate"`
}

// Detail is an invoice with its ordered items and the tax rules used to
// present it.
type Detail struct {
	Invoice Invoice
	Tax     taxdomain.Config
}

type Service interface {
	PreviewNumber(ctx context.Context, issueDate string) (NumberPreview, error)
	Create(ctx context.Context, req SaveRequest) (Detail, error)
	Update(ctx context.Context, id string, req SaveRequest) (Detail, error)
	Get(ctx context.Context, id string) (Detail, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidID             = errors.New("invalid_id")
	ErrNotFound              = errors.New("not_found")
	ErrInvalidDueDate        = errors.New("invalid_due_date")
	ErrItemsRequired         = errors.New("items_required")
	ErrInvoiceNumberConflict = errors.New("invoice_number_exists")
	ErrRetryable             = errors.New("retryable_store_error")
)

// ItemError messages.
const (
	ItemMsgRequired = "required"
	ItemMsgNegative = "must be at least 0"
	ItemMsgTooLarge = "too large"
)

// ItemError reports an invalid field of the item at Index.
type ItemError struct {
	Index int
	Field string
	Msg   string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("items.%d.%s: %s", e.Index, e.Field, e.Msg)
}

// ItemErrors collects every invalid item field of one request.
type ItemErrors []*ItemError

func (e ItemErrors) Error() string {
	if len(e) == 0 {
		return "invalid_items"
	}
	return fmt.Sprintf("invalid_items: %s", e[0].Error())
}

// NumberConflictError is returned when the invoice number unique index
// rejects a save. The whole transaction, counter included, rolled back.
type NumberConflictError struct {
	InvoiceNumber string
}

func (e *NumberConflictError) Error() string {
	return fmt.Sprintf("invoice number %q already exists", e.InvoiceNumber)
}

func (e *NumberConflictError) Unwrap() error { return ErrInvoiceNumberConflict }
