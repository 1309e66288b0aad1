package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const itemBatchSize = 100

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_number, language, issue_date, due_date,
			client_name, client_email, client_phone, client_address, notes, terms,
			subtotal_cents, tax1_cents, tax2_cents, total_cents, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.Language,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.ClientName,
		invoice.ClientEmail,
		invoice.ClientPhone,
		invoice.ClientAddress,
		invoice.Notes,
		invoice.Terms,
		invoice.SubtotalCents,
		invoice.Tax1Cents,
		invoice.Tax2Cents,
		invoice.TotalCents,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) UpdateHeader(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			invoice_number = ?, language = ?, issue_date = ?, due_date = ?,
			client_name = ?, client_email = ?, client_phone = ?, client_address = ?,
			notes = ?, terms = ?,
			subtotal_cents = ?, tax1_cents = ?, tax2_cents = ?, total_cents = ?,
			updated_at = ?
		 WHERE id = ?`,
		invoice.InvoiceNumber,
		invoice.Language,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.ClientName,
		invoice.ClientEmail,
		invoice.ClientPhone,
		invoice.ClientAddress,
		invoice.Notes,
		invoice.Terms,
		invoice.SubtotalCents,
		invoice.Tax1Cents,
		invoice.Tax2Cents,
		invoice.TotalCents,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) ReplaceItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, items []domain.InvoiceItem) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_items WHERE invoice_id = ?`,
		invoiceID,
	).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Omit(clause.Associations).
		CreateInBatches(&items, itemBatchSize).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, db, id, false)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, db, id, true)
}

func (r *repo) findByID(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*domain.Invoice, error) {
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if lock {
		stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []domain.Invoice
	if err := stmt.Where("id = ?", id).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("position asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter, page pagination.Pagination) ([]domain.Summary, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("id, invoice_number, issue_date, due_date, client_name, total_cents, created_at")

	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + search + "%"
		stmt = stmt.Where("(LOWER(invoice_number) LIKE ? OR LOWER(client_name) LIKE ?)", like, like)
	}

	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		issueDate, err := time.Parse(time.DateOnly, cursor.Key)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		stmt = stmt.Where("(issue_date < ?) OR (issue_date = ? AND id < ?)", issueDate, issueDate, id)
	}

	var rows []domain.Summary
	err = stmt.
		Order("issue_date desc, id desc").
		Limit(page.Limit() + 1).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_items WHERE invoice_id = ?`,
		id,
	).Error; err != nil {
		return false, err
	}
	res := db.WithContext(ctx).Exec(`DELETE FROM invoices WHERE id = ?`, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
