package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invoicer/internal/clock"
	"github.com/smallbiznis/invoicer/internal/invoice/calc"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/internal/observability/logger"
	"github.com/smallbiznis/invoicer/internal/observability/metrics"
	sequencedomain "github.com/smallbiznis/invoicer/internal/sequence/domain"
	taxdomain "github.com/smallbiznis/invoicer/internal/tax/domain"
	"github.com/smallbiznis/invoicer/pkg/db"
	"github.com/smallbiznis/invoicer/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	operationCreate = "create"
	operationUpdate = "update"

	outcomeSuccess   = "success"
	outcomeConflict  = "conflict"
	outcomeRetryable = "retryable"
	outcomeInvalid   = "invalid"
	outcomeError     = "error"
)

type ServiceParam struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Repo         invoicedomain.Repository
	Allocator    sequencedomain.Allocator
	TaxResolver  taxdomain.Resolver
	BusinessDay  *clock.BusinessDay
	Metrics      *metrics.Metrics      `optional:"true"`
	StoreMetrics *metrics.StoreMetrics `optional:"true"`
}

// Service saves invoices. Every save is one transaction: tax resolution,
// recalculation, number allocation, header and items, and counter
// reconciliation commit or roll back together.
type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	repo         invoicedomain.Repository
	allocator    sequencedomain.Allocator
	taxResolver  taxdomain.Resolver
	businessDay  *clock.BusinessDay
	metrics      *metrics.Metrics
	storeMetrics *metrics.StoreMetrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	businessDay := p.BusinessDay
	if businessDay == nil {
		businessDay = clock.NewBusinessDay(clock.System(), time.UTC)
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		allocator:    p.Allocator,
		taxResolver:  p.TaxResolver,
		businessDay:  businessDay,
		metrics:      p.Metrics,
		storeMetrics: p.StoreMetrics,
	}
}

func (s *Service) PreviewNumber(ctx context.Context, issueDate string) (invoicedomain.NumberPreview, error) {
	date, _, err := s.normalizeIssueDate(issueDate)
	if err != nil {
		return invoicedomain.NumberPreview{}, err
	}
	number, err := s.allocator.Preview(ctx, date)
	if err != nil {
		return invoicedomain.NumberPreview{}, err
	}
	return invoicedomain.NumberPreview{InvoiceNumber: number, IssueDate: date}, nil
}

func (s *Service) Create(ctx context.Context, req invoicedomain.SaveRequest) (invoicedomain.Detail, error) {
	input, err := s.validate(req)
	if err != nil {
		s.metrics.RecordInvoiceSave(ctx, operationCreate, outcomeInvalid)
		return invoicedomain.Detail{}, err
	}

	start := time.Now()
	var detail invoicedomain.Detail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cfg, err := s.taxResolver.Current(ctx, tx)
		if err != nil {
			return err
		}
		result := calc.Recalculate(input.items, cfg)

		number := input.invoiceNumber
		if number == "" {
			number, err = s.allocator.Allocate(ctx, tx, input.issueDate)
			if err != nil {
				return err
			}
		}
		input.attemptedNumber = number

		now := s.businessDay.Now().UTC()
		invoice := invoicedomain.Invoice{
			ID:        s.genID.Generate(),
			CreatedAt: now,
		}
		s.applyHeader(&invoice, input, number, result, now)
		invoice.Items = s.buildItems(invoice.ID, result, now)

		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}
		if err := s.repo.ReplaceItems(ctx, tx, invoice.ID, invoice.Items); err != nil {
			return err
		}
		if err := s.allocator.Reconcile(ctx, tx, input.issueDate, number); err != nil {
			return err
		}

		detail = invoicedomain.Detail{Invoice: invoice, Tax: cfg}
		return nil
	})
	s.storeMetrics.ObserveSaveDuration(operationCreate, time.Since(start))
	if err != nil {
		return invoicedomain.Detail{}, s.saveFailed(ctx, operationCreate, input.attemptedNumber, err)
	}

	s.metrics.RecordInvoiceSave(ctx, operationCreate, outcomeSuccess)
	logger.WithInvoice(logger.WithContext(ctx, s.log), detail.Invoice.ID, detail.Invoice.InvoiceNumber).
		Info("invoice created", zap.Int64("total_cents", detail.Invoice.TotalCents))
	return detail, nil
}

func (s *Service) Update(ctx context.Context, id string, req invoicedomain.SaveRequest) (invoicedomain.Detail, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Detail{}, err
	}
	input, err := s.validate(req)
	if err != nil {
		s.metrics.RecordInvoiceSave(ctx, operationUpdate, outcomeInvalid)
		return invoicedomain.Detail{}, err
	}

	start := time.Now()
	var detail invoicedomain.Detail
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}

		cfg, err := s.taxResolver.Current(ctx, tx)
		if err != nil {
			return err
		}
		result := calc.Recalculate(input.items, cfg)

		// A blank number on update keeps the number already issued.
		number := input.invoiceNumber
		if number == "" {
			number = invoice.InvoiceNumber
		}
		input.attemptedNumber = number

		now := s.businessDay.Now().UTC()
		s.applyHeader(invoice, input, number, result, now)
		invoice.Items = s.buildItems(invoice.ID, result, now)

		if err := s.repo.UpdateHeader(ctx, tx, invoice); err != nil {
			return err
		}
		if err := s.repo.ReplaceItems(ctx, tx, invoice.ID, invoice.Items); err != nil {
			return err
		}
		if err := s.allocator.Reconcile(ctx, tx, input.issueDate, number); err != nil {
			return err
		}

		detail = invoicedomain.Detail{Invoice: *invoice, Tax: cfg}
		return nil
	})
	s.storeMetrics.ObserveSaveDuration(operationUpdate, time.Since(start))
	if err != nil {
		return invoicedomain.Detail{}, s.saveFailed(ctx, operationUpdate, input.attemptedNumber, err)
	}

	s.metrics.RecordInvoiceSave(ctx, operationUpdate, outcomeSuccess)
	logger.WithInvoice(logger.WithContext(ctx, s.log), detail.Invoice.ID, detail.Invoice.InvoiceNumber).
		Info("invoice updated", zap.Int64("total_cents", detail.Invoice.TotalCents))
	return detail, nil
}

func (s *Service) Get(ctx context.Context, id string) (invoicedomain.Detail, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Detail{}, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Detail{}, err
	}
	if invoice == nil {
		return invoicedomain.Detail{}, invoicedomain.ErrNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Detail{}, err
	}
	invoice.Items = items

	cfg, err := s.taxResolver.Current(ctx, s.db)
	if err != nil {
		return invoicedomain.Detail{}, err
	}
	return invoicedomain.Detail{Invoice: *invoice, Tax: cfg}, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) (invoicedomain.ListResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	rows, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{Search: req.Search}, page)
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}

	rows, pageInfo, err := pagination.BuildCursorPage(rows, page.Limit(), func(row invoicedomain.Summary) pagination.Cursor {
		return pagination.Cursor{
			ID:  row.ID.String(),
			Key: row.IssueDate.Format(time.DateOnly),
		}
	})
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}
	if rows == nil {
		rows = []invoicedomain.Summary{}
	}
	return invoicedomain.ListResponse{PageInfo: pageInfo, Invoices: rows}, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	invoiceID, err := parseID(id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.Delete(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if !deleted {
			return invoicedomain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.WithContext(ctx, s.log).Info("invoice deleted", zap.String("invoice_id", invoiceID.String()))
	return nil
}

// saveFailed classifies a failed save transaction. Everything it handles
// has already been rolled back, counter movement included.
func (s *Service) saveFailed(ctx context.Context, operation, number string, err error) error {
	s.storeMetrics.IncSaveError(operation, err)
	log := logger.WithContext(ctx, s.log).With(zap.String("operation", operation))

	switch {
	case errors.Is(err, invoicedomain.ErrNotFound):
		s.metrics.RecordInvoiceSave(ctx, operation, outcomeInvalid)
		return err
	case errors.Is(err, sequencedomain.ErrSequenceExhausted):
		s.metrics.RecordInvoiceSave(ctx, operation, outcomeConflict)
		return err
	case db.IsInvoiceNumberConflict(err):
		s.metrics.RecordInvoiceSave(ctx, operation, outcomeConflict)
		s.metrics.RecordNumberConflict(ctx, operation)
		log.Warn("invoice number already in use", zap.String("invoice_number", number))
		return &invoicedomain.NumberConflictError{InvoiceNumber: number}
	case db.IsRetryableErr(err):
		s.metrics.RecordInvoiceSave(ctx, operation, outcomeRetryable)
		log.Warn("invoice save hit a transient store error", zap.Error(err))
		return fmt.Errorf("%w: %w", invoicedomain.ErrRetryable, err)
	default:
		s.metrics.RecordInvoiceSave(ctx, operation, outcomeError)
		log.Error("invoice save failed", zap.Error(err))
		return err
	}
}

func (s *Service) applyHeader(invoice *invoicedomain.Invoice, input *saveInput, number string, result calc.Result, now time.Time) {
	invoice.InvoiceNumber = number
	invoice.Language = input.language
	invoice.IssueDate = input.issueTime
	invoice.DueDate = input.dueDate
	invoice.ClientName = input.req.ClientName
	invoice.ClientEmail = input.req.ClientEmail
	invoice.ClientPhone = input.req.ClientPhone
	invoice.ClientAddress = input.req.ClientAddress
	invoice.Notes = input.req.Notes
	invoice.Terms = input.req.Terms
	invoice.SubtotalCents = result.SubtotalCents
	invoice.Tax1Cents = result.Tax1Cents
	invoice.Tax2Cents = result.Tax2Cents
	invoice.TotalCents = result.TotalCents
	invoice.UpdatedAt = now
}

func (s *Service) buildItems(invoiceID snowflake.ID, result calc.Result, now time.Time) []invoicedomain.InvoiceItem {
	items := make([]invoicedomain.InvoiceItem, 0, len(result.Lines))
	for _, line := range result.Lines {
		items = append(items, invoicedomain.InvoiceItem{
			ID:                s.genID.Generate(),
			InvoiceID:         invoiceID,
			Position:          line.Position,
			Description:       line.Description,
			Quantity:          line.Quantity,
			UnitPriceCents:    line.UnitPriceCents,
			Taxable:           line.Taxable,
			LineSubtotalCents: line.LineSubtotalCents,
			Tax1Cents:         line.Tax1Cents,
			Tax2Cents:         line.Tax2Cents,
			LineTotalCents:    line.LineTotalCents,
			CreatedAt:         now,
		})
	}
	return items
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidID
	}
	return id, nil
}
