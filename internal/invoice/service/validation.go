package service

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicer/internal/invoice/calc"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/internal/invoice/format"
)

// saveInput is a SaveRequest after validation and normalization.
type saveInput struct {
	req           invoicedomain.SaveRequest
	invoiceNumber string
	language      string
	issueDate     string
	issueTime     time.Time
	dueDate       *time.Time
	items         []calc.Input

	// attemptedNumber is the number the transaction tried to persist.
	attemptedNumber string
}

func (s *Service) validate(req invoicedomain.SaveRequest) (*saveInput, error) {
	issueDate, issueTime, err := s.normalizeIssueDate(req.IssueDate)
	if err != nil {
		return nil, err
	}
	dueDate, err := normalizeDueDate(req.DueDate)
	if err != nil {
		return nil, err
	}

	if len(req.Items) == 0 {
		return nil, invoicedomain.ErrItemsRequired
	}
	var itemErrs invoicedomain.ItemErrors
	items := make([]calc.Input, 0, len(req.Items))
	amount := decimal.Zero
	for i, item := range req.Items {
		switch {
		case item.Qty == nil:
			itemErrs = append(itemErrs, itemError(i, "qty", invoicedomain.ItemMsgRequired))
		case item.Qty.IsNegative():
			itemErrs = append(itemErrs, itemError(i, "qty", invoicedomain.ItemMsgNegative))
		case !calc.NormalizeQuantity(*item.Qty).LessThan(calc.MaxQuantity):
			itemErrs = append(itemErrs, itemError(i, "qty", invoicedomain.ItemMsgTooLarge))
		}
		switch {
		case item.UnitPrice == nil:
			itemErrs = append(itemErrs, itemError(i, "unitPrice", invoicedomain.ItemMsgRequired))
		case item.UnitPrice.IsNegative():
			itemErrs = append(itemErrs, itemError(i, "unitPrice", invoicedomain.ItemMsgNegative))
		case !item.UnitPrice.LessThan(calc.MaxUnitPrice):
			itemErrs = append(itemErrs, itemError(i, "unitPrice", invoicedomain.ItemMsgTooLarge))
		}
		if len(itemErrs) > 0 {
			continue
		}
		line := calc.Input{
			Description: item.Description,
			Quantity:    *item.Qty,
			UnitPrice:   *item.UnitPrice,
			Taxable:     item.Taxable,
		}
		amount = amount.Add(calc.NormalizeQuantity(line.Quantity).Mul(line.UnitPrice))
		if !amount.LessThan(calc.MaxInvoiceAmount) {
			itemErrs = append(itemErrs, itemError(i, "lineTotal", invoicedomain.ItemMsgTooLarge))
			continue
		}
		items = append(items, line)
	}
	if len(itemErrs) > 0 {
		return nil, itemErrs
	}

	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = strings.TrimSpace(req.ClientEmail)
	req.ClientPhone = strings.TrimSpace(req.ClientPhone)
	req.ClientAddress = strings.TrimSpace(req.ClientAddress)
	req.Notes = strings.TrimSpace(req.Notes)
	req.Terms = strings.TrimSpace(req.Terms)

	return &saveInput{
		req:           req,
		invoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		language:      normalizeLanguage(req.Language),
		issueDate:     issueDate,
		issueTime:     issueTime,
		dueDate:       dueDate,
		items:         items,
	}, nil
}

// normalizeIssueDate keeps the date part of the value and falls back to
// today in the business timezone when it is blank.
func (s *Service) normalizeIssueDate(raw string) (string, time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = s.businessDay.Today()
	}
	raw = datePart(raw)
	t, err := format.ParseIssueDate(raw)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, t, nil
}

func normalizeDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, datePart(raw))
	if err != nil {
		return nil, invoicedomain.ErrInvalidDueDate
	}
	return &t, nil
}

func normalizeLanguage(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), invoicedomain.LanguageFrench) {
		return invoicedomain.LanguageFrench
	}
	return invoicedomain.LanguageEnglish
}

func datePart(raw string) string {
	if len(raw) > len(time.DateOnly) {
		return raw[:len(time.DateOnly)]
	}
	return raw
}

func itemError(index int, field, msg string) *invoicedomain.ItemError {
	return &invoicedomain.ItemError{Index: index, Field: field, Msg: msg}
}
