package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	appconfig "github.com/smallbiznis/invoicer/internal/config"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/internal/invoice/format"
	settingsdomain "github.com/smallbiznis/invoicer/internal/settings/domain"
	taxdomain "github.com/smallbiznis/invoicer/internal/tax/domain"
)

type Party struct {
	Name    string
	Address string
	Email   string
	Phone   string
}

type InvoiceItem struct {
	Description string
	Qty         string
	UnitPrice   string
	Amount      string
}

type TaxLine struct {
	Label  string
	Number string
	Amount string
}

// InvoiceData is a fully formatted invoice, ready to lay out.
type InvoiceData struct {
	Labels        appconfig.PrintLabels
	InvoiceNumber string
	IssueDate     string
	DueDate       string

	From   Party
	BillTo Party

	Items    []InvoiceItem
	Subtotal string
	Taxes    []TaxLine
	Total    string

	Notes string
	Terms string
}

// FromInvoice formats a saved invoice for printing. Tax lines are printed
// for enabled rules and for any non-zero stored amount.
func FromInvoice(detail invoicedomain.Detail, business settingsdomain.Settings, labels appconfig.PrintLabels) InvoiceData {
	inv := detail.Invoice
	data := InvoiceData{
		Labels:        labels,
		InvoiceNumber: inv.InvoiceNumber,
		IssueDate:     inv.IssueDate.Format(time.DateOnly),
		From: Party{
			Name:    business.BusinessName,
			Address: business.BusinessAddress,
			Email:   business.BusinessEmail,
			Phone:   business.BusinessPhone,
		},
		BillTo: Party{
			Name:    inv.ClientName,
			Address: inv.ClientAddress,
			Email:   inv.ClientEmail,
			Phone:   inv.ClientPhone,
		},
		Subtotal: format.FormatCents(inv.SubtotalCents),
		Total:    format.FormatCents(inv.TotalCents),
		Notes:    inv.Notes,
		Terms:    inv.Terms,
	}
	if inv.DueDate != nil {
		data.DueDate = inv.DueDate.Format(time.DateOnly)
	}

	for _, item := range inv.Items {
		data.Items = append(data.Items, InvoiceItem{
			Description: item.Description,
			Qty:         item.Quantity.String(),
			UnitPrice:   format.FormatCents(item.UnitPriceCents),
			Amount:      format.FormatCents(item.LineSubtotalCents),
		})
	}

	for _, tax := range []struct {
		rule   taxdomain.Rule
		amount int64
	}{
		{detail.Tax.Tax1, inv.Tax1Cents},
		{detail.Tax.Tax2, inv.Tax2Cents},
	} {
		if !tax.rule.Enabled && tax.amount == 0 {
			continue
		}
		data.Taxes = append(data.Taxes, TaxLine{
			Label:  fmt.Sprintf("%s (%s%%)", tax.rule.Label, tax.rule.RatePercent.String()),
			Number: tax.rule.RegistrationNumber,
			Amount: format.FormatCents(tax.amount),
		})
	}
	return data
}

// FileName is the download name of an invoice PDF, e.g.
// invoice-2026022201-acme-corp.pdf.
func FileName(invoiceNumber, clientName string) string {
	name := slug.Make(strings.TrimSpace("invoice " + invoiceNumber + " " + clientName))
	if name == "" {
		name = "invoice"
	}
	return name + ".pdf"
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) (io.Reader, error) {
	labels := invoice.Labels

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "{current} / {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(6, labels.Invoice, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(6, invoice.InvoiceNumber, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Align: align.Right,
			Top:   3,
		}),
	)

	meta := col.New(12).Add(
		text.New(labels.IssueDate+": "+invoice.IssueDate, props.Text{Top: 0, Align: align.Right}),
	)
	if invoice.DueDate != "" {
		meta.Add(text.New(labels.DueDate+": "+invoice.DueDate, props.Text{Top: 4, Align: align.Right}))
	}
	m.AddRow(10, meta)

	m.AddRow(35,
		partyCol(labels.From, invoice.From),
		partyCol(labels.BillTo, invoice.BillTo),
	)

	m.AddRow(10,
		text.NewCol(6, labels.Description, props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, labels.Qty, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, labels.UnitPrice, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, labels.LineTotal, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range invoice.Items {
		m.AddRow(8,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.Qty, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(8,
		col.New(7),
		text.NewCol(3, labels.Subtotal, props.Text{Size: 9}),
		text.NewCol(2, invoice.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)
	for _, tax := range invoice.Taxes {
		label := tax.Label
		if tax.Number != "" {
			label += " " + tax.Number
		}
		m.AddRow(8,
			col.New(7),
			text.NewCol(3, label, props.Text{Size: 9}),
			text.NewCol(2, tax.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(7),
		text.NewCol(3, labels.Total, props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(2, invoice.Total, props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	if invoice.Notes != "" {
		m.AddRow(20, noteCol(labels.Notes, invoice.Notes))
	}
	if invoice.Terms != "" {
		m.AddRow(20, noteCol(labels.Terms, invoice.Terms))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate invoice pdf: %w", err)
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func partyCol(title string, party Party) core.Col {
	c := col.New(6).Add(text.New(title, props.Text{Style: fontstyle.Bold}))
	top := 5.0
	for _, line := range []string{party.Name, party.Address, party.Email, party.Phone} {
		if line == "" {
			continue
		}
		c.Add(text.New(line, props.Text{Top: top, Size: 9}))
		top += 5
	}
	return c
}

func noteCol(title, body string) core.Col {
	return col.New(12).Add(
		text.New(title, props.Text{Style: fontstyle.Bold, Size: 9}),
		text.New(body, props.Text{Top: 5, Size: 9}),
	)
}
