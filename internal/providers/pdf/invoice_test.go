package pdf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	appconfig "github.com/smallbiznis/invoicer/internal/config"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	settingsdomain "github.com/smallbiznis/invoicer/internal/settings/domain"
	taxdomain "github.com/smallbiznis/invoicer/internal/tax/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDetail() invoicedomain.Detail {
	due := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)
	return invoicedomain.Detail{
		Invoice: invoicedomain.Invoice{
			InvoiceNumber: "2026022201",
			IssueDate:     time.Date(2026, 2, 22, 0, 0, 0, 0, time.UTC),
			DueDate:       &due,
			ClientName:    "Acme Corp",
			SubtotalCents: 3000,
			Tax1Cents:     100,
			Tax2Cents:     0,
			TotalCents:    3100,
			Items: []invoicedomain.InvoiceItem{
				{Description: "Consulting", Quantity: decimal.RequireFromString("2.0000"), UnitPriceCents: 1000, LineSubtotalCents: 2000},
				{Description: "Exempt", Quantity: decimal.RequireFromString("1"), UnitPriceCents: 1000, LineSubtotalCents: 1000},
			},
		},
		Tax: taxdomain.Config{
			Tax1: taxdomain.Rule{Label: "GST", RatePercent: decimal.RequireFromString("5"), RegistrationNumber: "111", Enabled: true},
			Tax2: taxdomain.Rule{Label: "QST", RatePercent: decimal.Zero, Enabled: false},
		},
	}
}

func TestFromInvoiceFormatsMoney(t *testing.T) {
	labels := appconfig.NewStaticLabelsHolder(appconfig.DefaultLabels()).For("fr")
	data := FromInvoice(sampleDetail(), settingsdomain.Settings{BusinessName: "Atelier"}, labels)

	assert.Equal(t, "Atelier", data.From.Name)
	assert.Equal(t, "2026-03-22", data.DueDate)
	assert.Equal(t, "30.00", data.Subtotal)
	assert.Equal(t, "31.00", data.Total)
	require.Len(t, data.Items, 2)
	assert.Equal(t, "2", data.Items[0].Qty)
	assert.Equal(t, "10.00", data.Items[0].UnitPrice)
	require.Len(t, data.Taxes, 1)
	assert.Equal(t, "GST (5%)", data.Taxes[0].Label)
	assert.Equal(t, "1.00", data.Taxes[0].Amount)
	assert.Equal(t, labels.Invoice, data.Labels.Invoice)
}

func TestGenerateInvoice(t *testing.T) {
	labels := appconfig.NewStaticLabelsHolder(appconfig.DefaultLabels()).For("en")
	data := FromInvoice(sampleDetail(), settingsdomain.Settings{BusinessName: "Atelier"}, labels)
	data.Notes = "Thank you"

	r, err := New().GenerateInvoice(context.Background(), data)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(body[:4]))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "invoice-2026022201-acme-corp.pdf", FileName("2026022201", "Acme Corp"))
	assert.Equal(t, "invoice-2026022201.pdf", FileName("2026022201", ""))
}
