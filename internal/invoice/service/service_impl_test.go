package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicer/internal/clock"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/internal/invoice/format"
	"github.com/smallbiznis/invoicer/internal/invoice/repository"
	sequencedomain "github.com/smallbiznis/invoicer/internal/sequence/domain"
	sequenceservice "github.com/smallbiznis/invoicer/internal/sequence/service"
	settingsrepository "github.com/smallbiznis/invoicer/internal/settings/repository"
	taxservice "github.com/smallbiznis/invoicer/internal/tax/service"
	"github.com/smallbiznis/invoicer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc  invoicedomain.Service
	db   *gorm.DB
	repo invoicedomain.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db := testutil.OpenSQLite(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	repo := repository.Provide()
	svc := NewService(ServiceParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repo,
		Allocator: sequenceservice.New(sequenceservice.Params{DB: db, Log: zap.NewNop()}),
		TaxResolver: taxservice.NewResolver(taxservice.ResolverParams{
			Settings: settingsrepository.Provide(),
		}),
		BusinessDay: clock.NewBusinessDay(
			clock.NewFrozen(time.Date(2026, 2, 22, 15, 0, 0, 0, time.UTC)),
			time.UTC,
		),
	})
	return fixture{svc: svc, db: db, repo: repo}
}

func num(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func boolPtr(v bool) *bool { return &v }

func consultingRequest(number string) invoicedomain.SaveRequest {
	return invoicedomain.SaveRequest{
		InvoiceNumber: number,
		IssueDate:     "2026-02-22",
		ClientName:    "Acme",
		Items: []invoicedomain.ItemRequest{
			{Description: "Consulting", Qty: num("2"), UnitPrice: num("10.00"), Taxable: boolPtr(true)},
			{Description: "Exempt", Qty: num("1"), UnitPrice: num("10.00"), Taxable: boolPtr(false)},
		},
	}
}

func (f fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Table(table).Count(&n).Error)
	return n
}

func (f fixture) lastSeq(t *testing.T, sequenceDate string) int64 {
	t.Helper()
	var seqs []int64
	require.NoError(t, f.db.Table("daily_sequences").
		Where("sequence_date = ?", sequenceDate).
		Pluck("last_seq", &seqs).Error)
	if len(seqs) == 0 {
		return 0
	}
	return seqs[0]
}

func TestCreateAllocatesDailyNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	preview, err := f.svc.PreviewNumber(ctx, "2026-02-22")
	require.NoError(t, err)
	assert.Equal(t, "2026022201", preview.InvoiceNumber)

	detail, err := f.svc.Create(ctx, consultingRequest(""))
	require.NoError(t, err)
	assert.Equal(t, "2026022201", detail.Invoice.InvoiceNumber)
	assert.Equal(t, int64(1), f.lastSeq(t, "20260222"))

	preview, err = f.svc.PreviewNumber(ctx, "2026-02-22")
	require.NoError(t, err)
	assert.Equal(t, "2026022202", preview.InvoiceNumber)

	second, err := f.svc.Create(ctx, consultingRequest(""))
	require.NoError(t, err)
	assert.Equal(t, "2026022202", second.Invoice.InvoiceNumber)
}

func TestCreatePersistsRecomputedTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.svc.Create(ctx, consultingRequest(""))
	require.NoError(t, err)

	inv := detail.Invoice
	assert.Equal(t, int64(3000), inv.SubtotalCents)
	assert.Equal(t, int64(100), inv.Tax1Cents)
	assert.Equal(t, int64(200), inv.Tax2Cents)
	assert.Equal(t, int64(3300), inv.TotalCents)
	assert.Equal(t, "GST", detail.Tax.Tax1.Label)

	stored, err := f.svc.Get(ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, stored.Invoice.Items, 2)
	assert.Equal(t, "2026-02-22", stored.Invoice.IssueDate.Format(time.DateOnly))

	var subtotal, tax1, tax2, total int64
	for i, item := range stored.Invoice.Items {
		assert.Equal(t, i, item.Position)
		subtotal += item.LineSubtotalCents
		tax1 += item.Tax1Cents
		tax2 += item.Tax2Cents
		total += item.LineTotalCents
	}
	assert.Equal(t, stored.Invoice.SubtotalCents, subtotal)
	assert.Equal(t, stored.Invoice.Tax1Cents, tax1)
	assert.Equal(t, stored.Invoice.Tax2Cents, tax2)
	assert.Equal(t, stored.Invoice.TotalCents, total)
	assert.Zero(t, stored.Invoice.Items[1].Tax1Cents)
	assert.Zero(t, stored.Invoice.Items[1].Tax2Cents)
}

func TestCreateWithBlankIssueDateUsesBusinessDay(t *testing.T) {
	f := newFixture(t)
	req := consultingRequest("")
	req.IssueDate = ""
	req.Language = "FR"

	detail, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2026022201", detail.Invoice.InvoiceNumber)
	assert.Equal(t, invoicedomain.LanguageFrench, detail.Invoice.Language)
}

func TestCreateWithExplicitNumberReconcilesCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	detail, err := f.svc.Create(ctx, consultingRequest("  20260222150 "))
	require.NoError(t, err)
	assert.Equal(t, "20260222150", detail.Invoice.InvoiceNumber)

	preview, err := f.svc.PreviewNumber(ctx, "2026-02-22")
	require.NoError(t, err)
	assert.Equal(t, "20260222151", preview.InvoiceNumber)

	_, err = f.svc.Create(ctx, consultingRequest("20260222120"))
	require.NoError(t, err)
	assert.Equal(t, int64(150), f.lastSeq(t, "20260222"))

	_, err = f.svc.Create(ctx, consultingRequest("CUSTOM-7"))
	require.NoError(t, err)
	assert.Equal(t, int64(150), f.lastSeq(t, "20260222"))
}

func TestAllocatedNumberConflictRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Taken under another date, so reconciliation leaves 20260222 alone.
	squatter := consultingRequest("2026022201")
	squatter.IssueDate = "2026-03-01"
	_, err := f.svc.Create(ctx, squatter)
	require.NoError(t, err)
	require.Equal(t, int64(0), f.lastSeq(t, "20260222"))

	_, err = f.svc.Create(ctx, consultingRequest(""))
	require.Error(t, err)

	var conflict *invoicedomain.NumberConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "2026022201", conflict.InvoiceNumber)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNumberConflict)

	assert.Equal(t, int64(1), f.count(t, "invoices"))
	assert.Equal(t, int64(2), f.count(t, "invoice_items"))
	assert.Equal(t, int64(0), f.lastSeq(t, "20260222"))
}

func TestExplicitNumberConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, consultingRequest("INV-1"))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, consultingRequest("INV-1"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNumberConflict)
	assert.Equal(t, int64(1), f.count(t, "invoices"))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		mut  func(*invoicedomain.SaveRequest)
		want error
	}{
		{name: "no items", mut: func(r *invoicedomain.SaveRequest) { r.Items = nil }, want: invoicedomain.ErrItemsRequired},
		{name: "bad issue date", mut: func(r *invoicedomain.SaveRequest) { r.IssueDate = "22/02/2026" }, want: format.ErrInvalidIssueDate},
		{name: "bad due date", mut: func(r *invoicedomain.SaveRequest) { r.DueDate = "soon" }, want: invoicedomain.ErrInvalidDueDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := consultingRequest("")
			tc.mut(&req)
			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	req := consultingRequest("")
	req.Items[0].Qty = nil
	req.Items[1].UnitPrice = num("-1")
	_, err := f.svc.Create(ctx, req)
	var itemErrs invoicedomain.ItemErrors
	require.True(t, errors.As(err, &itemErrs))
	require.Len(t, itemErrs, 2)
	assert.Equal(t, 0, itemErrs[0].Index)
	assert.Equal(t, "qty", itemErrs[0].Field)
	assert.Equal(t, 1, itemErrs[1].Index)
	assert.Equal(t, "unitPrice", itemErrs[1].Field)

	assert.Zero(t, f.count(t, "invoices"))
	assert.Zero(t, f.count(t, "daily_sequences"))
}

func TestCreateRejectsOutOfRangeAmounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		items []invoicedomain.ItemRequest
		index int
		field string
	}{
		{
			name:  "quantity past the column precision",
			items: []invoicedomain.ItemRequest{{Qty: num("100000000"), UnitPrice: num("1")}},
			field: "qty",
		},
		{
			name:  "quantity rounding up to the limit",
			items: []invoicedomain.ItemRequest{{Qty: num("99999999.99995"), UnitPrice: num("1")}},
			field: "qty",
		},
		{
			name:  "unit price",
			items: []invoicedomain.ItemRequest{{Qty: num("1"), UnitPrice: num("92233720368547758.08")}},
			field: "unitPrice",
		},
		{
			name: "invoice amount",
			items: []invoicedomain.ItemRequest{
				{Qty: num("99999999"), UnitPrice: num("60000")},
				{Qty: num("99999999"), UnitPrice: num("60000")},
			},
			index: 1,
			field: "lineTotal",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := consultingRequest("")
			req.Items = tc.items
			_, err := f.svc.Create(ctx, req)

			var itemErrs invoicedomain.ItemErrors
			require.True(t, errors.As(err, &itemErrs))
			require.Len(t, itemErrs, 1)
			assert.Equal(t, tc.index, itemErrs[0].Index)
			assert.Equal(t, tc.field, itemErrs[0].Field)
			assert.Equal(t, invoicedomain.ItemMsgTooLarge, itemErrs[0].Msg)
		})
	}
	assert.Zero(t, f.count(t, "invoices"))

	req := consultingRequest("")
	req.Items = []invoicedomain.ItemRequest{{Qty: num("99999999.9999"), UnitPrice: num("9999.99")}}
	detail, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(99999899999900), detail.Invoice.SubtotalCents)
	assert.Positive(t, detail.Invoice.TotalCents)
}

func TestCreateFailsWhenDailySequenceIsExhausted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Exec(
		`INSERT INTO daily_sequences (sequence_date, last_seq, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		"20260222", format.MaxSequence, time.Now().UTC(), time.Now().UTC(),
	).Error)

	_, err := f.svc.Create(ctx, consultingRequest(""))
	assert.ErrorIs(t, err, sequencedomain.ErrSequenceExhausted)
	assert.Zero(t, f.count(t, "invoices"))
	assert.Equal(t, format.MaxSequence, f.lastSeq(t, "20260222"))

	_, err = f.svc.Create(ctx, consultingRequest("2026022212345"))
	require.NoError(t, err)
}

func TestUpdateReplacesItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, consultingRequest(""))
	require.NoError(t, err)
	id := created.Invoice.ID.String()

	req := consultingRequest("")
	req.ClientName = "Acme Renamed"
	req.DueDate = "2026-03-22"
	req.Items = []invoicedomain.ItemRequest{
		{Description: "Support", Qty: num("3"), UnitPrice: num("1.50")},
	}
	updated, err := f.svc.Update(ctx, id, req)
	require.NoError(t, err)

	assert.Equal(t, "2026022201", updated.Invoice.InvoiceNumber)
	assert.Equal(t, "Acme Renamed", updated.Invoice.ClientName)
	assert.Equal(t, int64(450), updated.Invoice.SubtotalCents)

	items, err := f.repo.ListItems(ctx, f.db, created.Invoice.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Support", items[0].Description)
	assert.True(t, items[0].Taxable)
	assert.Equal(t, int64(1), f.count(t, "invoice_items"))

	stored, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.Invoice.DueDate)
	assert.Equal(t, "2026-03-22", stored.Invoice.DueDate.Format(time.DateOnly))
	assert.Equal(t, int64(1), f.lastSeq(t, "20260222"))
}

func TestUpdateConflictKeepsPreviousState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, consultingRequest(""))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, consultingRequest(""))
	require.NoError(t, err)

	req := consultingRequest(first.Invoice.InvoiceNumber)
	req.Items = req.Items[:1]
	_, err = f.svc.Update(ctx, second.Invoice.ID.String(), req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNumberConflict)

	stored, err := f.svc.Get(ctx, second.Invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "2026022202", stored.Invoice.InvoiceNumber)
	assert.Len(t, stored.Invoice.Items, 2)
}

func TestUpdateUnknownInvoice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Update(context.Background(), "12345", consultingRequest(""))
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)

	_, err = f.svc.Update(context.Background(), "abc", consultingRequest(""))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidID)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, date := range []string{"2026-02-20", "2026-02-22", "2026-02-21"} {
		req := consultingRequest("")
		req.IssueDate = date
		_, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, invoicedomain.ListRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "2026022201", page.Invoices[0].InvoiceNumber)
	assert.Equal(t, "2026022101", page.Invoices[1].InvoiceNumber)

	next, err := f.svc.List(ctx, invoicedomain.ListRequest{PageSize: 2, PageToken: page.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Invoices, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, "2026022001", next.Invoices[0].InvoiceNumber)

	found, err := f.svc.List(ctx, invoicedomain.ListRequest{Search: "acme"})
	require.NoError(t, err)
	assert.Len(t, found.Invoices, 3)

	found, err = f.svc.List(ctx, invoicedomain.ListRequest{Search: "20260221"})
	require.NoError(t, err)
	assert.Len(t, found.Invoices, 1)
}

func TestDeleteRemovesInvoiceAndItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, consultingRequest(""))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, created.Invoice.ID.String()))
	assert.Zero(t, f.count(t, "invoices"))
	assert.Zero(t, f.count(t, "invoice_items"))

	assert.ErrorIs(t, f.svc.Delete(ctx, created.Invoice.ID.String()), invoicedomain.ErrNotFound)
	_, err = f.svc.Get(ctx, created.Invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}
