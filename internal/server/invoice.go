package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/internal/invoice/format"
	obscontext "github.com/smallbiznis/invoicer/internal/observability/context"
	"github.com/smallbiznis/invoicer/internal/providers/pdf"
	taxdomain "github.com/smallbiznis/invoicer/internal/tax/domain"
	"github.com/smallbiznis/invoicer/pkg/db/pagination"
)

type invoiceItemResponse struct {
	ID           string          `json:"id"`
	Position     int             `json:"position"`
	Description  string          `json:"description"`
	Qty          decimal.Decimal `json:"qty"`
	UnitPrice    string          `json:"unitPrice"`
	Taxable      bool            `json:"taxable"`
	LineSubtotal string          `json:"lineSubtotal"`
	Tax1         string          `json:"tax1"`
	Tax2         string          `json:"tax2"`
	LineTotal    string          `json:"lineTotal"`
}

type invoiceResponse struct {
	ID            string                `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	Language      string                `json:"language"`
	IssueDate     string                `json:"issue_date"`
	DueDate       *string               `json:"due_date"`
	ClientName    string                `json:"client_name"`
	ClientEmail   string                `json:"client_email"`
	ClientPhone   string                `json:"client_phone"`
	ClientAddress string                `json:"client_address"`
	Notes         string                `json:"notes"`
	Terms         string                `json:"terms"`
	Items         []invoiceItemResponse `json:"items"`
	Subtotal      string                `json:"subtotal"`
	Tax1          string                `json:"tax1"`
	Tax2          string                `json:"tax2"`
	Total         string                `json:"total"`
	Tax           taxdomain.Config      `json:"tax"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

type invoiceSummaryResponse struct {
	ID            string    `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	IssueDate     string    `json:"issue_date"`
	DueDate       *string   `json:"due_date"`
	ClientName    string    `json:"client_name"`
	Total         string    `json:"total"`
	CreatedAt     time.Time `json:"created_at"`
}

type listInvoicesQuery struct {
	Search string `form:"search"`
	pagination.Pagination
}

func (s *Server) NextInvoiceNumber(c *gin.Context) {
	resp, err := s.invoiceSvc.PreviewNumber(c.Request.Context(), c.Query("issueDate"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListRequest{
		Search:    strings.TrimSpace(query.Search),
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]invoiceSummaryResponse, 0, len(resp.Invoices))
	for _, summary := range resp.Invoices {
		items = append(items, newInvoiceSummaryResponse(summary))
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	detail, err := s.invoiceSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": newInvoiceResponse(detail)})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obscontext.GinInvoiceNumberKey, detail.Invoice.InvoiceNumber)
	c.JSON(http.StatusCreated, gin.H{"data": newInvoiceResponse(detail)})
}

func (s *Server) UpdateInvoice(c *gin.Context) {
	var req invoicedomain.SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	detail, err := s.invoiceSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obscontext.GinInvoiceNumberKey, detail.Invoice.InvoiceNumber)
	c.JSON(http.StatusOK, gin.H{"data": newInvoiceResponse(detail)})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	if err := s.invoiceSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	ctx := c.Request.Context()

	detail, err := s.invoiceSvc.Get(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	business, err := s.settingsSvc.Get(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv := detail.Invoice
	c.Set(obscontext.GinInvoiceNumberKey, inv.InvoiceNumber)

	data := pdf.FromInvoice(detail, business, s.labels.For(inv.Language))
	reader, err := s.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", pdf.FileName(inv.InvoiceNumber, inv.ClientName)))
	c.Data(http.StatusOK, "application/pdf", body)
}

func newInvoiceResponse(detail invoicedomain.Detail) invoiceResponse {
	inv := detail.Invoice
	items := make([]invoiceItemResponse, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, invoiceItemResponse{
			ID:           item.ID.String(),
			Position:     item.Position,
			Description:  item.Description,
			Qty:          item.Quantity,
			UnitPrice:    format.FormatCents(item.UnitPriceCents),
			Taxable:      item.Taxable,
			LineSubtotal: format.FormatCents(item.LineSubtotalCents),
			Tax1:         format.FormatCents(item.Tax1Cents),
			Tax2:         format.FormatCents(item.Tax2Cents),
			LineTotal:    format.FormatCents(item.LineTotalCents),
		})
	}

	return invoiceResponse{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		Language:      inv.Language,
		IssueDate:     inv.IssueDate.Format(time.DateOnly),
		DueDate:       formatOptionalDate(inv.DueDate),
		ClientName:    inv.ClientName,
		ClientEmail:   inv.ClientEmail,
		ClientPhone:   inv.ClientPhone,
		ClientAddress: inv.ClientAddress,
		Notes:         inv.Notes,
		Terms:         inv.Terms,
		Items:         items,
		Subtotal:      format.FormatCents(inv.SubtotalCents),
		Tax1:          format.FormatCents(inv.Tax1Cents),
		Tax2:          format.FormatCents(inv.Tax2Cents),
		Total:         format.FormatCents(inv.TotalCents),
		Tax:           detail.Tax,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
}

func newInvoiceSummaryResponse(summary invoicedomain.Summary) invoiceSummaryResponse {
	return invoiceSummaryResponse{
		ID:            summary.ID.String(),
		InvoiceNumber: summary.InvoiceNumber,
		IssueDate:     summary.IssueDate.Format(time.DateOnly),
		DueDate:       formatOptionalDate(summary.DueDate),
		ClientName:    summary.ClientName,
		Total:         format.FormatCents(summary.TotalCents),
		CreatedAt:     summary.CreatedAt,
	}
}

func formatOptionalDate(value *time.Time) *string {
	if value == nil {
		return nil
	}
	out := value.Format(time.DateOnly)
	return &out
}
