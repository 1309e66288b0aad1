package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	clientdomain "github.com/smallbiznis/invoicer/internal/client/domain"
	invoicedomain "github.com/smallbiznis/invoicer/internal/invoice/domain"
	"github.com/smallbiznis/invoicer/internal/invoice/format"
	sequencedomain "github.com/smallbiznis/invoicer/internal/sequence/domain"
	settingsdomain "github.com/smallbiznis/invoicer/internal/settings/domain"
	"github.com/smallbiznis/invoicer/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Code      string            `json:"code,omitempty"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Details   map[string]any    `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var itemErrs invoicedomain.ItemErrors
	if errors.As(err, &itemErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  itemValidationErrors(itemErrs),
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	var numberConflict *invoicedomain.NumberConflictError
	if errors.As(err, &numberConflict) {
		return http.StatusConflict, errorPayload{
			Type:      "conflict",
			Code:      invoicedomain.ErrInvoiceNumberConflict.Error(),
			Message:   numberConflict.Error(),
			Retryable: true,
			Details:   map[string]any{"invoice_number": numberConflict.InvoiceNumber},
		}
	}

	var clientConflict *clientdomain.ConflictError
	if errors.As(err, &clientConflict) {
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    clientConflict.Code,
			Message: clientConflict.Error(),
			Details: map[string]any{
				"existing_client_id":   clientConflict.Existing.ID.String(),
				"existing_client_name": clientConflict.Existing.Name,
			},
		}
	}

	switch {
	case errors.Is(err, invoicedomain.ErrInvoiceNumberConflict):
		return http.StatusConflict, errorPayload{
			Type:      "conflict",
			Code:      invoicedomain.ErrInvoiceNumberConflict.Error(),
			Message:   "invoice number already exists",
			Retryable: true,
		}
	case errors.Is(err, sequencedomain.ErrSequenceExhausted):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    sequencedomain.ErrSequenceExhausted.Error(),
			Message: "no invoice numbers left for this issue date",
		}
	case errors.Is(err, clientdomain.ErrNameInUse):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    clientdomain.ErrNameInUse.Error(),
			Message: "another client already uses this name",
		}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:      "rate_limited",
			Message:   "too many requests",
			Retryable: true,
		}
	case errors.Is(err, invoicedomain.ErrRetryable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "service_unavailable",
			Code:      invoicedomain.ErrRetryable.Error(),
			Message:   "the invoice could not be saved, try again",
			Retryable: true,
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code logged with a failed
// request, using the same mapping as the response body.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" {
		code = strings.ToLower(http.StatusText(status))
		code = strings.ReplaceAll(code, " ", "_")
	}
	return payload.Type, code
}

func itemValidationErrors(errs invoicedomain.ItemErrors) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		code := "invalid_value"
		switch e.Msg {
		case invoicedomain.ItemMsgRequired:
			code = "required"
		case invoicedomain.ItemMsgTooLarge:
			code = "out_of_range"
		}
		out = append(out, ValidationError{
			Field:   fmt.Sprintf("items.%d.%s", e.Index, e.Field),
			Code:    code,
			Message: e.Msg,
		})
	}
	return out
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, settingsdomain.ErrInvalidTaxRate):
		return true
	case isInvoiceValidationError(err),
		isClientValidationError(err):
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidDueDate),
		errors.Is(err, invoicedomain.ErrItemsRequired),
		errors.Is(err, format.ErrInvalidIssueDate):
		return true
	default:
		return false
	}
}

func isClientValidationError(err error) bool {
	switch {
	case errors.Is(err, clientdomain.ErrInvalidID),
		errors.Is(err, clientdomain.ErrInvalidName):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, clientdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, clientdomain.ErrInvalidID):
		return "invalid_id"
	case errors.Is(err, invoicedomain.ErrInvalidDueDate):
		return invoicedomain.ErrInvalidDueDate.Error()
	case errors.Is(err, invoicedomain.ErrItemsRequired):
		return invoicedomain.ErrItemsRequired.Error()
	case errors.Is(err, format.ErrInvalidIssueDate):
		return format.ErrInvalidIssueDate.Error()
	case errors.Is(err, clientdomain.ErrInvalidName):
		return clientdomain.ErrInvalidName.Error()
	case errors.Is(err, settingsdomain.ErrInvalidTaxRate):
		return settingsdomain.ErrInvalidTaxRate.Error()
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return pagination.ErrInvalidPageToken.Error()
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "items_required":
		return "items"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_issue_date", "invalid_due_date":
		return "must be a date formatted YYYY-MM-DD"
	case "items_required":
		return "at least one item is required"
	case "invalid_name":
		return "name is required"
	case "invalid_tax_rate":
		return "tax rate must be between 0 and 100"
	default:
		return "invalid value"
	}
}
