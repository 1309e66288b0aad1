package tracing

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invoicer/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var errTaken = errors.New("taken")

func newTracedEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{
		ErrorClassifier: func(err error) (string, string) {
			if errors.Is(err, errTaken) {
				return "conflict", "invoice_number_exists"
			}
			return "internal_error", "internal_server_error"
		},
	}))
	r.POST("/api/invoices", func(c *gin.Context) {
		c.Set(obscontext.GinInvoiceNumberKey, "2026022201")
		c.JSON(http.StatusCreated, gin.H{})
	})
	r.PUT("/api/invoices/:id", func(c *gin.Context) {
		_ = c.Error(errTaken)
		c.JSON(http.StatusConflict, gin.H{})
	})
	r.GET("/api/invoices/:id/pdf", func(c *gin.Context) {
		_ = c.Error(errors.New("render failed"))
		c.JSON(http.StatusInternalServerError, gin.H{})
	})
	return r, recorder
}

func serve(r *gin.Engine, method, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestGinMiddlewareTagsInvoiceNumber(t *testing.T) {
	r, recorder := newTracedEngine(t)
	serve(r, http.MethodPost, "/api/invoices")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP POST /api/invoices", spans[0].Name())

	number, ok := attrValue(spans[0], "invoice.number")
	require.True(t, ok)
	assert.Equal(t, "2026022201", number.AsString())
	_, ok = attrValue(spans[0], "error.code")
	assert.False(t, ok)
}

func TestGinMiddlewareRecordsRejectedSave(t *testing.T) {
	r, recorder := newTracedEngine(t)
	serve(r, http.MethodPut, "/api/invoices/1")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	code, ok := attrValue(spans[0], "error.code")
	require.True(t, ok)
	assert.Equal(t, "invoice_number_exists", code.AsString())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "invoice.rejected", spans[0].Events()[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	r, recorder := newTracedEngine(t)
	serve(r, http.MethodGet, "/api/invoices/1/pdf")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	typ, ok := attrValue(spans[0], "error.type")
	require.True(t, ok)
	assert.Equal(t, "internal_error", typ.AsString())
}
