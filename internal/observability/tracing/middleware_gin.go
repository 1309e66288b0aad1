package tracing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/invoicer/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareConfig controls the request span.
type MiddlewareConfig struct {
	// ErrorClassifier returns the type and code the API answered a failed
	// request with. They become error.type and error.code on the span.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware opens one server span per request. Spans of invoice
// requests carry invoice.number; rejected saves carry the error code so a
// trace shows a number conflict or an exhausted day without the body.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	tracer := otel.Tracer("invoicer/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			span.SetAttributes(attribute.String("request_id", requestID))
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
		)...)
		if number := strings.TrimSpace(c.GetString(obscontext.GinInvoiceNumberKey)); number != "" {
			span.SetAttributes(attribute.String("invoice.number", number))
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}
		if cfg.ErrorClassifier != nil {
			errorType, errorCode := cfg.ErrorClassifier(lastErr.Err)
			span.SetAttributes(
				attribute.String("error.type", errorType),
				attribute.String("error.code", errorCode),
			)
			if status == http.StatusConflict {
				span.AddEvent("invoice.rejected", trace.WithAttributes(attribute.String("error.code", errorCode)))
			}
		}
		if status >= http.StatusInternalServerError {
			span.RecordError(SafeError(lastErr.Err))
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
