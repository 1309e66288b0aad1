package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsCustomerFields(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/invoices"),
		attribute.String("client_email", "a@example.com"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorBoundsMessage(t *testing.T) {
	err := SafeError(errors.New("line one\nline two " + strings.Repeat("x", 400)))
	assert.NotContains(t, err.Error(), "\n")
	assert.LessOrEqual(t, len(err.Error()), 256)
	assert.Nil(t, SafeError(nil))
}
