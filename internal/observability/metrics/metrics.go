package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the OTLP meter provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the invoicer counters exported over OTLP. A nil *Metrics
// records nothing, so callers never check for it.
type Metrics struct {
	invoiceSaves        metric.Int64Counter
	numberConflicts     metric.Int64Counter
	sequenceAllocations metric.Int64Counter
	sequenceExhausted   metric.Int64Counter
	writeAdmissions     metric.Int64Counter
}

// Write admission outcomes.
const (
	AdmissionAllowed = "allowed"
	AdmissionDenied  = "denied"
)

// NewProvider installs the global meter provider: a no-op one when OTLP is
// off, else a periodic OTLP exporter flushed on shutdown.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(context.Background(), cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("otlp metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New creates the invoicer counters on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "invoicer"
	}
	meter := provider.Meter(name)

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	m := &Metrics{
		invoiceSaves:        counter("invoicer_invoice_saves_total", "Invoice saves by operation and outcome."),
		numberConflicts:     counter("invoicer_invoice_number_conflicts_total", "Saves rejected by the invoice number unique index."),
		sequenceAllocations: counter("invoicer_sequence_allocations_total", "Daily counter movements by source."),
		sequenceExhausted:   counter("invoicer_sequence_exhausted_total", "Allocations refused because the day has no numbers left."),
		writeAdmissions:     counter("invoicer_write_admissions_total", "Write rate limit decisions by endpoint and outcome."),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordInvoiceSave counts a committed or failed invoice save.
func (m *Metrics) RecordInvoiceSave(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.invoiceSaves.Add(ctx, 1, withAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordNumberConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.numberConflicts.Add(ctx, 1, withAttributes(attribute.String("operation", operation)))
}

// RecordSequenceAllocation counts counter movements by source (allocate
// or reconcile).
func (m *Metrics) RecordSequenceAllocation(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.sequenceAllocations.Add(ctx, 1, withAttributes(attribute.String("source", source)))
}

func (m *Metrics) RecordSequenceExhausted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sequenceExhausted.Add(ctx, 1)
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.writeAdmissions.Add(ctx, 1, withAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", AdmissionAllowed),
	))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.writeAdmissions.Add(ctx, 1, withAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", AdmissionDenied),
		attribute.String("reason", reason),
	))
}

func newExporter(ctx context.Context, protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Label keys allowed on invoicer counters. Invoice numbers and client
// details never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"operation":   {},
	"outcome":     {},
	"source":      {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes drops labels outside allowedLabelKeys and trims values.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		if attr.Value.Type() == attribute.STRING {
			attr = attr.Key.String(strings.TrimSpace(attr.Value.AsString()))
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

func withAttributes(attrs ...attribute.KeyValue) metric.AddOption {
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}
