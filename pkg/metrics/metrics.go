// Package metrics owns the OpenTelemetry instruments of the service. They are
// exported to Prometheus and scraped from the HTTP metrics path.
package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DefaultBuckets provides a common set of histogram buckets in seconds that can
// be reused across the application for latency metrics.
var DefaultBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120} //nolint: gochecknoglobals

const meterName = "qrscanner"

// Instruments groups every instrument recorded by the service.
type Instruments struct {
	// EventsDispatched counts push events handed to at least one listener, by event name.
	EventsDispatched metric.Int64Counter
	// EventsDiscarded counts push events dropped by a client, by reason.
	EventsDiscarded metric.Int64Counter
	// ListenerFailures counts listener invocations that panicked.
	ListenerFailures metric.Int64Counter
	// PushConnections tracks open push channel connections on the hub.
	PushConnections metric.Int64UpDownCounter
	// PushDropped counts broadcasts not delivered because a connection buffer was full.
	PushDropped metric.Int64Counter
	// ScansFinished counts scans by outcome.
	ScansFinished metric.Int64Counter
	// ScanDuration records the wall time of a scan pipeline run.
	ScanDuration metric.Float64Histogram
}

// New creates the instruments on the given meter provider.
func New(mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(meterName)

	var (
		in  Instruments
		err error
	)
	if in.EventsDispatched, err = meter.Int64Counter("scanevents.dispatched",
		metric.WithDescription("Push events dispatched to listeners")); err != nil {
		return nil, fmt.Errorf("could not create counter: %w", err)
	}
	if in.EventsDiscarded, err = meter.Int64Counter("scanevents.discarded",
		metric.WithDescription("Push events discarded by the client")); err != nil {
		return nil, fmt.Errorf("could not create counter: %w", err)
	}
	if in.ListenerFailures, err = meter.Int64Counter("scanevents.listener_failures",
		metric.WithDescription("Listener invocations that panicked")); err != nil {
		return nil, fmt.Errorf("could not create counter: %w", err)
	}
	if in.PushConnections, err = meter.Int64UpDownCounter("pushhub.connections",
		metric.WithDescription("Open push channel connections")); err != nil {
		return nil, fmt.Errorf("could not create up down counter: %w", err)
	}
	if in.PushDropped, err = meter.Int64Counter("pushhub.dropped",
		metric.WithDescription("Broadcasts dropped for slow connections")); err != nil {
		return nil, fmt.Errorf("could not create counter: %w", err)
	}
	if in.ScansFinished, err = meter.Int64Counter("scans.finished",
		metric.WithDescription("Finished scans by outcome")); err != nil {
		return nil, fmt.Errorf("could not create counter: %w", err)
	}
	if in.ScanDuration, err = meter.Float64Histogram("scans.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Scan pipeline duration"),
		metric.WithExplicitBucketBoundaries(DefaultBuckets...)); err != nil {
		return nil, fmt.Errorf("could not create histogram: %w", err)
	}

	return &in, nil
}

var (
	defaultOnce        sync.Once   //nolint: gochecknoglobals
	defaultInstruments *Instruments //nolint: gochecknoglobals
)

// Default returns instruments bound to the global meter provider. The global
// provider forwards to whatever provider is installed later by Setup.
func Default() *Instruments {
	defaultOnce.Do(func() {
		in, err := New(otel.GetMeterProvider())
		if err != nil {
			// the global provider only fails on invalid instrument names
			panic(err)
		}
		defaultInstruments = in
	})

	return defaultInstruments
}

// Setup installs a meter provider exporting to the given Prometheus registerer
// as the global otel provider.
func Setup(registerer prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	exp, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, fmt.Errorf("could not create otel exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	return mp, nil
}
