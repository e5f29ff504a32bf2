// Package natsctx wraps NATS publish/subscribe with OpenTelemetry trace
// propagation, for the control-plane fan-out messages (barrier injection,
// cancellation) that don't fit naturally into a request/response HTTP call.
package natsctx

import (
	"context"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var propagator = propagation.TraceContext{}

const tracerName = "flowmesh-nats"

// Publish injects the current trace context into NATS headers and publishes.
func Publish(ctx context.Context, nc *nats.Conn, subject string, data []byte) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	return nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: hdr})
}

// Subscribe wraps nc.Subscribe, extracting the publisher's trace context for
// each message and starting a child consumer span before invoking handler.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		carrier := propagation.HeaderCarrier(m.Header)
		ctx := propagator.Extract(context.Background(), carrier)

		ctx, span := otel.Tracer(tracerName).Start(ctx, "nats.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		handler(ctx, m)
	})
}
