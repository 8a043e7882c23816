package ws

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go-groupchat/internal/errs"
	"go-groupchat/internal/models"
)

type metrics struct {
	connections   metric.Int64UpDownCounter
	events        metric.Int64Counter
	deliveries    metric.Int64Counter
	slowConsumers metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("go-groupchat/ws")

	connections, _ := meter.Int64UpDownCounter("ws_connections_active",
		metric.WithDescription("Open websocket connections"))
	events, _ := meter.Int64Counter("ws_events_total",
		metric.WithDescription("Inbound events by name and outcome"))
	deliveries, _ := meter.Int64Counter("ws_broadcast_deliveries_total",
		metric.WithDescription("Frames queued to room members by broadcasts"))
	slowConsumers, _ := meter.Int64Counter("ws_slow_consumers_total",
		metric.WithDescription("Connections dropped because their send buffer was full"))

	return &metrics{
		connections:   connections,
		events:        events,
		deliveries:    deliveries,
		slowConsumers: slowConsumers,
	}
}

func (m *metrics) connectionOpened() {
	m.connections.Add(context.Background(), 1)
}

func (m *metrics) connectionClosed() {
	m.connections.Add(context.Background(), -1)
}

func (m *metrics) event(name string, err error) {
	switch name {
	case models.EventJoinGroup, models.EventLeaveGroup, models.EventGetActiveUsers,
		models.EventSendMessage, models.EventTypingStart, models.EventTypingStop, models.EventReadReceipt:
	default:
		name = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = errs.KindOf(err).Code()
	}
	m.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", name),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) broadcast(event string, sent int) {
	m.deliveries.Add(context.Background(), int64(sent), metric.WithAttributes(attribute.String("event", event)))
}

func (m *metrics) slowConsumer() {
	m.slowConsumers.Add(context.Background(), 1)
}
