// Package events publishes ticket lifecycle events to Kafka so chat bridges
// and staff dashboards can fan notifications out to other server nodes.
// Publishing is best-effort: it never blocks or fails a store operation.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/model"
)

const (
	TicketCreated         = "ticket.created"
	TicketCommented       = "ticket.commented"
	TicketAssigned        = "ticket.assigned"
	TicketClosed          = "ticket.closed"
	TicketReopened        = "ticket.reopened"
	TicketPriorityChanged = "ticket.priority_changed"
	TicketsMassClosed     = "ticket.mass_closed"
)

// Producer writes ticket events to a Kafka topic. With no brokers configured
// every method is a no-op.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{logger: logger}
	}
	return &Producer{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish sends one event. payload keys are merged into the message next to
// "event"; errors are logged and swallowed.
func (p *Producer) Publish(ctx context.Context, event string, payload map[string]any) {
	if p.writer == nil {
		return
	}
	msg := map[string]any{"event": event}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.logger.Warn("events: marshal", zap.String("event", event), zap.Error(err))
		return
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		p.logger.Warn("events: write", zap.String("event", event), zap.Error(err))
	}
}

// PublishTicket sends an event carrying a ticket's scalar projection.
func (p *Producer) PublishTicket(ctx context.Context, event string, t model.Ticket) {
	p.Publish(ctx, event, map[string]any{
		"ticket_id":   t.ID,
		"creator":     t.Creator.String(),
		"priority":    uint8(t.Priority),
		"status":      string(t.Status),
		"assigned_to": t.AssignedTo,
	})
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into a broker slice.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
