package events

import (
	"context"
	"encoding/json"
	"time"

	"ledger-config/internal/entity"
	"ledger-config/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits one Kafka message per committed config change so downstream ledgers can refresh
// reference data. A nil Publisher drops events.
type Publisher struct {
	w       messageWriter
	timeout time.Duration
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 {
		return nil
	}
	return &Publisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 5 * time.Second,
		},
		timeout: 5 * time.Second,
	}
}

// Observe publishes c keyed by kind/id so changes to one record stay ordered within a partition.
func (p *Publisher) Observe(ctx context.Context, c entity.Change) {
	if p == nil || p.w == nil {
		return
	}
	value, err := json.Marshal(c)
	if err != nil {
		logger.From(ctx).Error("encode change event", "kind", c.Kind, "id", c.ID, "err", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	err = p.w.WriteMessages(pubCtx, kafka.Message{
		Key:   []byte(c.Kind + "/" + c.ID),
		Value: value,
		Time:  c.At,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(c.Action)},
		},
	})
	if err != nil {
		logger.From(ctx).Error("publish change event", "kind", c.Kind, "id", c.ID, "action", c.Action, "err", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}
