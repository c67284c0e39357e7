package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"orderengine/internal/models"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer MessageWriter
	clock  func() time.Time
}

// ParseBrokers splits a comma separated broker list, dropping blanks.
func ParseBrokers(brokersCSV string) []string {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func NewKafkaPublisher(brokers []string, topic string) *Publisher {
	return NewPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	})
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer, clock: time.Now}
}

// PublishOrderCreated emits order.created keyed by order number so events of
// one order stay on one partition.
func (p *Publisher) PublishOrderCreated(ctx context.Context, order *models.Order) error {
	now := p.clock()
	data, err := json.Marshal(orderCreated(uuid.NewString(), order, now))
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.OrderNumber),
		Value: data,
		Time:  now.UTC(),
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
