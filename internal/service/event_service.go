package service

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const PublishCompletedQueue = "publish.completed"

// EventSink receives every publish outcome. Failures are logged by callers
// and never change the outcome.
type EventSink interface {
	PublishOutcome(ctx context.Context, outcome *models.PublishOutcome) error
}

type noopEventSink struct{}

func NewNoopEventSink() EventSink { return noopEventSink{} }

func (noopEventSink) PublishOutcome(context.Context, *models.PublishOutcome) error { return nil }

type PublishCompletedEvent struct {
	UserID    int64                   `json:"user_id"`
	Status    string                  `json:"status"`
	Results   []*models.PublishResult `json:"results"`
	Timestamp time.Time               `json:"timestamp"`
}

type RabbitEventSink struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewRabbitEventSink dials the broker and declares the durable queue.
func NewRabbitEventSink(url string) (*RabbitEventSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		_ = conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		PublishCompletedQueue, // name
		true,                  // durable
		false,                 // autoDelete
		false,                 // exclusive
		false,                 // noWait
		nil,                   // args
	); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &RabbitEventSink{conn: conn, ch: ch}, nil
}

func (s *RabbitEventSink) PublishOutcome(ctx context.Context, outcome *models.PublishOutcome) error {
	body, err := json.Marshal(PublishCompletedEvent{
		UserID:    outcome.UserID,
		Status:    outcome.Status,
		Results:   outcome.Results,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ch.PublishWithContext(ctx,
		"",                    // default exchange
		PublishCompletedQueue, // routing key = queue name
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

func (s *RabbitEventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ch.Close(); err != nil {
		log.Printf("rabbitmq: channel close failed: %v", err)
	}
	return s.conn.Close()
}
