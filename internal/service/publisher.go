// Package service holds the business operations that sit between the HTTP
// handlers and the per-tenant models.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/notify"
	"github.com/iliyamo/clinic-manager/internal/queue"
)

// Publisher is a notify.Sender that enqueues mail on the notify.email queue
// instead of delivering it.  The broker connection is opened on first use
// and re-opened after it drops.
type Publisher struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewPublisher(url string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, logger: logger}
}

// Send publishes m as a persistent EmailRequestedEvent.
func (p *Publisher) Send(ctx context.Context, m notify.Message) error {
	ev := queue.EmailRequestedEvent{
		ID:          uuid.NewString(),
		To:          m.To,
		Subject:     m.Subject,
		HTML:        m.HTML,
		RequestedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue.EmailQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.RequestedAt,
		Body:         body,
	})
	if err != nil {
		p.reset()
		p.logger.Warn("publish email failed", zap.String("message_id", ev.ID), zap.Error(err))
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing when needed.  p.mu is held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue.EmailQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close drops the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
