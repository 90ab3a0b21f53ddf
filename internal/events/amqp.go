package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/metrics"
)

// DefaultExchange receives verification events when no exchange is configured.
const DefaultExchange = "jasamarket.events"

// AMQPProducer publishes events to a durable topic exchange.
type AMQPProducer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
}

// NewAMQPProducer dials the broker and declares the exchange.
func NewAMQPProducer(amqpURL, exchange string) (*AMQPProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}

	p := &AMQPProducer{
		conn:     conn,
		exchange: exchange,
		log:      logger.WithModule("events"),
	}
	if err := p.reopenChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// Publish sends the envelope with the routing key, reopening the channel once on failure.
func (p *AMQPProducer) Publish(ctx context.Context, routingKey string, envelope Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		metrics.EventsPublished.WithLabelValues(routingKey, "failure").Inc()
		return fmt.Errorf("events: marshal %s: %w", routingKey, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    envelope.ID,
		Type:         envelope.Type,
		Timestamp:    envelope.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err != nil {
		p.log.Warn("publish failed; reopening channel",
			zap.String("exchange", p.exchange),
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		if reopenErr := p.reopenChannel(); reopenErr == nil {
			err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
		}
	}

	if err != nil {
		metrics.EventsPublished.WithLabelValues(routingKey, "failure").Inc()
		return fmt.Errorf("events: publish %s: %w", routingKey, err)
	}
	metrics.EventsPublished.WithLabelValues(routingKey, "success").Inc()
	return nil
}

// Close releases channel and connection resources.
func (p *AMQPProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.channel != nil {
		err = multierr.Append(err, p.channel.Close())
	}
	if p.conn != nil {
		err = multierr.Append(err, p.conn.Close())
	}
	return err
}

func (p *AMQPProducer) reopenChannel() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("events: declare exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if clean == "" {
		return "", errors.New("events: amqp url is required")
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("events: parse amqp url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("events: amqp url scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
