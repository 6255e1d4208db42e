package bus

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/embedhq/vectorproxy/internal/config"
)

const consumerPrefetch = 10000

// RabbitMQConsumer reads indexing requests from a durable stream queue bound
// to a direct exchange. The stream key travels in the "stream" header.
type RabbitMQConsumer struct {
	cfg  *config.Config
	conn *amqp.Connection
	ch   *amqp.Channel
}

var _ Consumer = (*RabbitMQConsumer)(nil)

func NewRabbitMQConsumer(cfg *config.Config) *RabbitMQConsumer {
	return &RabbitMQConsumer{cfg: cfg}
}

func (c *RabbitMQConsumer) connect() error {
	conn, err := amqp.Dial(c.cfg.RabbitMQURL())
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(c.cfg.RabbitMQExchange, "direct", true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", c.cfg.RabbitMQExchange, err)
	}

	if _, err := ch.QueueDeclare(c.cfg.RabbitMQStream, true, false, false, false, amqp.Table{
		"x-queue-type": "stream",
	}); err != nil {
		conn.Close()
		return fmt.Errorf("declare queue %s: %w", c.cfg.RabbitMQStream, err)
	}

	if err := ch.QueueBind(c.cfg.RabbitMQStream, c.cfg.RabbitMQRoutingKey, c.cfg.RabbitMQExchange, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("bind queue %s: %w", c.cfg.RabbitMQStream, err)
	}

	// stream queues require a prefetch limit on consumers
	if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
		conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	c.conn = conn
	c.ch = ch
	log.Printf("Connected to RabbitMQ, consuming %s", c.cfg.RabbitMQStream)
	return nil
}

// Consume runs the delivery loop, reconnecting with linear backsteps when
// the broker connection drops. It returns when ctx is cancelled.
func (c *RabbitMQConsumer) Consume(ctx context.Context, sink Sink) error {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := c.connect(); err != nil {
			wait := time.Duration(2+2*attempt) * time.Second
			log.Printf("rabbitmq connect failed (attempt %d): %v; retrying in %s", attempt+1, err, wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		attempt = 0

		if err := c.consumeOnce(ctx, sink); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("rabbitmq consume interrupted: %v; reconnecting", err)
			c.Close()
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, sink Sink) error {
	deliveries, err := c.ch.Consume(c.cfg.RabbitMQStream, "", false, false, false, false, amqp.Table{
		"x-stream-offset": "first",
	})
	if err != nil {
		return fmt.Errorf("start consume: %w", err)
	}

	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-closed:
			return fmt.Errorf("connection closed: %v", err)
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d, sink)
		}
	}
}

func (c *RabbitMQConsumer) handle(ctx context.Context, d amqp.Delivery, sink Sink) {
	stream, _ := d.Headers["stream"].(string)
	dsID, configKey, err := ParseStream(stream)
	if err != nil {
		// nothing downstream can do with it; drop and move on
		log.Printf("WARN dropping message with bad stream header: %v", err)
		_ = d.Ack(false)
		return
	}
	typeTag, _ := d.Headers["type"].(string)

	err = sink(ctx, Delivery{
		Body:         d.Body,
		Type:         typeTag,
		DatasourceID: dsID,
		ConfigKey:    configKey,
	})
	if err != nil {
		log.Printf("WARN processing failed for stream %s: %v", stream, err)
	}
	// processing failures are terminal for the message: the engine has
	// already retried transient errors, so redelivery would not help
	_ = d.Ack(false)
}

func (c *RabbitMQConsumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
