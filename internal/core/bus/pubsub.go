package bus

import (
	"context"
	"fmt"
	"log"

	"cloud.google.com/go/pubsub"

	"github.com/embedhq/vectorproxy/internal/config"
)

// PubSubConsumer reads indexing requests from a Google Pub/Sub subscription.
// The stream key travels in the "_stream" message attribute.
type PubSubConsumer struct {
	cfg    *config.Config
	client *pubsub.Client
}

var _ Consumer = (*PubSubConsumer)(nil)

func NewPubSubConsumer(ctx context.Context, cfg *config.Config) (*PubSubConsumer, error) {
	if cfg.GoogleProjectID == "" {
		return nil, fmt.Errorf("GOOGLE_PROJECT_ID is empty")
	}
	client, err := pubsub.NewClient(ctx, cfg.GoogleProjectID)
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	log.Printf("Connected to Pub/Sub project %s", cfg.GoogleProjectID)
	return &PubSubConsumer{cfg: cfg, client: client}, nil
}

// ensureSubscription creates the topic and subscription when they do not
// exist yet, mirroring what the queue declare does on the AMQP side.
func (c *PubSubConsumer) ensureSubscription(ctx context.Context) (*pubsub.Subscription, error) {
	topic := c.client.Topic(c.cfg.RabbitMQExchange)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic: %w", err)
	}
	if !ok {
		if topic, err = c.client.CreateTopic(ctx, c.cfg.RabbitMQExchange); err != nil {
			return nil, fmt.Errorf("create topic: %w", err)
		}
	}

	sub := c.client.Subscription(c.cfg.RabbitMQStream)
	ok, err = sub.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check subscription: %w", err)
	}
	if !ok {
		sub, err = c.client.CreateSubscription(ctx, c.cfg.RabbitMQStream, pubsub.SubscriptionConfig{Topic: topic})
		if err != nil {
			return nil, fmt.Errorf("create subscription: %w", err)
		}
	}
	return sub, nil
}

func (c *PubSubConsumer) Consume(ctx context.Context, sink Sink) error {
	sub, err := c.ensureSubscription(ctx)
	if err != nil {
		return err
	}

	log.Printf("Consuming Pub/Sub subscription %s", c.cfg.RabbitMQStream)
	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		stream := m.Attributes["_stream"]
		dsID, configKey, err := ParseStream(stream)
		if err != nil {
			log.Printf("WARN dropping message with bad _stream attribute: %v", err)
			m.Ack()
			return
		}

		err = sink(ctx, Delivery{
			Body:         m.Data,
			Type:         m.Attributes["type"],
			DatasourceID: dsID,
			ConfigKey:    configKey,
		})
		if err != nil {
			log.Printf("WARN processing failed for stream %s: %v", stream, err)
		}
		m.Ack()
	})
}

func (c *PubSubConsumer) Close() error {
	return c.client.Close()
}
