// Package bus consumes indexing requests from the message broker and hands
// them to the ingestion engine.
package bus

import "context"

// Delivery is one indexing request pulled off the broker, already stripped
// of transport framing. Type is empty for row-delivery messages.
type Delivery struct {
	Body         []byte
	Type         string
	DatasourceID string
	ConfigKey    string
}

// Sink receives deliveries. A nil error acknowledges the message; a non-nil
// error leaves redelivery to the broker.
type Sink func(ctx context.Context, d Delivery) error

// Consumer is a long-running broker subscription. Consume blocks until the
// context is cancelled or the connection is lost beyond recovery.
type Consumer interface {
	Consume(ctx context.Context, sink Sink) error
	Close() error
}
