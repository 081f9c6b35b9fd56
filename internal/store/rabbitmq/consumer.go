package rabbitmq

import (
	"context"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/agencore/internal/activity"
	"github.com/suPer8Hu/agencore/internal/logging"
)

const retryHeader = "x-retry-count"

// publisher is the slice of *amqp.Channel the consumer needs for retries.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Consumer moves activity deliveries into a Sink. Malformed bodies go
// straight to the DLQ; sink failures are parked on .retry with a delay
// until MaxRetries is spent.
type Consumer struct {
	pub        publisher
	queue      string
	sink       activity.Sink
	MaxRetries int
	RetryDelay time.Duration
	log        zerolog.Logger
}

func NewConsumer(ch publisher, queue string, sink activity.Sink) *Consumer {
	return &Consumer{
		pub:        ch,
		queue:      queue,
		sink:       sink,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		log:        logging.Component("worker"),
	}
}

func retries(d amqp.Delivery) int {
	switch v := d.Headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// Handle settles d exactly once.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	e, err := Decode(d.Body)
	if err != nil {
		c.log.Warn().Err(err).Msg("bad activity message")
		_ = d.Nack(false, false)
		return
	}
	if e.CreatedAt.IsZero() && !d.Timestamp.IsZero() {
		e.CreatedAt = d.Timestamp
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	storeErr := c.sink.Store(sctx, e)
	cancel()
	if storeErr == nil {
		if err := d.Ack(false); err != nil {
			c.log.Warn().Err(err).Msg("ack failed")
		}
		return
	}

	n := retries(d)
	l := c.log.With().Str("user_id", e.UserID).Str("action", e.Action).Int("attempt", n+1).Logger()
	if n >= c.MaxRetries {
		l.Error().Err(storeErr).Msg("activity store failed, dead-lettering")
		_ = d.Nack(false, false)
		return
	}

	err = c.pub.PublishWithContext(ctx, "", c.queue+".retry", false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Timestamp:    d.Timestamp,
		Type:         d.Type,
		Expiration:   strconv.FormatInt(c.RetryDelay.Milliseconds(), 10),
		Headers:      amqp.Table{retryHeader: int32(n + 1)},
	})
	if err != nil {
		l.Error().Err(err).Msg("retry publish failed, dead-lettering")
		_ = d.Nack(false, false)
		return
	}
	l.Warn().Err(storeErr).Msg("activity store failed, scheduled retry")
	_ = d.Ack(false)
}
