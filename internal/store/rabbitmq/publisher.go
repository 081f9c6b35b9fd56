package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/agencore/internal/activity"
)

// Publisher is an activity.Sink that fans events out to a queue.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, ch, err := Dial(url, queue)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) Store(ctx context.Context, e *activity.Event) error {
	body, err := Encode(e)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(cctx,
		"",      // default exchange
		p.queue, // routing key = queue
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    e.CreatedAt,
			Type:         e.Action,
		},
	)
}

func Encode(e *activity.Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode rejects bodies without a user or action.
func Decode(body []byte) (*activity.Event, error) {
	var e activity.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	if e.UserID == "" || e.Action == "" {
		return nil, ErrBadMessage
	}
	e.ID = 0
	return &e, nil
}
