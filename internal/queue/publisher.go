package queue

import (
	"encoding/json"

	"github.com/streadway/amqp"
)

// Publisher nudges the sender worker about a freshly queued item.
type Publisher interface {
	PublishItemQueued(itemID string) error
}

// Nudge is the wire payload on the AMQP queue.
type Nudge struct {
	OutboundItemID string `json:"outbound_item_id"`
}

// AMQPPublisher publishes nudges to a durable RabbitMQ queue.
type AMQPPublisher struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
}

func NewAMQPPublisher(url, queueName string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, queueName: queueName}, nil
}

func (p *AMQPPublisher) PublishItemQueued(itemID string) error {
	body, err := json.Marshal(Nudge{OutboundItemID: itemID})
	if err != nil {
		return err
	}
	return p.ch.Publish(
		"",          // default exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (p *AMQPPublisher) Close() {
	p.ch.Close()
	p.conn.Close()
}

// NopPublisher disables the nudge path; the periodic drain alone delivers.
type NopPublisher struct{}

func (NopPublisher) PublishItemQueued(string) error { return nil }
