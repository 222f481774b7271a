package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Message - исходящее сообщение. ID попадает в MessageId.
type Message struct {
	Exchange   string
	RoutingKey string
	ID         string
	Payload    any
}

// Publish кодирует Payload в JSON и публикует persistent-сообщение.
func Publish(ch *amqp.Channel, m Message) error {
	const op = "rabbitmq.Publish"
	body, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.Publish(m.Exchange, m.RoutingKey, false, false, pub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
