package notify

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/vkotov/talentflow/internal/model"
)

// EventPublisher mirrors funnel events to a topic exchange for external
// consumers (analytics, HR integrations). Publishing is best effort; the
// candidate notification itself never depends on the broker.
type EventPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewEventPublisher connects and declares the topic exchange. An empty URL
// disables publishing; every Publish becomes a no-op.
func NewEventPublisher(amqpURL, exchange string) (*EventPublisher, error) {
	if amqpURL == "" {
		log.Warn().Msg("AMQP_URL is not set. Event mirroring is disabled.")
		return &EventPublisher{}, nil
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &EventPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends the event with its kind as the routing key.
func (p *EventPublisher) Publish(event model.OutboxEvent) error {
	if p.channel == nil {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"id":          event.ID,
		"type":        event.Kind,
		"telegram_id": event.TelegramID,
		"payload":     event.Payload.Data(),
	})
	if err != nil {
		return err
	}

	return p.channel.Publish(
		p.exchange,
		event.Kind,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (p *EventPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
