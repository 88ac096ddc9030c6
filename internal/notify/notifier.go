package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/repository"
	"github.com/vkotov/talentflow/internal/transport"
)

// Publisher mirrors a delivered event to the message broker.
type Publisher interface {
	Publish(event model.OutboxEvent) error
}

const defaultPollInterval = 5 * time.Second

// batchSize bounds one delivery pass.
const batchSize = 50

// Notifier drains the outbox: recruiter decisions become candidate-chat
// messages. Delivery is at-least-once; a transport failure leaves the row
// pending for the next pass, only an undeliverable row is marked failed.
type Notifier struct {
	outbox    repository.OutboxRepository
	renderer  *transport.Renderer
	publisher Publisher
	interval  time.Duration
}

func NewNotifier(outbox repository.OutboxRepository, renderer *transport.Renderer, publisher Publisher) *Notifier {
	return &Notifier{
		outbox:    outbox,
		renderer:  renderer,
		publisher: publisher,
		interval:  defaultPollInterval,
	}
}

// Run polls until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.DeliverPending(ctx)
		}
	}
}

// DeliverPending performs one delivery pass.
func (n *Notifier) DeliverPending(ctx context.Context) {
	events, err := n.outbox.ListPending(batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending notifications")
		return
	}

	for _, event := range events {
		text, ok := notificationText(event)
		if !ok {
			log.Error().Str("kind", event.Kind).Str("event_id", event.ID).Msg("Undeliverable outbox event")
			if err := n.outbox.MarkFailed(event.ID); err != nil {
				log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to mark event failed")
			}
			continue
		}

		if _, err := n.renderer.Render(ctx, transport.RenderOp{
			ChatID: event.TelegramID, Op: transport.OpSend, Text: text,
		}); err != nil {
			// Left pending: the next pass retries.
			log.Warn().Err(err).Str("event_id", event.ID).Msg("Notification delivery failed")
			continue
		}

		if err := n.outbox.MarkSent(event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to mark event sent")
			continue
		}

		if n.publisher != nil {
			if err := n.publisher.Publish(event); err != nil {
				log.Warn().Err(err).Str("event_id", event.ID).Msg("Event mirroring failed")
			}
		}
	}
}

// notificationText maps an outbox event to the candidate-facing message.
func notificationText(event model.OutboxEvent) (string, bool) {
	payload := event.Payload.Data()
	approved := payload.Status == model.StatusApproved

	var text string
	switch event.Kind {
	case model.EventSubmissionReviewed:
		if approved {
			text = "Ваше тестовое задание проверено: принято ✅"
		} else {
			text = "Ваше тестовое задание проверено: отклонено ❌"
		}
	case model.EventInterviewAnswered:
		if approved {
			text = "Заявка на собеседование подтверждена ✅"
		} else {
			text = "Заявка на собеседование отклонена ❌"
		}
	default:
		return "", false
	}

	if payload.Feedback != "" {
		text += fmt.Sprintf("\nКомментарий рекрутера: %s", payload.Feedback)
	}
	return text, true
}
