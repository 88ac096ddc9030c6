package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/repository/memory"
	"github.com/vkotov/talentflow/internal/transport"
)

type flakyTransport struct {
	mu    sync.Mutex
	fail  bool
	texts []string
}

func (f *flakyTransport) Send(_ context.Context, _ int64, text string, _ transport.Keyboard, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return 0, errors.New("telegram unreachable")
	}
	f.texts = append(f.texts, text)
	return len(f.texts), nil
}

func (f *flakyTransport) Edit(_ context.Context, _ int64, _ int, _ string, _ transport.Keyboard, _ string) error {
	return errors.New("not used")
}

func (f *flakyTransport) Delete(_ context.Context, _ int64, _ int) error { return nil }

type recordingPublisher struct {
	events []model.OutboxEvent
}

func (p *recordingPublisher) Publish(event model.OutboxEvent) error {
	p.events = append(p.events, event)
	return nil
}

func TestDeliverPendingSendsAndMarks(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	ft := &flakyTransport{}
	pub := &recordingPublisher{}
	n := NewNotifier(outbox, transport.NewRenderer(ft), pub)

	require.NoError(t, outbox.Enqueue(nil, 7, model.EventSubmissionReviewed, model.OutboxPayload{
		Kind:     model.SubmissionKindPractical,
		Status:   model.StatusApproved,
		Feedback: "Молодец",
	}))

	n.DeliverPending(context.Background())

	require.Len(t, ft.texts, 1)
	assert.Contains(t, ft.texts[0], "принято ✅")
	assert.Contains(t, ft.texts[0], "Комментарий рекрутера: Молодец")

	pending, err := outbox.ListPending(0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.Len(t, pub.events, 1)
	assert.Equal(t, model.EventSubmissionReviewed, pub.events[0].Kind)
}

func TestDeliveryFailureKeepsEventPending(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	ft := &flakyTransport{fail: true}
	n := NewNotifier(outbox, transport.NewRenderer(ft), nil)

	require.NoError(t, outbox.Enqueue(nil, 7, model.EventInterviewAnswered, model.OutboxPayload{
		Status: model.StatusRejected,
	}))

	n.DeliverPending(context.Background())
	pending, err := outbox.ListPending(0)
	require.NoError(t, err)
	require.Len(t, pending, 1, "failed delivery must be retried next pass")

	ft.mu.Lock()
	ft.fail = false
	ft.mu.Unlock()

	n.DeliverPending(context.Background())
	pending, err = outbox.ListPending(0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	require.Len(t, ft.texts, 1)
	assert.Contains(t, ft.texts[0], "отклонена ❌")
}

func TestUnknownEventKindIsMarkedFailed(t *testing.T) {
	outbox := memory.NewOutboxRepository()
	ft := &flakyTransport{}
	n := NewNotifier(outbox, transport.NewRenderer(ft), nil)

	require.NoError(t, outbox.Enqueue(nil, 7, "unknown.kind", model.OutboxPayload{}))

	n.DeliverPending(context.Background())
	pending, err := outbox.ListPending(0)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, ft.texts)
}
