package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vkotov/talentflow/internal/transport"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen map[int64][]string
}

func (h *recordingHandler) Handle(_ context.Context, ev transport.Event) {
	if ev.Text == "boom" {
		panic("handler exploded")
	}
	h.mu.Lock()
	h.seen[ev.ChatID] = append(h.seen[ev.ChatID], ev.Text)
	h.mu.Unlock()
}

func TestDispatcherKeepsPerChatOrder(t *testing.T) {
	h := &recordingHandler{seen: make(map[int64][]string)}
	d := NewDispatcher(h)

	for i := 0; i < 3; i++ {
		d.Dispatch(transport.Event{ChatID: 1, Text: string(rune('a' + i))})
		d.Dispatch(transport.Event{ChatID: 2, Text: string(rune('x' + i))})
	}
	d.Close()

	assert.Equal(t, []string{"a", "b", "c"}, h.seen[1])
	assert.Equal(t, []string{"x", "y", "z"}, h.seen[2])
}

func TestDispatcherSurvivesPanicInHandler(t *testing.T) {
	h := &recordingHandler{seen: make(map[int64][]string)}
	d := NewDispatcher(h)

	d.Dispatch(transport.Event{ChatID: 1, Text: "boom"})
	d.Dispatch(transport.Event{ChatID: 1, Text: "after"})
	d.Close()

	assert.Equal(t, []string{"after"}, h.seen[1])
}

func TestDispatcherIgnoresEventsAfterClose(t *testing.T) {
	h := &recordingHandler{seen: make(map[int64][]string)}
	d := NewDispatcher(h)
	d.Close()

	d.Dispatch(transport.Event{ChatID: 1, Text: "late"})
	assert.Empty(t, h.seen[1])
}
