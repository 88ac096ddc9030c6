package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/transport"
)

// Handler consumes one inbound event.
type Handler interface {
	Handle(ctx context.Context, ev transport.Event)
}

const queueDepth = 32

// Dispatcher fans inbound events out to one goroutine per chat, so each
// user's events are processed strictly in arrival order while users never
// block each other.
type Dispatcher struct {
	handler Handler

	mu     sync.Mutex
	queues map[int64]chan transport.Event
	wg     sync.WaitGroup
	closed bool
}

func NewDispatcher(handler Handler) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		queues:  make(map[int64]chan transport.Event),
	}
}

// Dispatch enqueues the event for its chat's worker, spawning the worker on
// first contact. A full queue drops the event rather than stalling the
// webhook handler.
func (d *Dispatcher) Dispatch(ev transport.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	q, ok := d.queues[ev.ChatID]
	if !ok {
		q = make(chan transport.Event, queueDepth)
		d.queues[ev.ChatID] = q
		d.wg.Add(1)
		go d.worker(q)
	}
	d.mu.Unlock()

	select {
	case q <- ev:
	default:
		log.Warn().Int64("chat_id", ev.ChatID).Msg("Event queue full, dropping update")
	}
}

// Close stops accepting events and waits for in-flight ones to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(q chan transport.Event) {
	defer d.wg.Done()
	for ev := range q {
		d.process(ev)
	}
}

// process wraps each event in a recover boundary: a panic poisons one
// update, never the worker or the process.
func (d *Dispatcher) process(ev transport.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int64("chat_id", ev.ChatID).Msg("Recovered from panic while handling update")
		}
	}()
	d.handler.Handle(context.Background(), ev)
}
