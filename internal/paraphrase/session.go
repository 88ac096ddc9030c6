package paraphrase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/content"
	"github.com/vkotov/talentflow/internal/transport"
)

var (
	ErrSessionActive = errors.New("a paraphrase session is already running")
	ErrNoSession     = errors.New("no active paraphrase session")
)

// PassPercent is the stop-word test bar.
const PassPercent = 80

// Verdict is the terminal outcome of a paraphrase session.
type Verdict struct {
	Correct   int
	Total     int
	Passed    bool
	TimedOut  bool
	MessageID int
}

type session struct {
	chatID    int64
	exercises []content.ParaphraseExercise
	index     int
	correct   int
	deadline  time.Time
	messageID int
	timer     *time.Timer

	mu   sync.Mutex
	done bool
}

// Runner drives stop-word rewrite sessions, one per user. Replies arrive
// as free text; the verdict message carries a button advancing to the next
// exercise.
type Runner struct {
	renderer *transport.Renderer
	eval     *Evaluator

	mu       sync.Mutex
	sessions map[int64]*session

	now        func() time.Time
	onFinished func(ctx context.Context, chatID int64, v Verdict)
}

func NewRunner(renderer *transport.Renderer, eval *Evaluator) *Runner {
	return &Runner{
		renderer: renderer,
		eval:     eval,
		sessions: make(map[int64]*session),
		now:      time.Now,
	}
}

func (r *Runner) SetFinishedHook(fn func(ctx context.Context, chatID int64, v Verdict)) {
	r.onFinished = fn
}

func (r *Runner) Active(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[chatID]
	return ok
}

// Start renders the first exercise in place of the given message.
func (r *Runner) Start(ctx context.Context, chatID int64, set *content.ParaphraseSet, messageID int) error {
	if len(set.Exercises) == 0 {
		return fmt.Errorf("paraphrase set has no exercises")
	}

	s := &session{chatID: chatID, exercises: set.Exercises}
	if set.TimeLimit > 0 {
		s.deadline = r.now().Add(set.TimeLimit)
	}

	r.mu.Lock()
	if _, exists := r.sessions[chatID]; exists {
		r.mu.Unlock()
		return ErrSessionActive
	}
	r.sessions[chatID] = s
	r.mu.Unlock()

	id, err := r.renderer.Render(ctx, transport.RenderOp{
		ChatID: chatID, Op: transport.OpEdit, MessageID: messageID,
		Text: promptText(s.exercises[0], 1, len(s.exercises)),
	})
	if err != nil {
		r.drop(chatID)
		return fmt.Errorf("failed to render first exercise: %w", err)
	}
	s.mu.Lock()
	s.messageID = id
	s.mu.Unlock()

	if set.TimeLimit > 0 {
		s.timer = time.AfterFunc(set.TimeLimit, func() {
			r.finish(context.Background(), s, true)
		})
	}

	log.Info().Int64("chat_id", chatID).Int("exercises", len(s.exercises)).Msg("Paraphrase session started")
	return nil
}

// HandleReply evaluates a free-text rewrite for the current exercise.
func (r *Runner) HandleReply(ctx context.Context, chatID int64, reply string) error {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	r.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	if !s.deadline.IsZero() && !r.now().Before(s.deadline) {
		s.mu.Unlock()
		r.finish(ctx, s, true)
		return nil
	}
	ex := s.exercises[s.index]
	msgID := s.messageID
	number := s.index + 1
	total := len(s.exercises)
	s.mu.Unlock()

	switch r.eval.Evaluate(ctx, ex, reply) {
	case OutcomeEmpty:
		_, err := r.renderer.Render(ctx, transport.RenderOp{
			ChatID: chatID, Op: transport.OpEdit, MessageID: msgID,
			Text: "Ответ не может быть пустым.\n\n" + promptText(ex, number, total),
		})
		return err

	case OutcomePass:
		return r.advance(ctx, s, true)

	default:
		return r.advance(ctx, s, false)
	}
}

// NextPrompt handles the advance button on a verdict message.
func (r *Runner) NextPrompt(ctx context.Context, chatID int64) error {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	r.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	ex := s.exercises[s.index]
	msgID := s.messageID
	number := s.index + 1
	total := len(s.exercises)
	s.mu.Unlock()

	id, err := r.renderer.Render(ctx, transport.RenderOp{
		ChatID: chatID, Op: transport.OpEdit, MessageID: msgID,
		Text: promptText(ex, number, total),
	})
	if err == nil {
		s.mu.Lock()
		s.messageID = id
		s.mu.Unlock()
	}
	return err
}

// Cancel aborts a running session without a verdict.
func (r *Runner) Cancel(chatID int64) {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	delete(r.sessions, chatID)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (r *Runner) advance(ctx context.Context, s *session, correct bool) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	if correct {
		s.correct++
	}
	s.index++
	finished := s.index >= len(s.exercises)
	msgID := s.messageID
	s.mu.Unlock()

	if finished {
		r.finish(ctx, s, false)
		return nil
	}

	verdict := "Не засчитано ❌"
	if correct {
		verdict = "Засчитано ✅"
	}
	id, err := r.renderer.Render(ctx, transport.RenderOp{
		ChatID: s.chatID, Op: transport.OpEdit, MessageID: msgID,
		Text: verdict,
		Keyboard: transport.Keyboard{{
			{Label: "Следующее задание", Data: "next_stopword_question"},
		}},
	})
	if err == nil {
		s.mu.Lock()
		s.messageID = id
		s.mu.Unlock()
	}
	return err
}

func (r *Runner) finish(ctx context.Context, s *session, timedOut bool) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
	}
	v := Verdict{
		Correct:   s.correct,
		Total:     len(s.exercises),
		TimedOut:  timedOut,
		MessageID: s.messageID,
	}
	s.mu.Unlock()

	if !timedOut {
		v.Passed = v.Total > 0 && v.Correct*100 >= v.Total*PassPercent
	}

	r.drop(s.chatID)

	log.Info().Int64("chat_id", s.chatID).Int("correct", v.Correct).Int("total", v.Total).
		Bool("passed", v.Passed).Bool("timed_out", v.TimedOut).Msg("Paraphrase session finished")

	if r.onFinished != nil {
		r.onFinished(ctx, s.chatID, v)
	}
}

func (r *Runner) drop(chatID int64) {
	r.mu.Lock()
	delete(r.sessions, chatID)
	r.mu.Unlock()
}

func promptText(ex content.ParaphraseExercise, number, total int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Задание %d/%d\n", number, total))
	b.WriteString(fmt.Sprintf("Перепишите фразу так, чтобы в ней не было стоп-слова «%s», сохранив смысл:\n\n", ex.Stopword))
	b.WriteString(fmt.Sprintf("«%s»\n\n", ex.Sentence))
	b.WriteString("Отправьте свой вариант сообщением.")
	return b.String()
}
