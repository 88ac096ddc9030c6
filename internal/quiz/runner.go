package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/content"
	"github.com/vkotov/talentflow/internal/transport"
)

var (
	// ErrSessionActive is returned when a test is started while another is
	// still running for the same user.
	ErrSessionActive = errors.New("another test session is already running")
	// ErrNoSession is returned for answers without a running session.
	ErrNoSession = errors.New("no active test session")
)

// tickInterval is how often the countdown in the rendered prompt refreshes.
const tickInterval = 5 * time.Second

// DefaultTimeLimits apply when the quiz content declares none.
var DefaultTimeLimits = map[string]time.Duration{
	catalog.TestPrimary:       5 * time.Minute,
	catalog.TestWhereToStart:  10 * time.Minute,
	catalog.TestLogic:         30 * time.Minute,
	catalog.TestInterviewPrep: 10 * time.Minute,
	catalog.TestPractical:     20 * time.Minute,
}

// Passed applies the completion policy: the logic test uses an absolute
// threshold of 22 correct, everything else passes at 70 %.
func Passed(testID string, correct, total int) bool {
	if total == 0 {
		return false
	}
	if testID == catalog.TestLogic {
		return correct >= 22
	}
	return correct*100 >= total*70
}

// Verdict is the terminal outcome of a session.
type Verdict struct {
	TestID    string
	Correct   int
	Total     int
	Passed    bool
	TimedOut  bool
	MessageID int
}

// Session drives one test for one user. All fields are guarded by mu; the
// processing flag is held across answer scoring so a timer tick never
// repaints mid-answer.
type Session struct {
	chatID    int64
	testID    string
	questions []content.Question
	index     int
	correct   int
	deadline  time.Time
	messageID int
	keyboard  transport.Keyboard

	mu         sync.Mutex
	processing bool
	done       bool
	stop       chan struct{}
}

// Runner owns at most one running session per user.
type Runner struct {
	renderer *transport.Renderer

	mu       sync.Mutex
	sessions map[int64]*Session

	now        func() time.Time
	onFinished func(ctx context.Context, chatID int64, v Verdict)
}

func NewRunner(renderer *transport.Renderer) *Runner {
	return &Runner{
		renderer: renderer,
		sessions: make(map[int64]*Session),
		now:      time.Now,
	}
}

// SetFinishedHook registers the callback invoked exactly once per session
// on completion or timeout. The hook records the result and re-renders.
func (r *Runner) SetFinishedHook(fn func(ctx context.Context, chatID int64, v Verdict)) {
	r.onFinished = fn
}

// Active reports whether the user has a running session.
func (r *Runner) Active(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[chatID]
	return ok
}

// Start begins a test session, rendering the first question in place of the
// given message. Rejects if a session is already running.
func (r *Runner) Start(ctx context.Context, chatID int64, testID string, quiz *content.Quiz, messageID int) error {
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("test %q has no questions", testID)
	}

	limit := quiz.TimeLimit
	if limit == 0 {
		limit = DefaultTimeLimits[testID]
	}

	s := &Session{
		chatID:    chatID,
		testID:    testID,
		questions: quiz.Questions,
		stop:      make(chan struct{}),
	}
	if limit > 0 {
		s.deadline = r.now().Add(limit)
	}

	r.mu.Lock()
	if _, exists := r.sessions[chatID]; exists {
		r.mu.Unlock()
		return ErrSessionActive
	}
	r.sessions[chatID] = s
	r.mu.Unlock()

	s.keyboard = optionKeyboard(len(s.questions[0].Options))
	text := renderPrompt(s.testID, s.questions[0], 1, len(s.questions), r.remaining(s))

	id, err := r.renderer.Render(ctx, transport.RenderOp{
		ChatID: chatID, Op: transport.OpEdit, MessageID: messageID,
		Text: text, Keyboard: s.keyboard,
	})
	if err != nil {
		r.drop(chatID)
		return fmt.Errorf("failed to render first question: %w", err)
	}
	s.mu.Lock()
	s.messageID = id
	s.mu.Unlock()

	if !s.deadline.IsZero() {
		go r.tickLoop(s)
	}

	log.Info().Int64("chat_id", chatID).Str("test", testID).Int("questions", len(s.questions)).Msg("Test session started")
	return nil
}

// Answer scores the pressed option for the current question and advances.
// Stale or double presses are ignored without touching the session.
func (r *Runner) Answer(ctx context.Context, chatID int64, optionIndex int) error {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	r.mu.Unlock()
	if !ok {
		return ErrNoSession
	}

	s.mu.Lock()
	if s.done || s.processing {
		s.mu.Unlock()
		return nil
	}
	// The guard is held across every suspension below; the tick loop
	// refuses to render while it is set.
	s.processing = true

	q := s.questions[s.index]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		s.processing = false
		s.mu.Unlock()
		return fmt.Errorf("option index %d out of range", optionIndex)
	}
	if optionIndex == q.CorrectIndex {
		s.correct++
	}
	s.index++
	finished := s.index >= len(s.questions)
	s.mu.Unlock()

	if finished {
		r.finish(ctx, s, false)
		return nil
	}

	s.mu.Lock()
	next := s.questions[s.index]
	s.keyboard = optionKeyboard(len(next.Options))
	text := renderPrompt(s.testID, next, s.index+1, len(s.questions), r.remaining(s))
	kb := s.keyboard
	msgID := s.messageID
	s.mu.Unlock()

	id, err := r.renderer.Render(ctx, transport.RenderOp{
		ChatID: chatID, Op: transport.OpEdit, MessageID: msgID,
		Text: text, Keyboard: kb,
	})

	s.mu.Lock()
	if err == nil {
		s.messageID = id
	}
	s.processing = false
	s.mu.Unlock()
	return err
}

// Cancel aborts a running session without a verdict (admin reset).
func (r *Runner) Cancel(chatID int64) {
	r.mu.Lock()
	s, ok := r.sessions[chatID]
	delete(r.sessions, chatID)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if !s.done {
		s.done = true
		close(s.stop)
	}
	s.mu.Unlock()
}

func (r *Runner) drop(chatID int64) {
	r.mu.Lock()
	delete(r.sessions, chatID)
	r.mu.Unlock()
}

func (r *Runner) remaining(s *Session) time.Duration {
	if s.deadline.IsZero() {
		return 0
	}
	d := s.deadline.Sub(r.now())
	if d < 0 {
		d = 0
	}
	return d
}

func (r *Runner) tickLoop(s *Session) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			r.tickOnce(context.Background(), s)
		}
	}
}

// tickOnce refreshes the countdown in the rendered prompt. It no-ops while
// an answer is being scored, and a stale tick (the question advanced since
// the snapshot) never repaints.
func (r *Runner) tickOnce(ctx context.Context, s *Session) {
	s.mu.Lock()
	if s.done || s.processing {
		s.mu.Unlock()
		return
	}
	if !s.deadline.IsZero() && !r.now().Before(s.deadline) {
		s.mu.Unlock()
		r.finish(ctx, s, true)
		return
	}
	snapshotIndex := s.index
	q := s.questions[s.index]
	kb := s.keyboard
	msgID := s.messageID
	text := renderPrompt(s.testID, q, s.index+1, len(s.questions), r.remaining(s))
	s.mu.Unlock()

	s.mu.Lock()
	stale := s.index != snapshotIndex || s.processing || s.done
	s.mu.Unlock()
	if stale {
		return
	}

	// The cached keyboard is reused so the buttons survive the edit.
	if _, err := r.renderer.Render(ctx, transport.RenderOp{
		ChatID: s.chatID, Op: transport.OpEdit, MessageID: msgID,
		Text: text, Keyboard: kb,
	}); err != nil {
		log.Warn().Err(err).Int64("chat_id", s.chatID).Msg("Countdown refresh failed")
	}
}

func (r *Runner) finish(ctx context.Context, s *Session, timedOut bool) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	close(s.stop)
	v := Verdict{
		TestID:    s.testID,
		Correct:   s.correct,
		Total:     len(s.questions),
		TimedOut:  timedOut,
		MessageID: s.messageID,
	}
	s.mu.Unlock()

	// Timeout is a hard fail for the test; progression still advances.
	if !timedOut {
		v.Passed = Passed(s.testID, v.Correct, v.Total)
	}

	r.drop(s.chatID)

	log.Info().Int64("chat_id", s.chatID).Str("test", s.testID).
		Int("correct", v.Correct).Int("total", v.Total).
		Bool("passed", v.Passed).Bool("timed_out", v.TimedOut).
		Msg("Test session finished")

	if r.onFinished != nil {
		r.onFinished(ctx, s.chatID, v)
	}
}
