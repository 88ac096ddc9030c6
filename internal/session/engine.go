package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/vkotov/talentflow/config"
	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/content"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/paraphrase"
	"github.com/vkotov/talentflow/internal/progression"
	"github.com/vkotov/talentflow/internal/quiz"
	"github.com/vkotov/talentflow/internal/repository"
	"github.com/vkotov/talentflow/internal/transport"
)

// Conversation states of the candidate flow.
const (
	stateMainMenu         = "main_menu"
	stateViewing          = "viewing"
	stateConfirmingTest   = "confirming_test"
	stateInQuiz           = "in_quiz"
	stateInParaphrase     = "in_paraphrase"
	stateAwaitingSolution = "awaiting_practical_solution"
	stateInSurvey         = "in_survey"
	stateSchedulingDay    = "scheduling_interview_day"
	stateSchedulingTime   = "scheduling_interview_time"
	stateContactingDevs   = "contacting_developers"
)

// Callback tokens not derived from stage or test ids.
const (
	cbMainMenu    = "main_menu"
	cbContactDevs = "contact_developers"
	cbSubmitWork  = "submit_solution"
	cbNextRewrite = "next_stopword_question"
)

// minSolutionChars separates an actual inline solution from stray chatter
// while a file upload is expected.
const minSolutionChars = 30

// state is per-chat conversation state. mode and admin are written from
// both the dispatcher goroutine and the runner timer callbacks, so every
// access to them goes through the engine accessors behind e.mu; the other
// fields are only touched by the chat's own dispatcher goroutine.
type state struct {
	mode         string
	menuMsgID    int
	viewStage    catalog.StageID
	admin        bool
	surveyPicks  map[int]bool
	interviewDay string
}

// Engine is the candidate-side state machine. The dispatcher serializes
// events per chat; the runners' timers call back from their own goroutines,
// so shared state stays behind the engine mutex.
type Engine struct {
	renderer    *transport.Renderer
	loader      content.Loader
	users       repository.UserRepository
	submissions repository.SubmissionRepository
	interviews  repository.InterviewRepository
	messages    repository.MessageRepository
	quizzes     *quiz.Runner
	rewrites    *paraphrase.Runner
	admin       config.AdminCommands

	mu     sync.Mutex
	states map[int64]*state
}

func NewEngine(
	renderer *transport.Renderer,
	loader content.Loader,
	users repository.UserRepository,
	submissions repository.SubmissionRepository,
	interviews repository.InterviewRepository,
	messages repository.MessageRepository,
	quizzes *quiz.Runner,
	rewrites *paraphrase.Runner,
	admin config.AdminCommands,
) *Engine {
	e := &Engine{
		renderer:    renderer,
		loader:      loader,
		users:       users,
		submissions: submissions,
		interviews:  interviews,
		messages:    messages,
		quizzes:     quizzes,
		rewrites:    rewrites,
		admin:       admin,
		states:      make(map[int64]*state),
	}
	quizzes.SetFinishedHook(e.onQuizFinished)
	rewrites.SetFinishedHook(e.onParaphraseFinished)
	return e
}

func (e *Engine) state(chatID int64) *state {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[chatID]
	if !ok {
		st = &state{mode: stateMainMenu}
		e.states[chatID] = st
	}
	return st
}

// setMode and currentMode are the only way mode is touched: the quiz and
// paraphrase timers finish sessions on their own goroutines.
func (e *Engine) setMode(chatID int64, mode string) {
	st := e.state(chatID)
	e.mu.Lock()
	st.mode = mode
	e.mu.Unlock()
}

func (e *Engine) currentMode(chatID int64) string {
	st := e.state(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return st.mode
}

func (e *Engine) isAdmin(chatID int64) bool {
	st := e.state(chatID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return st.admin
}

func (e *Engine) Handle(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventCallback:
		e.handleCallback(ctx, ev)
	case transport.EventDocument:
		e.handleDocument(ctx, ev)
	default:
		e.handleText(ctx, ev)
	}
}

func (e *Engine) handleText(ctx context.Context, ev transport.Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}
	if text == "/start" {
		e.start(ctx, ev)
		return
	}

	switch e.currentMode(ev.ChatID) {
	case stateInParaphrase:
		if err := e.rewrites.HandleReply(ctx, ev.ChatID, text); errors.Is(err, paraphrase.ErrNoSession) {
			e.setMode(ev.ChatID, stateMainMenu)
			e.showMenu(ctx, ev.ChatID)
		}

	case stateAwaitingSolution:
		e.acceptSolutionText(ctx, ev.ChatID, text)

	case stateContactingDevs:
		e.acceptDeveloperMessage(ctx, ev, text)

	default:
		if e.handleAdminCommand(ctx, ev.ChatID, text) {
			return
		}
		e.send(ctx, ev.ChatID, "Используйте кнопки меню ниже.", nil)
		e.showMenu(ctx, ev.ChatID)
	}
}

func (e *Engine) handleDocument(ctx context.Context, ev transport.Event) {
	if e.currentMode(ev.ChatID) != stateAwaitingSolution || ev.Document == nil {
		e.send(ctx, ev.ChatID, "Файл принимается только при отправке решения тестового задания.", nil)
		return
	}
	e.acceptSolution(ctx, ev.ChatID, model.SubmissionPayload{
		FileID:   ev.Document.FileID,
		FileName: ev.Document.FileName,
	})
}

func (e *Engine) handleCallback(ctx context.Context, ev transport.Event) {
	data := ev.Text

	switch {
	case data == cbMainMenu:
		e.setMode(ev.ChatID, stateMainMenu)
		e.showMenuAt(ctx, ev.ChatID, ev.MessageID)

	case data == cbContactDevs:
		e.setMode(ev.ChatID, stateContactingDevs)
		e.edit(ctx, ev.ChatID, ev.MessageID,
			"Напишите сообщение, и мы передадим его разработчикам.", backKeyboard())

	case data == cbNextRewrite:
		if err := e.rewrites.NextPrompt(ctx, ev.ChatID); errors.Is(err, paraphrase.ErrNoSession) {
			e.setMode(ev.ChatID, stateMainMenu)
			e.showMenuAt(ctx, ev.ChatID, ev.MessageID)
		}

	case data == cbSubmitWork:
		e.promptForSolution(ctx, ev.ChatID, ev.MessageID)

	// Stage ids double as menu tokens and "take_test" shares the launch
	// prefix, so the catalog match runs before the prefix routes.
	case isStageToken(data):
		stage, _ := catalog.ByID(catalog.StageID(data))
		e.openStage(ctx, ev.ChatID, stage, ev.MessageID)

	case strings.HasPrefix(data, "take_"):
		e.confirmTest(ctx, ev.ChatID, strings.TrimPrefix(data, "take_"), ev.MessageID)

	case strings.HasPrefix(data, "begin_"):
		e.beginTest(ctx, ev.ChatID, strings.TrimPrefix(data, "begin_"), ev.MessageID)

	case strings.HasPrefix(data, "answer_"):
		if idx, err := strconv.Atoi(strings.TrimPrefix(data, "answer_")); err == nil {
			if err := e.quizzes.Answer(ctx, ev.ChatID, idx); errors.Is(err, quiz.ErrNoSession) {
				e.setMode(ev.ChatID, stateMainMenu)
			}
		}

	case strings.HasPrefix(data, "survey_"):
		e.handleSurveyCallback(ctx, ev.ChatID, data, ev.MessageID)

	case strings.HasPrefix(data, "day_") || strings.HasPrefix(data, "time_"):
		e.handleScheduleCallback(ctx, ev.ChatID, data, ev.MessageID)

	default:
		log.Warn().Str("data", data).Int64("chat_id", ev.ChatID).Msg("Unknown callback token")
	}
}

func isStageToken(data string) bool {
	_, ok := catalog.ByID(catalog.StageID(data))
	return ok
}

// start registers the user (or refreshes the profile) and shows the welcome
// message followed by the main menu.
func (e *Engine) start(ctx context.Context, ev transport.Event) {
	user := &model.User{
		TelegramID:     ev.ChatID,
		Username:       ev.User.Username,
		FirstName:      ev.User.FirstName,
		LastName:       ev.User.LastName,
		UnlockedStages: datatypes.NewJSONSlice(catalog.InitialStages()),
		TestResults:    datatypes.NewJSONType(map[string]bool{}),
	}
	if err := withRetry(func() error { return e.users.RegisterOrRefresh(user) }); err != nil {
		log.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("Failed to register user")
		e.send(ctx, ev.ChatID, storeApology, nil)
		return
	}

	e.setMode(ev.ChatID, stateMainMenu)
	e.send(ctx, ev.ChatID, e.loader.LoadText(content.TextWelcomeMessage), nil)
	e.showMenu(ctx, ev.ChatID)
}

// beginTest launches the gated test behind the confirmation screen. A
// recorded result or a concurrent session rejects the launch without any
// state change.
func (e *Engine) beginTest(ctx context.Context, chatID int64, testID string, msgID int) {
	user, err := e.loadUser(chatID)
	if err != nil {
		e.edit(ctx, chatID, msgID, storeApology, menuKeyboard())
		return
	}
	if _, taken := user.TestResults.Data()[testID]; taken {
		e.edit(ctx, chatID, msgID, "Этот тест уже пройден, повторное прохождение невозможно.", menuKeyboard())
		return
	}
	if e.quizzes.Active(chatID) || e.rewrites.Active(chatID) {
		e.edit(ctx, chatID, msgID, "Сначала завершите текущий тест.", nil)
		return
	}

	if testID == catalog.TestWhereToStart {
		set, err := e.loader.LoadParaphrase(content.QuizWhereToStart)
		if err != nil {
			e.edit(ctx, chatID, msgID, content.Unavailable, menuKeyboard())
			return
		}
		e.setMode(chatID, stateInParaphrase)
		if err := e.rewrites.Start(ctx, chatID, set, msgID); err != nil {
			e.setMode(chatID, stateMainMenu)
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to start paraphrase session")
		}
		return
	}

	q, err := e.loader.LoadQuiz(quizContentID(testID))
	if err != nil {
		e.edit(ctx, chatID, msgID, content.Unavailable, menuKeyboard())
		return
	}
	e.setMode(chatID, stateInQuiz)
	if err := e.quizzes.Start(ctx, chatID, testID, q, msgID); err != nil {
		e.setMode(chatID, stateMainMenu)
		log.Error().Err(err).Int64("chat_id", chatID).Str("test", testID).Msg("Failed to start test session")
	}
}

func quizContentID(testID string) string {
	switch testID {
	case catalog.TestPrimary:
		return content.QuizPrimary
	case catalog.TestLogic:
		return content.QuizLogic
	case catalog.TestInterviewPrep:
		return content.QuizInterviewPrep
	}
	return testID
}

func (e *Engine) onQuizFinished(ctx context.Context, chatID int64, v quiz.Verdict) {
	e.recordOutcome(chatID, v.TestID, v.Passed)

	var text string
	if v.TimedOut {
		text = "Время вышло! Тест не засчитан."
	} else {
		text = fmt.Sprintf("Тест завершён.\nПравильных ответов: %d из %d.\nРезультат: %s",
			v.Correct, v.Total, verdictLabel(v.Passed))
	}
	e.edit(ctx, chatID, v.MessageID, text, menuKeyboard())
	e.setMode(chatID, stateMainMenu)
}

func (e *Engine) onParaphraseFinished(ctx context.Context, chatID int64, v paraphrase.Verdict) {
	e.recordOutcome(chatID, catalog.TestWhereToStart, v.Passed)

	var text string
	if v.TimedOut {
		text = "Время вышло! Тест не засчитан."
	} else {
		text = fmt.Sprintf("Тест завершён.\nЗасчитано заданий: %d из %d.\nРезультат: %s",
			v.Correct, v.Total, verdictLabel(v.Passed))
	}
	e.edit(ctx, chatID, v.MessageID, text, menuKeyboard())
	e.setMode(chatID, stateMainMenu)
}

func verdictLabel(passed bool) string {
	if passed {
		return "пройден ✅"
	}
	return "не пройден ❌"
}

// recordOutcome persists a verdict and applies the progression delta. The
// result write is once-only; a concurrent admin override loses nothing but
// this verdict.
func (e *Engine) recordOutcome(chatID int64, testID string, passed bool) {
	err := withRetry(func() error { return e.users.RecordTestResult(chatID, testID, passed) })
	if errors.Is(err, repository.ErrResultExists) {
		log.Warn().Int64("chat_id", chatID).Str("test", testID).Msg("Result already recorded, keeping the first verdict")
	} else if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Str("test", testID).Msg("Failed to record test result")
		return
	}

	user, err := e.loadUser(chatID)
	if err != nil {
		return
	}
	out := progression.Apply(stageSet(user.UnlockedStages), user.TestResults.Data(),
		progression.Result{Test: testID, Passed: passed})
	if len(out.Unlocked) > 0 {
		if err := withRetry(func() error { return e.users.Unlock(chatID, stageStrings(out.Unlocked)) }); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to unlock stages")
		}
	}
}

func (e *Engine) promptForSolution(ctx context.Context, chatID int64, msgID int) {
	pending, err := e.submissions.HasPending(chatID, model.SubmissionKindPractical)
	if err == nil && pending {
		e.edit(ctx, chatID, msgID, "Ваше решение уже на проверке. Дождитесь ответа рекрутера.", menuKeyboard())
		return
	}
	e.setMode(chatID, stateAwaitingSolution)
	e.edit(ctx, chatID, msgID,
		"Пришлите решение тестового задания: файлом или развёрнутым текстом одним сообщением.", backKeyboard())
}

func (e *Engine) acceptSolutionText(ctx context.Context, chatID int64, text string) {
	if len([]rune(text)) < minSolutionChars {
		e.send(ctx, chatID, "Слишком короткое сообщение для решения. Пришлите файл или развёрнутое описание.", nil)
		return
	}
	e.acceptSolution(ctx, chatID, model.SubmissionPayload{Text: text})
}

func (e *Engine) acceptSolution(ctx context.Context, chatID int64, payload model.SubmissionPayload) {
	pending, err := e.submissions.HasPending(chatID, model.SubmissionKindPractical)
	if err == nil && pending {
		e.send(ctx, chatID, "Ваше решение уже на проверке. Дождитесь ответа рекрутера.", nil)
		return
	}

	sub := &model.Submission{
		TelegramID: chatID,
		Kind:       model.SubmissionKindPractical,
		Payload:    datatypes.NewJSONType(payload),
		Status:     model.StatusPending,
	}
	if err := withRetry(func() error { return e.submissions.Create(sub) }); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to store submission")
		e.send(ctx, chatID, storeApology, nil)
		return
	}

	e.setMode(chatID, stateMainMenu)
	e.send(ctx, chatID, "Решение принято и передано на проверку. Ответ придёт сюда же.", nil)
	e.showMenu(ctx, chatID)
}

func (e *Engine) acceptDeveloperMessage(ctx context.Context, ev transport.Event, text string) {
	msg := &model.DeveloperMessage{
		TelegramID: ev.ChatID,
		Username:   ev.User.Username,
		Text:       text,
	}
	if err := withRetry(func() error { return e.messages.Create(msg) }); err != nil {
		log.Error().Err(err).Int64("chat_id", ev.ChatID).Msg("Failed to store developer message")
		e.send(ctx, ev.ChatID, storeApology, nil)
		return
	}
	e.setMode(ev.ChatID, stateMainMenu)
	e.send(ctx, ev.ChatID, "Сообщение передано разработчикам. Спасибо!", nil)
	e.showMenu(ctx, ev.ChatID)
}

func (e *Engine) loadUser(chatID int64) (*model.User, error) {
	var user *model.User
	err := withRetry(func() error {
		var err error
		user, err = e.users.FindByID(chatID)
		return err
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to load user")
	}
	return user, err
}

const storeApology = "Что-то пошло не так. Попробуйте ещё раз чуть позже."

// withRetry runs fn, retrying exactly once on failure.
func withRetry(fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}
	return fn()
}

func stageSet(stages []string) map[string]bool {
	set := make(map[string]bool, len(stages))
	for _, s := range stages {
		set[s] = true
	}
	return set
}

func stageStrings(ids []catalog.StageID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
